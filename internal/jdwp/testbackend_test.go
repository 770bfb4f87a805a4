/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"context"
	"slices"
	"sync"
)

// testBackend is an in-memory VM with one int[4] array (ID 42) and a feed of injected events.
type testBackend struct {
	capabilities []string
	events       chan Event

	// Closed when a ThreadReference.Name command starts; the command then blocks until its context is done.
	blocked     chan struct{}
	blockedOnce sync.Once

	lock      sync.Mutex
	arrays    map[ArrayID][]Value
	redefined map[ReferenceTypeID][]byte
	suspends  []SuspendPolicy
	commands  []CommandKey
	exitCode  int32
	exited    bool
	disposed  bool
}

func newTestBackend(capabilities ...string) *testBackend {
	return &testBackend{
		capabilities: capabilities,
		events:       make(chan Event, 16),
		blocked:      make(chan struct{}),
		arrays: map[ArrayID][]Value{
			42: {IntValue(0), IntValue(0), IntValue(0), IntValue(0)},
		},
		redefined: make(map[ReferenceTypeID][]byte),
	}
}

func (b *testBackend) Capabilities() []string {
	return b.capabilities
}

func (b *testBackend) Events() <-chan Event {
	return b.events
}

func (b *testBackend) Suspend(_ context.Context, policy SuspendPolicy, _ ThreadID) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.suspends = append(b.suspends, policy)
	return nil
}

func (b *testBackend) HandleCommand(ctx context.Context, p *Packet) ([]byte, error) {
	session, _ := SessionFromContext(ctx)
	sizes := session.IDSizes()

	b.lock.Lock()
	b.commands = append(b.commands, p.Key())
	b.lock.Unlock()

	switch p.Key() {
	case CmdVMVersion:
		return encodeData(sizes, func(w *Writer) {
			w.Utf8String("Test VM 17").Int32(17).Int32(0).Utf8String("17.0.2").Utf8String("TestVM")
		})

	case CmdArraySetValues:
		return nil, b.setArrayValues(sizes, p.Data)

	case CmdVMRedefineClasses:
		var defs []ClassDefinition
		if err := decodeData(sizes, p.Data, func(r *Reader) {
			n := r.Int32()
			for i := int32(0); i < n && r.Err() == nil; i++ {
				defs = append(defs, ClassDefinition{Class: r.ReferenceTypeID(), Bytecode: r.Bytes()})
			}
		}); err != nil {
			return nil, err
		}
		b.lock.Lock()
		defer b.lock.Unlock()
		for _, def := range defs {
			b.redefined[def.Class] = def.Bytecode
		}
		return nil, nil

	case CmdThreadName:
		b.blockedOnce.Do(func() { close(b.blocked) })
		<-ctx.Done()
		return nil, ctx.Err()

	case CmdVMExit:
		var code int32
		if err := decodeData(sizes, p.Data, func(r *Reader) { code = r.Int32() }); err != nil {
			return nil, err
		}
		b.lock.Lock()
		defer b.lock.Unlock()
		b.exitCode = code
		b.exited = true
		return nil, nil

	case CmdVMDispose:
		b.lock.Lock()
		defer b.lock.Unlock()
		b.disposed = true
		return nil, nil

	case CmdVMResume, CmdVMSuspend:
		return nil, nil

	default:
		return nil, &Error{Code: ErrNotImplemented, CommandSet: p.CommandSet, Command: p.Command}
	}
}

func (b *testBackend) setArrayValues(sizes IDSizes, data []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	r := NewReader(data, sizes)
	arrayID := r.ObjectID()
	first := r.Int32()
	count := r.Int32()
	if err := r.Err(); err != nil {
		return err
	}

	array, found := b.arrays[arrayID]
	if !found {
		return &Error{Code: ErrInvalidObject}
	}
	if first < 0 || count < 0 || int(first)+int(count) > len(array) {
		return &Error{Code: ErrInvalidIndex}
	}

	values := make([]Value, count)
	for i := range values {
		values[i] = r.UntaggedValue(TagInt)
	}
	if err := r.Err(); err != nil {
		return err
	}
	copy(array[first:], values)
	return nil
}

func (b *testBackend) array(id ArrayID) []Value {
	b.lock.Lock()
	defer b.lock.Unlock()
	return slices.Clone(b.arrays[id])
}

func (b *testBackend) suspendPolicies() []SuspendPolicy {
	b.lock.Lock()
	defer b.lock.Unlock()
	return slices.Clone(b.suspends)
}

func (b *testBackend) received(key CommandKey) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return slices.Contains(b.commands, key)
}

var _ Backend = (*testBackend)(nil)
