/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package concurrency

import (
	"context"
	"sync"
)

// Future is the result of an operation that completes at most once.
// Any number of goroutines can wait for the result; only the first completion is recorded.
type Future[T any] struct {
	lock   *sync.Mutex
	done   chan struct{}
	result T
	err    error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{
		lock: &sync.Mutex{},
		done: make(chan struct{}),
	}
}

// Completes the future with the passed result and error.
// Returns true if this call completed the future, false if it was already complete
// (in which case the passed values are discarded).
func (f *Future[T]) TryComplete(res T, err error) bool {
	f.lock.Lock()
	defer f.lock.Unlock()

	select {
	case <-f.done:
		return false
	default:
	}

	f.result = res
	f.err = err
	close(f.done)
	return true
}

// Returns the channel that will be closed when the future is complete.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Returns true if the future is complete.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Waits for the future to complete and returns the result.
// If the context is done first, the context error is returned and the future is left untouched.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done: // Channel read establishes happens-before relationship for result read.
		return f.result, f.err
	case <-ctx.Done():
		return *new(T), ctx.Err()
	}
}
