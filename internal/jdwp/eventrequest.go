/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-logr/logr"
)

var errInvalidCount = errors.New("count modifier must be positive")

// EventRequest is a registered request for events of one kind.
type EventRequest struct {
	ID            RequestID
	Kind          EventKind
	SuspendPolicy SuspendPolicy
	Modifiers     []Modifier
}

// Match is a request that matched an event.
type Match struct {
	RequestID     RequestID
	SuspendPolicy SuspendPolicy
}

type registeredRequest struct {
	EventRequest

	// Remaining occurrences for each Count modifier, indexed like Modifiers.
	remaining []int32
}

// RequestManager holds the event requests of a session and matches VM events against them.
// It is safe for concurrent use.
type RequestManager struct {
	lock     sync.Mutex
	lastID   RequestID
	requests []*registeredRequest // Ordered by ID
	log      logr.Logger
}

func NewRequestManager(log logr.Logger) *RequestManager {
	return &RequestManager{log: log}
}

// Set registers a request and returns its ID. Request IDs are never reused.
func (m *RequestManager) Set(kind EventKind, policy SuspendPolicy, modifiers []Modifier) (RequestID, error) {
	if !kind.Requestable() {
		return 0, fmt.Errorf("cannot request %v events: %w", kind, ErrInvalidEventKind)
	}
	if !policy.Valid() {
		return 0, fmt.Errorf("invalid suspend policy %d: %w", uint8(policy), errIllegalArgument)
	}

	rr := &registeredRequest{
		EventRequest: EventRequest{
			Kind:          kind,
			SuspendPolicy: policy,
			Modifiers:     slices.Clone(modifiers),
		},
		remaining: make([]int32, len(modifiers)),
	}
	for i, mod := range modifiers {
		if !mod.Kind.AllowedFor(kind) {
			return 0, &InvalidFilterError{Modifier: mod.Kind, Kind: kind}
		}
		if mod.Kind == ModCount {
			if mod.Count <= 0 {
				return 0, errInvalidCount
			}
			rr.remaining[i] = mod.Count
		}
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.lastID++
	rr.ID = m.lastID
	m.requests = append(m.requests, rr)
	m.log.V(1).Info("Event request registered", "RequestID", rr.ID, "Kind", kind.String(), "SuspendPolicy", policy.String(), "Modifiers", len(modifiers))
	return rr.ID, nil
}

// Clear removes the request with the given kind and ID.
// Clearing an unknown or already cleared request is a no-op.
func (m *RequestManager) Clear(kind EventKind, id RequestID) {
	m.lock.Lock()
	defer m.lock.Unlock()

	before := len(m.requests)
	m.requests = slices.DeleteFunc(m.requests, func(rr *registeredRequest) bool {
		return rr.ID == id && rr.Kind == kind
	})
	if len(m.requests) != before {
		m.log.V(1).Info("Event request cleared", "RequestID", id, "Kind", kind.String())
	}
}

// ClearAllBreakpoints removes every BREAKPOINT request.
func (m *RequestManager) ClearAllBreakpoints() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.requests = slices.DeleteFunc(m.requests, func(rr *registeredRequest) bool {
		return rr.Kind == EventBreakpoint
	})
}

// Reset removes all requests, for example after the VM died.
func (m *RequestManager) Reset() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.requests = nil
}

// Requests returns a snapshot of the registered requests.
func (m *RequestManager) Requests() []EventRequest {
	m.lock.Lock()
	defer m.lock.Unlock()

	retval := make([]EventRequest, 0, len(m.requests))
	for _, rr := range m.requests {
		req := rr.EventRequest
		req.Modifiers = slices.Clone(rr.Modifiers)
		retval = append(retval, req)
	}
	return retval
}

// Match returns the requests that match the event, in registration order.
// Modifiers are evaluated left to right and the first one that does not match vetoes the request.
// A request whose Count modifier is exhausted by this event is removed,
// even if a modifier after the Count vetoes the event.
// VM_START, VM_DEATH and VM_DISCONNECTED events that match no request
// yield a single match with request ID 0.
func (m *RequestManager) Match(ev *Event) []Match {
	m.lock.Lock()
	defer m.lock.Unlock()

	var matches []Match
	var expired []RequestID
	for _, rr := range m.requests {
		if rr.Kind != ev.Kind {
			continue
		}
		matched, expires := rr.match(ev)
		if expires {
			expired = append(expired, rr.ID)
		}
		if matched {
			matches = append(matches, Match{RequestID: rr.ID, SuspendPolicy: rr.SuspendPolicy})
		}
	}

	if len(expired) > 0 {
		m.requests = slices.DeleteFunc(m.requests, func(rr *registeredRequest) bool {
			return slices.Contains(expired, rr.ID)
		})
	}

	if len(matches) == 0 && ev.Kind.Unconditional() {
		matches = []Match{{RequestID: 0, SuspendPolicy: SuspendNone}}
	}
	return matches
}

func (rr *registeredRequest) match(ev *Event) (matched bool, expires bool) {
	for i := range rr.Modifiers {
		mod := &rr.Modifiers[i]
		if mod.Kind == ModCount {
			rr.remaining[i]--
			if rr.remaining[i] > 0 {
				return false, false
			}
			expires = true
			continue
		}
		if !matchModifier(mod, ev) {
			return false, expires
		}
	}
	return true, expires
}

// EffectiveSuspendPolicy returns the most restrictive policy among the matches (ALL > EVENT_THREAD > NONE).
func EffectiveSuspendPolicy(matches []Match) SuspendPolicy {
	policy := SuspendNone
	for _, match := range matches {
		policy = max(policy, match.SuspendPolicy)
	}
	return policy
}
