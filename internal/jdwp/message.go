/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"context"
	"math"
	"sync"

	"github.com/microsoft/jdwp/pkg/concurrency"
)

// pendingRequest tracks a command that is awaiting a reply.
type pendingRequest struct {
	key    CommandKey
	future *concurrency.Future[*Packet]
}

// pendingRequestMap is a thread-safe map of pending requests keyed by packet ID.
type pendingRequestMap struct {
	mu       sync.Mutex
	requests map[uint32]*pendingRequest
}

func newPendingRequestMap() *pendingRequestMap {
	return &pendingRequestMap{
		requests: make(map[uint32]*pendingRequest),
	}
}

func (m *pendingRequestMap) Add(id uint32, req *pendingRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[id] = req
	pendingRequestsCounter.Add(context.Background(), 1)
}

// Get retrieves and removes a pending request from the map.
// Returns nil if no request exists for the given ID.
func (m *pendingRequestMap) Get(id uint32) *pendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil
	}

	delete(m.requests, id)
	pendingRequestsCounter.Add(context.Background(), -1)
	return req
}

func (m *pendingRequestMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// DrainWithError completes every pending request with err and clears the map.
// Requests that already completed are left untouched.
func (m *pendingRequestMap) DrainWithError(err error) int {
	m.mu.Lock()
	requests := m.requests
	m.requests = make(map[uint32]*pendingRequest)
	pendingRequestsCounter.Add(context.Background(), -int64(len(requests)))
	m.mu.Unlock()

	drained := 0
	for _, req := range requests {
		if req.future.TryComplete(nil, err) {
			drained++
		}
	}
	return drained
}

// idCounter generates packet IDs. IDs start at 1 and are never reused;
// once the 32-bit space is exhausted Next fails.
type idCounter struct {
	mu   sync.Mutex
	last uint32
}

func (c *idCounter) Next() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == math.MaxUint32 {
		return 0, false
	}
	c.last++
	return c.last, true
}
