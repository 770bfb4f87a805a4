/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package pubsub

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/smallnest/chanx"
)

type HandleT uint32

const (
	InvalidHandle HandleT = 0

	initialQueueCapacity = 16
)

var (
	nextHandle atomic.Uint32
)

// The subscription set fans out notifications to a set of subscribers.
// Every subscription is backed by an unbounded queue, so Notify() never blocks on a slow subscriber.
type SubscriptionSet[NotificationT any] struct {
	subscriptions map[HandleT]*Subscription[NotificationT]

	// Set by CancelAll(); no new subscriptions are accepted afterwards.
	closed bool

	mutex *sync.Mutex
}

func NewSubscriptionSet[NotificationT any]() *SubscriptionSet[NotificationT] {
	return &SubscriptionSet[NotificationT]{
		subscriptions: make(map[HandleT]*Subscription[NotificationT]),
		mutex:         &sync.Mutex{},
	}
}

// Creates a new subscription. The subscription channel is closed when the subscription is cancelled,
// when the set is cancelled, or when the passed context is done.
// Subscribing to a cancelled set returns a subscription whose channel is already closed.
func (ss *SubscriptionSet[NotificationT]) Subscribe(ctx context.Context) *Subscription[NotificationT] {
	sub := newSubscription(ctx, ss)

	ss.mutex.Lock()
	if ss.closed {
		ss.mutex.Unlock()
		sub.Cancel()
		return sub
	}
	ss.subscriptions[sub.handle] = sub
	ss.mutex.Unlock()

	// Subscriptions of finished contexts leave the set.
	stop := context.AfterFunc(ctx, sub.Cancel)
	sub.lock.Lock()
	sub.stopAfterFunc = stop
	sub.lock.Unlock()

	return sub
}

func (ss *SubscriptionSet[NotificationT]) Notify(n NotificationT) {
	for _, sub := range ss.current() {
		sub.notify(n)
	}
}

// Delivers a final notification to every subscriber and then cancels all subscriptions.
// Subsequent calls are no-ops, which makes the final notification an exactly-once delivery.
func (ss *SubscriptionSet[NotificationT]) NotifyAndCancelAll(n NotificationT) bool {
	ss.mutex.Lock()
	if ss.closed {
		ss.mutex.Unlock()
		return false
	}
	ss.closed = true
	currentSubs := slices.Collect(maps.Values(ss.subscriptions))
	clear(ss.subscriptions)
	ss.mutex.Unlock()

	for _, sub := range currentSubs {
		sub.notify(n)
		sub.cancel(false)
	}
	return true
}

func (ss *SubscriptionSet[NotificationT]) Len() int {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	return len(ss.subscriptions)
}

func (ss *SubscriptionSet[NotificationT]) current() []*Subscription[NotificationT] {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	return slices.Collect(maps.Values(ss.subscriptions))
}

func (ss *SubscriptionSet[NotificationT]) onSubscriptionCancelled(handle HandleT) {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	delete(ss.subscriptions, handle) // This is a no-op if the handle does not exist.
}

type Subscription[NotificationT any] struct {
	ctx    context.Context
	handle HandleT
	queue  *chanx.UnboundedChan[NotificationT]
	owner  *SubscriptionSet[NotificationT]
	lock   *sync.Mutex
	closed bool

	stopAfterFunc func() bool
}

func newSubscription[NotificationT any](ctx context.Context, owner *SubscriptionSet[NotificationT]) *Subscription[NotificationT] {
	return &Subscription[NotificationT]{
		ctx:    ctx,
		handle: HandleT(nextHandle.Add(1)),
		queue:  chanx.NewUnboundedChan[NotificationT](ctx, initialQueueCapacity),
		owner:  owner,
		lock:   &sync.Mutex{},
	}
}

// Returns the channel notifications are delivered on.
func (s *Subscription[NotificationT]) C() <-chan NotificationT {
	return s.queue.Out
}

func (s *Subscription[NotificationT]) Cancel() {
	s.cancel(true)
}

func (s *Subscription[NotificationT]) Cancelled() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

func (s *Subscription[NotificationT]) cancel(detach bool) {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	close(s.queue.In) // Buffered notifications are still delivered before C() is closed.
	stop := s.stopAfterFunc
	s.lock.Unlock()

	if stop != nil {
		stop()
	}

	if detach {
		s.owner.onSubscriptionCancelled(s.handle)
	}
}

func (s *Subscription[NotificationT]) notify(n NotificationT) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}

	// Once the subscriber context is done the queue stops draining In, so do not block on it.
	select {
	case s.queue.In <- n:
	case <-s.ctx.Done():
	}
}
