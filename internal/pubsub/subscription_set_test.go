/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/jdwp/pkg/testutil"
)

func drain[T any](t *testing.T, ctx context.Context, ch <-chan T) []T {
	t.Helper()
	var got []T
	for {
		select {
		case v, isOpen := <-ch:
			if !isOpen {
				return got
			}
			got = append(got, v)
		case <-ctx.Done():
			t.Fatal("subscription channel was not closed")
			return nil
		}
	}
}

func TestNotifyDoesNotBlockOnSlowSubscriber(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 5*time.Second)
	defer cancel()

	ss := NewSubscriptionSet[int]()
	sub := ss.Subscribe(ctx)

	// Nobody reads until all notifications are sent.
	for i := 0; i < 1000; i++ {
		ss.Notify(i)
	}
	sub.Cancel()

	got := drain(t, ctx, sub.C())
	require.Len(t, got, 1000)
	require.Equal(t, 0, got[0])
	require.Equal(t, 999, got[999])
	require.Equal(t, 0, ss.Len())
}

func TestNotifyAndCancelAllDeliversOnce(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 5*time.Second)
	defer cancel()

	ss := NewSubscriptionSet[string]()
	first := ss.Subscribe(ctx)
	second := ss.Subscribe(ctx)

	require.True(t, ss.NotifyAndCancelAll("bye"))
	require.False(t, ss.NotifyAndCancelAll("bye again"))

	require.Equal(t, []string{"bye"}, drain(t, ctx, first.C()))
	require.Equal(t, []string{"bye"}, drain(t, ctx, second.C()))

	late := ss.Subscribe(ctx)
	require.True(t, late.Cancelled())
	require.Empty(t, drain(t, ctx, late.C()))
}

func TestSubscriptionContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 5*time.Second)
	defer cancel()

	subCtx, subCancel := context.WithCancel(ctx)
	ss := NewSubscriptionSet[int]()
	sub := ss.Subscribe(subCtx)
	subCancel()

	// Must not block even though the queue is no longer drained.
	for i := 0; i < 100; i++ {
		ss.Notify(i)
	}
	sub.Cancel()
}

func TestDoneSubscriptionsLeaveTheSet(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 5*time.Second)
	defer cancel()

	ss := NewSubscriptionSet[int]()
	kept := ss.Subscribe(ctx)
	for i := 0; i < 10; i++ {
		subCtx, subCancel := context.WithCancel(ctx)
		sub := ss.Subscribe(subCtx)
		subCancel()

		select {
		case _, isOpen := <-sub.C():
			require.False(t, isOpen)
		case <-ctx.Done():
			t.Fatal("subscription channel was not closed after its context was cancelled")
		}
	}

	require.Eventually(t, func() bool { return ss.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.False(t, kept.Cancelled())

	ss.Notify(7)
	require.Equal(t, 7, <-kept.C())
}
