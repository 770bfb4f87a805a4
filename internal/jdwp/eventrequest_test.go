/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLocation = Location{Type: TypeTagClass, Class: 0x10, Method: 0x20, Index: 5}

func TestRequestManagerSetAssignsIncreasingIDs(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())
	first, err := m.Set(EventThreadStart, SuspendNone, nil)
	require.NoError(t, err)
	second, err := m.Set(EventThreadStart, SuspendNone, nil)
	require.NoError(t, err)
	assert.Equal(t, RequestID(1), first)
	assert.Equal(t, RequestID(2), second)

	m.Clear(EventThreadStart, second)
	third, err := m.Set(EventThreadStart, SuspendNone, nil)
	require.NoError(t, err)
	assert.Equal(t, RequestID(3), third, "request IDs must not be reused")
}

func TestRequestManagerRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())

	_, err := m.Set(EventVMDeath, SuspendNone, []Modifier{ClassMatch("java.*")})
	var invalidFilter *InvalidFilterError
	require.ErrorAs(t, err, &invalidFilter)
	assert.Equal(t, ModClassMatch, invalidFilter.Modifier)
	assert.Equal(t, ErrIllegalArgument, ErrorCodeFor(err))

	_, err = m.Set(EventVMDisconnected, SuspendNone, nil)
	assert.ErrorIs(t, err, ErrInvalidEventKind)
	assert.Equal(t, ErrInvalidEventType, ErrorCodeFor(err))

	_, err = m.Set(EventKind(77), SuspendNone, nil)
	assert.ErrorIs(t, err, ErrInvalidEventKind)

	_, err = m.Set(EventBreakpoint, SuspendNone, []Modifier{CountModifier(0)})
	assert.Equal(t, ErrInvalidCount, ErrorCodeFor(err))

	_, err = m.Set(EventBreakpoint, SuspendPolicy(9), nil)
	assert.Equal(t, ErrIllegalArgument, ErrorCodeFor(err))

	assert.Empty(t, m.Requests())
}

func TestRequestManagerClearIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())
	keep, err := m.Set(EventBreakpoint, SuspendAll, []Modifier{LocationOnly(testLocation)})
	require.NoError(t, err)
	cleared, err := m.Set(EventBreakpoint, SuspendAll, nil)
	require.NoError(t, err)

	m.Clear(EventBreakpoint, cleared)
	once := m.Requests()

	m.Clear(EventBreakpoint, cleared)
	m.Clear(EventBreakpoint, 999)
	twice := m.Requests()

	assert.Equal(t, once, twice)
	require.Len(t, twice, 1)
	assert.Equal(t, keep, twice[0].ID)

	// The kind must match too.
	m.Clear(EventSingleStep, keep)
	assert.Len(t, m.Requests(), 1)
}

func TestRequestManagerMostRestrictivePolicyWins(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())
	threadOnly, err := m.Set(EventBreakpoint, SuspendEventThread, []Modifier{LocationOnly(testLocation)})
	require.NoError(t, err)
	all, err := m.Set(EventBreakpoint, SuspendAll, []Modifier{LocationOnly(testLocation)})
	require.NoError(t, err)
	_, err = m.Set(EventBreakpoint, SuspendAll, []Modifier{LocationOnly(Location{Type: TypeTagClass, Class: 1})})
	require.NoError(t, err)

	ev := &Event{Kind: EventBreakpoint, Thread: 3, Location: testLocation}
	matches := m.Match(ev)
	require.Equal(t, []Match{
		{RequestID: threadOnly, SuspendPolicy: SuspendEventThread},
		{RequestID: all, SuspendPolicy: SuspendAll},
	}, matches)
	assert.Equal(t, SuspendAll, EffectiveSuspendPolicy(matches))

	composite := compositeFor(ev, matches)
	assert.Equal(t, SuspendAll, composite.SuspendPolicy)
	require.Len(t, composite.Events, 2)
	assert.Equal(t, threadOnly, composite.Events[0].RequestID)
	assert.Equal(t, all, composite.Events[1].RequestID)

	assert.Equal(t, SuspendNone, EffectiveSuspendPolicy(nil))
}

func TestRequestManagerModifiersAreANDed(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())
	id, err := m.Set(EventClassPrepare, SuspendNone, []Modifier{
		ClassMatch("com.example.*"),
		ClassExclude("*Test"),
		ThreadOnly(7),
	})
	require.NoError(t, err)

	matching := &Event{Kind: EventClassPrepare, Thread: 7, Signature: "Lcom/example/Widget;"}
	assert.Equal(t, []Match{{RequestID: id, SuspendPolicy: SuspendNone}}, m.Match(matching))

	excluded := &Event{Kind: EventClassPrepare, Thread: 7, Signature: "Lcom/example/WidgetTest;"}
	assert.Empty(t, m.Match(excluded))

	otherThread := &Event{Kind: EventClassPrepare, Thread: 8, Signature: "Lcom/example/Widget;"}
	assert.Empty(t, m.Match(otherThread))

	otherKind := &Event{Kind: EventClassUnload, Signature: "Lcom/example/Widget;"}
	assert.Empty(t, m.Match(otherKind))
}

func TestRequestManagerCountModifier(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())
	id, err := m.Set(EventMethodEntry, SuspendNone, []Modifier{CountModifier(3)})
	require.NoError(t, err)

	ev := &Event{Kind: EventMethodEntry, Thread: 1, Location: testLocation}
	assert.Empty(t, m.Match(ev))
	assert.Empty(t, m.Match(ev))
	assert.Equal(t, []Match{{RequestID: id, SuspendPolicy: SuspendNone}}, m.Match(ev))

	// The request expired after reporting once.
	assert.Empty(t, m.Match(ev))
	assert.Empty(t, m.Requests())
}

func TestRequestManagerCountOnlyCountsQualifyingEvents(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())
	_, err := m.Set(EventThreadStart, SuspendNone, []Modifier{ThreadOnly(5), CountModifier(2)})
	require.NoError(t, err)

	other := &Event{Kind: EventThreadStart, Thread: 6}
	mine := &Event{Kind: EventThreadStart, Thread: 5}

	assert.Empty(t, m.Match(other))
	assert.Empty(t, m.Match(other))
	assert.Empty(t, m.Match(mine))
	assert.Len(t, m.Match(mine), 1)
	assert.Empty(t, m.Requests())
}

func TestUnconditionalEvents(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())

	for _, kind := range []EventKind{EventVMStart, EventVMDeath, EventVMDisconnected} {
		matches := m.Match(&Event{Kind: kind})
		assert.Equal(t, []Match{{RequestID: 0, SuspendPolicy: SuspendNone}}, matches, "kind %v", kind)
	}

	id, err := m.Set(EventVMDeath, SuspendAll, nil)
	require.NoError(t, err)
	assert.Equal(t, []Match{{RequestID: id, SuspendPolicy: SuspendAll}}, m.Match(&Event{Kind: EventVMDeath}))

	assert.Empty(t, m.Match(&Event{Kind: EventThreadDeath}))
}

func TestClearAllBreakpoints(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())
	_, err := m.Set(EventBreakpoint, SuspendAll, nil)
	require.NoError(t, err)
	step, err := m.Set(EventSingleStep, SuspendAll, []Modifier{StepModifier(1, 0, 1)})
	require.NoError(t, err)
	_, err = m.Set(EventBreakpoint, SuspendNone, nil)
	require.NoError(t, err)

	m.ClearAllBreakpoints()

	require.True(t, cmp.Equal([]EventRequest{{
		ID:            step,
		Kind:          EventSingleStep,
		SuspendPolicy: SuspendAll,
		Modifiers:     []Modifier{StepModifier(1, 0, 1)},
	}}, m.Requests()))
}

func TestRequestsReturnsCopies(t *testing.T) {
	t.Parallel()

	m := NewRequestManager(logr.Discard())
	first, err := m.Set(EventClassPrepare, SuspendNone, []Modifier{ClassMatch("com.example.*")})
	require.NoError(t, err)
	second, err := m.Set(EventThreadStart, SuspendEventThread, nil)
	require.NoError(t, err)

	requests := m.Requests()
	requests[0].Modifiers[0].Pattern = "changed"

	byID := cmpopts.SortSlices(func(a, b EventRequest) bool { return a.ID < b.ID })
	require.True(t, cmp.Equal([]EventRequest{
		{ID: second, Kind: EventThreadStart, SuspendPolicy: SuspendEventThread},
		{ID: first, Kind: EventClassPrepare, SuspendPolicy: SuspendNone, Modifiers: []Modifier{ClassMatch("com.example.*")}},
	}, m.Requests(), byID, cmpopts.EquateEmpty()))
}

func TestMatchClassPattern(t *testing.T) {
	t.Parallel()

	assert.True(t, MatchClassPattern("java.lang.String", "java.lang.String"))
	assert.False(t, MatchClassPattern("java.lang.String", "java.lang.StringBuilder"))
	assert.True(t, MatchClassPattern("java.*", "java.util.List"))
	assert.False(t, MatchClassPattern("java.*", "javax.swing.JFrame"))
	assert.True(t, MatchClassPattern("*Test", "com.example.WidgetTest"))
	assert.True(t, MatchClassPattern("*", "anything"))
}

func TestExceptionOnlyModifier(t *testing.T) {
	t.Parallel()

	uncaughtNPE := &Event{Kind: EventException, ExceptionClass: 50, ExceptionSupertypes: []ReferenceTypeID{40, 1}}
	caughtIOE := &Event{Kind: EventException, ExceptionClass: 60, CatchLocation: testLocation}

	uncaughtOnly := ExceptionOnly(0, false, true)
	assert.True(t, matchModifier(&uncaughtOnly, uncaughtNPE))
	assert.False(t, matchModifier(&uncaughtOnly, caughtIOE))

	runtimeExceptions := ExceptionOnly(40, true, true)
	assert.True(t, matchModifier(&runtimeExceptions, uncaughtNPE))
	assert.False(t, matchModifier(&runtimeExceptions, caughtIOE))
}

func TestEventRequestSetRoundTrip(t *testing.T) {
	t.Parallel()

	modifiers := []Modifier{
		CountModifier(2),
		ConditionalModifier(9),
		ThreadOnly(3),
		ClassOnly(4),
		ClassMatch("a.*"),
		ClassExclude("*.B"),
		LocationOnly(testLocation),
		ExceptionOnly(5, true, false),
		FieldOnly(6, 7),
		StepModifier(8, 1, 2),
		InstanceOnly(10),
		SourceNameMatch("*.kt"),
	}

	data, err := EncodeEventRequestSet(DefaultIDSizes, EventBreakpoint, SuspendEventThread, modifiers)
	require.NoError(t, err)

	kind, policy, decoded, err := DecodeEventRequestSet(DefaultIDSizes, data)
	require.NoError(t, err)
	assert.Equal(t, EventBreakpoint, kind)
	assert.Equal(t, SuspendEventThread, policy)
	assert.Equal(t, modifiers, decoded)
}

func TestParseEventKindAndPolicy(t *testing.T) {
	t.Parallel()

	kind, err := ParseEventKind("class_prepare")
	require.NoError(t, err)
	assert.Equal(t, EventClassPrepare, kind)

	_, err = ParseEventKind("no_such_event")
	assert.Error(t, err)

	policy, err := ParseSuspendPolicy("event_thread")
	require.NoError(t, err)
	assert.Equal(t, SuspendEventThread, policy)
}
