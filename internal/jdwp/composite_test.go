/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeRoundTrip(t *testing.T) {
	t.Parallel()

	c := &Composite{
		SuspendPolicy: SuspendEventThread,
		Events: []Event{
			{Kind: EventVMStart, RequestID: 0, Thread: 1},
			{Kind: EventBreakpoint, RequestID: 7, Thread: 2, Location: testLocation},
			{Kind: EventMethodExitWithReturnValue, RequestID: 8, Thread: 2, Location: testLocation, Value: LongValue(-1)},
			{Kind: EventMonitorWait, RequestID: 9, Thread: 3, Object: ObjectValue(TagObject, 4), Location: testLocation, Timeout: 1000},
			{Kind: EventMonitorWaited, RequestID: 10, Thread: 3, Object: ObjectValue(TagObject, 4), Location: testLocation, TimedOut: true},
			{Kind: EventException, RequestID: 11, Thread: 5, Location: testLocation, Exception: ObjectValue(TagObject, 6)},
			{Kind: EventClassPrepare, RequestID: 12, Thread: 5, RefTypeTag: TypeTagClass, Class: 13, Signature: "Lcom/example/Widget;", Status: 7},
			{Kind: EventClassUnload, RequestID: 14, Signature: "Lcom/example/Gone;"},
			{
				Kind: EventFieldModification, RequestID: 15, Thread: 5, Location: testLocation,
				RefTypeTag: TypeTagClass, Class: 13, Field: 16, Object: ObjectValue(TagObject, 17), Value: IntValue(3),
			},
			{Kind: EventVMDeath, RequestID: 0},
		},
	}

	data, err := EncodeComposite(DefaultIDSizes, c)
	require.NoError(t, err)

	decoded, err := DecodeComposite(DefaultIDSizes, data)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestCompositeObjectsAreTagged(t *testing.T) {
	t.Parallel()

	c := &Composite{Events: []Event{
		{Kind: EventMonitorContendedEnter, RequestID: 1, Thread: 2, Object: Value{Object: 3}, Location: testLocation},
	}}

	data, err := EncodeComposite(DefaultIDSizes, c)
	require.NoError(t, err)

	decoded, err := DecodeComposite(DefaultIDSizes, data)
	require.NoError(t, err)
	require.Len(t, decoded.Events, 1)
	assert.Equal(t, ObjectValue(TagObject, 3), decoded.Events[0].Object)
}

func TestCompositeRejectsLocalEvents(t *testing.T) {
	t.Parallel()

	_, err := EncodeComposite(DefaultIDSizes, &Composite{Events: []Event{{Kind: EventVMDisconnected}}})
	assert.Error(t, err)
}

func TestDecodeCompositeErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodeComposite(DefaultIDSizes, []byte{byte(SuspendAll), 0x7F, 0, 0, 0})
	assert.Error(t, err, "event count beyond the data")

	_, err = DecodeComposite(DefaultIDSizes, []byte{byte(SuspendAll), 0, 0, 0, 1, 0xEE, 0, 0, 0, 0})
	assert.Error(t, err, "unknown event kind")

	_, err = DecodeComposite(DefaultIDSizes, []byte{byte(SuspendAll), 0, 0, 0, 1, byte(EventBreakpoint), 0, 0, 0, 1})
	assert.Error(t, err, "truncated event")
}
