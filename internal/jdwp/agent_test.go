/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/jdwp/pkg/testutil"
)

const (
	defaultAgentTestTimeout = 30 * time.Second
	waitPollInterval        = 20 * time.Millisecond
)

type agentFixture struct {
	agent     *Agent
	client    *Client
	backend   *testBackend
	vmEnd     *StreamTransport
	serveDone chan error
}

func startAgent(t *testing.T, ctx context.Context, backend *testBackend, config AgentConfig) *agentFixture {
	config.Logger = testutil.NewLogForTesting(t.Name() + "-agent")
	agent, err := NewAgent(backend, config)
	require.NoError(t, err)

	debuggerEnd, vmEnd := Pipe()
	f := &agentFixture{
		agent:     agent,
		backend:   backend,
		vmEnd:     vmEnd,
		serveDone: make(chan error, 1),
	}
	go func() {
		f.serveDone <- agent.Serve(ctx, vmEnd)
	}()

	f.client, err = Attach(ctx, debuggerEnd, ClientConfig{Logger: testutil.NewLogForTesting(t.Name() + "-client")})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.client.Close()
		_ = vmEnd.Close()
	})
	return f
}

func (f *agentFixture) waitServe(t *testing.T, ctx context.Context) error {
	select {
	case err := <-f.serveDone:
		return err
	case <-ctx.Done():
		require.Fail(t, "the agent did not stop serving")
		return nil
	}
}

func receiveComposite(t *testing.T, ctx context.Context, events <-chan *Composite) *Composite {
	select {
	case c, ok := <-events:
		require.True(t, ok, "event channel closed")
		return c
	case <-ctx.Done():
		require.Fail(t, "no event received")
		return nil
	}
}

// A breakpoint request is reported with its request ID and the requested suspend policy.
func TestBreakpointEventDelivered(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	f := startAgent(t, ctx, newTestBackend(), AgentConfig{})
	events := f.client.Events(ctx)

	for range 6 {
		_, err := f.client.SetEventRequest(ctx, EventThreadStart, SuspendNone)
		require.NoError(t, err)
	}

	x := Location{Type: TypeTagClass, Class: 0x500, Method: 0x600, Index: 12}
	id, err := f.client.SetEventRequest(ctx, EventBreakpoint, SuspendAll, LocationOnly(x))
	require.NoError(t, err)
	require.Equal(t, RequestID(7), id)

	f.backend.events <- Event{Kind: EventBreakpoint, Thread: 99, Location: x}

	c := receiveComposite(t, ctx, events)
	assert.Equal(t, SuspendAll, c.SuspendPolicy)
	require.Len(t, c.Events, 1)
	assert.Equal(t, EventBreakpoint, c.Events[0].Kind)
	assert.Equal(t, RequestID(7), c.Events[0].RequestID)
	assert.Equal(t, ThreadID(99), c.Events[0].Thread)
	assert.Equal(t, x, c.Events[0].Location)

	// The VM was suspended before the event was sent.
	assert.Equal(t, []SuspendPolicy{SuspendAll}, f.backend.suspendPolicies())
}

// ArrayReference.SetValues with three ints gets an empty reply.
func TestArraySetValues(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	f := startAgent(t, ctx, newTestBackend(), AgentConfig{})

	err := f.client.ArraySetValues(ctx, 42, 0, []Value{IntValue(1), IntValue(2), IntValue(3)})
	require.NoError(t, err)
	assert.Equal(t, []Value{IntValue(1), IntValue(2), IntValue(3), IntValue(0)}, f.backend.array(42))

	err = f.client.ArraySetValues(ctx, 42, 3, []Value{IntValue(4), IntValue(5)})
	assert.ErrorIs(t, err, &Error{Code: ErrInvalidIndex})

	err = f.client.ArraySetValues(ctx, 7, 0, nil)
	assert.ErrorIs(t, err, &Error{Code: ErrInvalidObject})
}

// Closing the transport fails pending commands and reports VM_DISCONNECTED once.
func TestTransportCloseFailsPendingCommands(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	f := startAgent(t, ctx, newTestBackend(), AgentConfig{})
	events := f.client.Events(ctx)

	threadName := func() []byte {
		w := f.client.Session().NewWriter()
		w.ObjectID(1)
		return w.Data()
	}
	first, err := f.client.Send(ctx, CmdThreadName, threadName())
	require.NoError(t, err)
	second, err := f.client.Send(ctx, CmdThreadName, threadName())
	require.NoError(t, err)

	select {
	case <-f.backend.blocked:
	case <-ctx.Done():
		require.Fail(t, "the backend never received the command")
	}

	require.NoError(t, f.vmEnd.Close())

	_, err = first.Wait(ctx)
	assert.ErrorIs(t, err, ErrVMDisconnected)
	_, err = second.Wait(ctx)
	assert.ErrorIs(t, err, ErrVMDisconnected)

	var received []*Composite
	for c := range events {
		received = append(received, c)
	}
	require.Len(t, received, 1)
	assert.Equal(t, &Composite{SuspendPolicy: SuspendNone, Events: []Event{{Kind: EventVMDisconnected}}}, received[0])

	// Listeners that subscribe after the disconnect get a closed channel.
	_, open := <-f.client.Events(ctx)
	assert.False(t, open)

	_ = f.waitServe(t, ctx)
}

// A command gated by a capability works only when the capability was granted.
func TestRedefineClassesRequiresCapability(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	// The subtests run in parallel, after this function returns.
	t.Cleanup(cancel)

	classes := []ClassDefinition{{Class: 0x77, Bytecode: []byte{0xCA, 0xFE, 0xBA, 0xBE}}}

	t.Run("granted", func(t *testing.T) {
		t.Parallel()

		backend := newTestBackend("can_redefine_classes", "can_pop_frames")
		f := startAgent(t, ctx, backend, AgentConfig{Capabilities: []string{"can_redefine_classes"}})
		assert.True(t, f.client.Capabilities().Has("can_redefine_classes"))
		assert.False(t, f.client.Capabilities().Has("can_pop_frames"))

		require.NoError(t, f.client.RedefineClasses(ctx, classes))
		backend.lock.Lock()
		defer backend.lock.Unlock()
		assert.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE}, backend.redefined[0x77])
	})

	t.Run("not granted", func(t *testing.T) {
		t.Parallel()

		backend := newTestBackend("can_redefine_classes")
		f := startAgent(t, ctx, backend, AgentConfig{Capabilities: []string{}})
		assert.Zero(t, f.client.Capabilities().Len())

		err := f.client.RedefineClasses(ctx, classes)
		var mustPossess *MustPossessCapabilityError
		require.ErrorAs(t, err, &mustPossess)
		assert.Equal(t, "can_redefine_classes", mustPossess.Capability)

		// The agent enforces the grant too.
		_, err = f.client.Session().Dispatcher().Call(ctx, CmdVMRedefineClasses, []byte{0, 0, 0, 0})
		assert.ErrorIs(t, err, &Error{Code: ErrNotImplemented})
		assert.False(t, backend.received(CmdVMRedefineClasses))
	})
}

func TestEventFiltering(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	f := startAgent(t, ctx, newTestBackend(), AgentConfig{})
	events := f.client.Events(ctx)

	id, err := f.client.SetEventRequest(ctx, EventClassPrepare, SuspendEventThread, ClassMatch("com.example.*"))
	require.NoError(t, err)

	f.backend.events <- Event{Kind: EventClassPrepare, Thread: 1, RefTypeTag: TypeTagClass, Class: 2, Signature: "Ljava/lang/Object;"}
	f.backend.events <- Event{Kind: EventClassPrepare, Thread: 1, RefTypeTag: TypeTagClass, Class: 3, Signature: "Lcom/example/App;", Status: 7}

	c := receiveComposite(t, ctx, events)
	require.Len(t, c.Events, 1)
	assert.Equal(t, id, c.Events[0].RequestID)
	assert.Equal(t, "Lcom/example/App;", c.Events[0].Signature)
	assert.Equal(t, int32(7), c.Events[0].Status)
	assert.Equal(t, SuspendEventThread, c.SuspendPolicy)

	// Cleared requests stop matching; VM_DEATH is reported without a request.
	require.NoError(t, f.client.ClearEventRequest(ctx, EventClassPrepare, id))
	require.NoError(t, f.client.ClearEventRequest(ctx, EventClassPrepare, id))
	f.backend.events <- Event{Kind: EventClassPrepare, Thread: 1, Class: 3, Signature: "Lcom/example/App;"}
	f.backend.events <- Event{Kind: EventVMDeath}

	c = receiveComposite(t, ctx, events)
	require.Len(t, c.Events, 1)
	assert.Equal(t, EventVMDeath, c.Events[0].Kind)
	assert.Equal(t, RequestID(0), c.Events[0].RequestID)
	assert.Equal(t, SuspendNone, c.SuspendPolicy)
}

func TestInvalidEventRequests(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	f := startAgent(t, ctx, newTestBackend(), AgentConfig{})

	_, err := f.client.SetEventRequest(ctx, EventVMDeath, SuspendNone, ClassMatch("java.*"))
	var invalidFilter *InvalidFilterError
	assert.ErrorAs(t, err, &invalidFilter, "checked before anything is sent")

	// The agent applies the same checks to raw requests.
	data, err := EncodeEventRequestSet(f.client.IDSizes(), EventThreadStart, SuspendNone, []Modifier{LocationOnly(testLocation)})
	require.NoError(t, err)
	_, err = f.client.Call(ctx, CmdEventRequestSet, data)
	assert.ErrorIs(t, err, &Error{Code: ErrIllegalArgument})

	// The filter is rejected before the VM_DEATH capability is checked.
	data, err = EncodeEventRequestSet(f.client.IDSizes(), EventVMDeath, SuspendNone, []Modifier{ClassMatch("java.*")})
	require.NoError(t, err)
	_, err = f.client.Call(ctx, CmdEventRequestSet, data)
	assert.ErrorIs(t, err, &Error{Code: ErrIllegalArgument})

	data, err = EncodeEventRequestSet(f.client.IDSizes(), EventKind(77), SuspendNone, nil)
	require.NoError(t, err)
	_, err = f.client.Call(ctx, CmdEventRequestSet, data)
	assert.ErrorIs(t, err, &Error{Code: ErrInvalidEventType})

	_, err = f.client.SetEventRequest(ctx, EventMonitorWait, SuspendNone)
	var mustPossess *MustPossessCapabilityError
	assert.ErrorAs(t, err, &mustPossess)

	assert.Empty(t, f.agent.Requests().Requests())
}

func TestHoldAndReleaseEvents(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	f := startAgent(t, ctx, newTestBackend(), AgentConfig{})
	events := f.client.Events(ctx)

	id, err := f.client.SetEventRequest(ctx, EventThreadStart, SuspendNone)
	require.NoError(t, err)
	require.NoError(t, f.client.HoldEvents(ctx))

	f.backend.events <- Event{Kind: EventThreadStart, Thread: 1}
	f.backend.events <- Event{Kind: EventThreadStart, Thread: 2}
	require.Eventually(t, func() bool {
		f.agent.lock.Lock()
		defer f.agent.lock.Unlock()
		return len(f.agent.heldEvents) == 2
	}, defaultAgentTestTimeout, waitPollInterval)

	select {
	case c := <-events:
		require.Failf(t, "event delivered while events are held", "%v", c)
	default:
	}

	require.NoError(t, f.client.ReleaseEvents(ctx))
	for _, thread := range []ThreadID{1, 2} {
		c := receiveComposite(t, ctx, events)
		require.Len(t, c.Events, 1)
		assert.Equal(t, id, c.Events[0].RequestID)
		assert.Equal(t, thread, c.Events[0].Thread)
	}
}

func TestVersionAndIDSizes(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	small := IDSizes{FieldID: 4, MethodID: 4, ObjectID: 4, ReferenceTypeID: 4, FrameID: 4}
	f := startAgent(t, ctx, newTestBackend(), AgentConfig{IDSizes: small})
	assert.Equal(t, small, f.client.IDSizes())

	v, err := f.client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, VersionInfo{
		Description: "Test VM 17",
		JDWPMajor:   17,
		JDWPMinor:   0,
		VMVersion:   "17.0.2",
		VMName:      "TestVM",
	}, v)

	// Events are encoded with the negotiated sizes.
	events := f.client.Events(ctx)
	_, err = f.client.SetEventRequest(ctx, EventSingleStep, SuspendEventThread, StepModifier(5, 0, 1))
	require.NoError(t, err)
	f.backend.events <- Event{Kind: EventSingleStep, Thread: 5, Location: Location{Type: TypeTagClass, Class: 0xFFFFFFFF, Method: 1, Index: 2}}

	c := receiveComposite(t, ctx, events)
	require.Len(t, c.Events, 1)
	assert.Equal(t, ReferenceTypeID(0xFFFFFFFF), c.Events[0].Location.Class)

	_, err = f.client.Call(ctx, CommandKey{Set: SetClassType, Command: 1}, nil)
	assert.ErrorIs(t, err, &Error{Code: ErrNotImplemented})
}

func TestDispose(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	f := startAgent(t, ctx, newTestBackend(), AgentConfig{})
	_, err := f.client.SetEventRequest(ctx, EventThreadDeath, SuspendNone)
	require.NoError(t, err)
	require.Len(t, f.agent.Requests().Requests(), 1)

	require.NoError(t, f.client.Dispose(ctx))
	assert.NoError(t, f.waitServe(t, ctx))
	assert.Empty(t, f.agent.Requests().Requests())

	f.backend.lock.Lock()
	assert.True(t, f.backend.disposed)
	f.backend.lock.Unlock()

	_, err = f.client.Version(ctx)
	assert.ErrorIs(t, err, ErrVMDisconnected)

	// The agent can serve the next debugger.
	debuggerEnd, vmEnd := Pipe()
	defer vmEnd.Close()
	go func() {
		f.serveDone <- f.agent.Serve(ctx, vmEnd)
	}()
	next, err := Attach(ctx, debuggerEnd, ClientConfig{})
	require.NoError(t, err)
	defer next.Close()

	_, err = next.Version(ctx)
	assert.NoError(t, err)
	assert.Empty(t, f.agent.Requests().Requests())
}

func TestExit(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	f := startAgent(t, ctx, newTestBackend(), AgentConfig{})
	require.NoError(t, f.client.Exit(ctx, 3))
	assert.NoError(t, f.waitServe(t, ctx))

	f.backend.lock.Lock()
	defer f.backend.lock.Unlock()
	assert.True(t, f.backend.exited)
	assert.Equal(t, int32(3), f.backend.exitCode)
}

func TestAgentServesOneSessionAtATime(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	f := startAgent(t, ctx, newTestBackend(), AgentConfig{})

	_, other := Pipe()
	err := f.agent.Serve(ctx, other)
	assert.Error(t, err)

	_, err = f.client.Version(ctx)
	assert.NoError(t, err, "the first session is unaffected")
}

func TestAgentStopsWhenContextIsDone(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, defaultAgentTestTimeout)
	defer cancel()

	serveCtx, serveCancel := context.WithCancel(ctx)
	f := startAgent(t, serveCtx, newTestBackend(), AgentConfig{})
	events := f.client.Events(ctx)

	serveCancel()
	assert.ErrorIs(t, f.waitServe(t, ctx), context.Canceled)

	c := receiveComposite(t, ctx, events)
	assert.Equal(t, EventVMDisconnected, c.Events[0].Kind)
}

func TestNewAgentValidation(t *testing.T) {
	t.Parallel()

	_, err := NewAgent(newTestBackend(), AgentConfig{IDSizes: IDSizes{FieldID: 9, MethodID: 8, ObjectID: 8, ReferenceTypeID: 8, FrameID: 8}})
	assert.Error(t, err)

	// Odd widths are legal.
	_, err = NewAgent(newTestBackend(), AgentConfig{IDSizes: IDSizes{FieldID: 3, MethodID: 8, ObjectID: 8, ReferenceTypeID: 8, FrameID: 8}})
	assert.NoError(t, err)

	agent, err := NewAgent(newTestBackend("can_pop_frames", "can_fly"), AgentConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"can_pop_frames"}, agent.Capabilities().Names())
}
