/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

// Backend is the target VM an Agent serves. It performs the introspection commands
// and feeds raw VM events; the agent frames, routes and filters them.
type Backend interface {
	// HandleCommand answers every command the agent does not handle itself.
	// Use SessionFromContext to decode arguments with the session's identifier sizes.
	HandleCommand(ctx context.Context, p *Packet) ([]byte, error)

	// Suspend applies a suspend policy for an event raised by thread.
	Suspend(ctx context.Context, policy SuspendPolicy, thread ThreadID) error

	// Capabilities returns the capability names the VM can offer.
	Capabilities() []string

	// Events returns the feed of raw VM events. The channel may be closed when the VM has no more events.
	Events() <-chan Event
}

// AgentConfig contains configuration options for an agent.
type AgentConfig struct {
	// Profile describes capabilities and command gates. If nil, DefaultProfile() is used.
	Profile *Profile

	// Capabilities are the capabilities requested from the backend.
	// If nil, every capability the backend offers is requested.
	Capabilities []string

	// IDSizes are reported to the debugger and used for all packet data. If zero, DefaultIDSizes is used.
	IDSizes IDSizes

	// HandshakeTimeout bounds the handshake. If zero, DefaultHandshakeTimeout is used.
	HandshakeTimeout time.Duration

	// Logger is the logger for the agent. If nil, logging is disabled.
	Logger logr.Logger
}

// Agent is the VM side of JDWP. It answers the handshake, negotiates capabilities with its backend,
// owns the event requests of the session and turns raw VM events into Composite event packets.
type Agent struct {
	backend  Backend
	profile  *Profile
	config   AgentConfig
	granted  Capabilities
	requests *RequestManager
	log      logr.Logger

	serving atomic.Bool

	// Protects the fields below, and keeps Composite packets in order while events are held or released.
	lock       sync.Mutex
	session    *Session
	held       bool
	heldEvents [][]byte
}

// NewAgent negotiates capabilities with the backend and returns an agent ready to serve a debugger.
func NewAgent(backend Backend, config AgentConfig) (*Agent, error) {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	profile := config.Profile
	if profile == nil {
		profile = DefaultProfile()
	}
	if config.IDSizes == (IDSizes{}) {
		config.IDSizes = DefaultIDSizes
	}
	if err := config.IDSizes.Validate(); err != nil {
		return nil, err
	}

	offered := backend.Capabilities()
	requested := config.Capabilities
	if requested == nil {
		requested = offered
	}
	negotiator := NewNegotiator(profile, offered, log.WithName("capabilities"))
	granted, negotiateErr := negotiator.Negotiate(requested)
	if negotiateErr != nil {
		return nil, negotiateErr
	}

	return &Agent{
		backend:  backend,
		profile:  profile,
		config:   config,
		granted:  granted,
		requests: NewRequestManager(log.WithName("requests")),
		log:      log,
	}, nil
}

// Capabilities returns the capabilities granted to the agent.
func (a *Agent) Capabilities() Capabilities {
	return a.granted
}

// Requests returns the event requests of the current session.
func (a *Agent) Requests() *RequestManager {
	return a.requests
}

// Serve runs one debugger session over the transport and returns when the session ends.
// Event requests are dropped when the session ends. Only one session can be served at a time.
// Serve returns nil when the debugger disposed the session or closed the connection.
func (a *Agent) Serve(ctx context.Context, t Transport) error {
	if !a.serving.CompareAndSwap(false, true) {
		_ = t.Close()
		return errors.New("the agent is already serving a debugger")
	}
	defer a.serving.Store(false)

	session := NewSession(t, SessionConfig{
		Initiator:        false,
		HandshakeTimeout: a.config.HandshakeTimeout,
		IDSizes:          a.config.IDSizes,
		Logger:           a.log,
	})
	a.registerHandlers(session)

	a.lock.Lock()
	a.session = session
	a.held = false
	a.heldEvents = nil
	a.lock.Unlock()

	defer func() {
		a.requests.Reset()
		a.lock.Lock()
		a.session = nil
		a.heldEvents = nil
		a.lock.Unlock()
	}()

	if startErr := session.Start(ctx); startErr != nil {
		return startErr
	}
	a.log.Info("Debugger attached", "Session", session.ID())

	stop := context.AfterFunc(ctx, func() {
		_ = session.Close()
	})
	defer stop()

	events := a.backend.Events()
	for {
		select {
		case <-session.Done():
			a.log.Info("Debugger detached", "Session", session.ID())
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return session.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil // No more VM events; keep serving commands.
				continue
			}
			a.deliver(ctx, session, &ev)
		}
	}
}

// deliver matches a raw VM event against the event requests and sends the resulting Composite packet.
func (a *Agent) deliver(ctx context.Context, session *Session, ev *Event) {
	matches := a.requests.Match(ev)
	if len(matches) == 0 {
		eventsUnrequestedCounter.Add(ctx, 1)
		a.log.V(2).Info("Event not requested", "Event", ev.String())
		return
	}

	composite := compositeFor(ev, matches)
	if composite.SuspendPolicy != SuspendNone {
		if suspendErr := a.backend.Suspend(ctx, composite.SuspendPolicy, ev.Thread); suspendErr != nil {
			a.log.Error(suspendErr, "Could not suspend the VM for an event", "Event", ev.String(), "SuspendPolicy", composite.SuspendPolicy.String())
		}
	}

	data, encodeErr := EncodeComposite(session.IDSizes(), composite)
	if encodeErr != nil {
		a.log.Error(encodeErr, "Could not encode event", "Event", ev.String())
		return
	}
	eventsDeliveredCounter.Add(ctx, int64(len(composite.Events)), eventAttributes(ev.Kind))

	a.lock.Lock()
	defer a.lock.Unlock()
	if a.held {
		a.heldEvents = append(a.heldEvents, data)
		return
	}
	a.sendComposite(session, data)
}

// sendComposite must be called with a.lock held.
func (a *Agent) sendComposite(session *Session, data []byte) {
	if notifyErr := session.Dispatcher().Notify(CmdEventComposite, data); notifyErr != nil {
		a.log.V(1).Info("Could not send event", "Error", notifyErr.Error())
	}
}

func (a *Agent) registerHandlers(session *Session) {
	d := session.Dispatcher()
	d.Use(LogCommands(a.log), RequireCapabilities(a.profile, a.Capabilities))

	d.Handle(CmdVMIDSizes, func(_ context.Context, _ *Packet) ([]byte, error) {
		sizes := session.IDSizes()
		return encodeData(sizes, func(w *Writer) {
			w.Int32(int32(sizes.FieldID)).
				Int32(int32(sizes.MethodID)).
				Int32(int32(sizes.ObjectID)).
				Int32(int32(sizes.ReferenceTypeID)).
				Int32(int32(sizes.FrameID))
		})
	})
	d.Handle(CmdVMCapabilitiesNew, func(_ context.Context, _ *Packet) ([]byte, error) {
		return a.profile.EncodeCapabilitiesNew(a.granted), nil
	})
	d.Handle(CmdVMCapabilities, func(_ context.Context, _ *Packet) ([]byte, error) {
		return a.profile.EncodeCapabilities(a.granted), nil
	})

	d.Handle(CmdEventRequestSet, a.setEventRequest)
	d.Handle(CmdEventRequestClear, a.clearEventRequest)
	d.Handle(CmdEventRequestClearAllBreakpoints, func(_ context.Context, _ *Packet) ([]byte, error) {
		a.requests.ClearAllBreakpoints()
		return nil, nil
	})

	d.Handle(CmdVMHoldEvents, func(_ context.Context, _ *Packet) ([]byte, error) {
		a.lock.Lock()
		defer a.lock.Unlock()
		a.held = true
		return nil, nil
	})
	d.Handle(CmdVMReleaseEvents, func(_ context.Context, p *Packet) ([]byte, error) {
		a.lock.Lock()
		defer a.lock.Unlock()

		// The reply goes out before the held events.
		if writeErr := session.writePacket(NewReplyPacket(p.ID, ErrNone, nil)); writeErr != nil {
			return nil, ErrNoReply
		}
		a.held = false
		for _, data := range a.heldEvents {
			a.sendComposite(session, data)
		}
		a.heldEvents = nil
		return nil, ErrNoReply
	})

	d.Handle(CmdVMDispose, func(ctx context.Context, p *Packet) ([]byte, error) {
		// The backend resumes threads suspended for the debugger; not every backend needs to.
		if _, backendErr := a.backend.HandleCommand(ctx, p); backendErr != nil && ErrorCodeFor(backendErr) != ErrNotImplemented {
			a.log.Error(backendErr, "Backend failed to dispose the session")
		}
		a.requests.Reset()
		return a.replyAndClose(session, p)
	})
	d.Handle(CmdVMExit, func(ctx context.Context, p *Packet) ([]byte, error) {
		if _, backendErr := a.backend.HandleCommand(ctx, p); backendErr != nil {
			return nil, backendErr
		}
		return a.replyAndClose(session, p)
	})

	d.HandleUnregistered(a.backend.HandleCommand)
}

func (a *Agent) replyAndClose(session *Session, p *Packet) ([]byte, error) {
	if writeErr := session.writePacket(NewReplyPacket(p.ID, ErrNone, nil)); writeErr != nil {
		a.log.V(1).Info("Could not send reply", "Command", p.Key().String(), "Error", writeErr.Error())
	}
	_ = session.Close()
	return nil, ErrNoReply
}

func (a *Agent) setEventRequest(ctx context.Context, p *Packet) ([]byte, error) {
	session, _ := SessionFromContext(ctx)
	sizes := session.IDSizes()

	kind, policy, modifiers, decodeErr := DecodeEventRequestSet(sizes, p.Data)
	if decodeErr != nil {
		return nil, fmt.Errorf("invalid event request: %w", decodeErr)
	}
	if gateErr := a.profile.CheckEventRequest(a.granted, kind, modifiers); gateErr != nil {
		return nil, gateErr
	}

	id, setErr := a.requests.Set(kind, policy, modifiers)
	if setErr != nil {
		return nil, setErr
	}
	return encodeData(sizes, func(w *Writer) {
		w.Int32(int32(id))
	})
}

func (a *Agent) clearEventRequest(ctx context.Context, p *Packet) ([]byte, error) {
	session, _ := SessionFromContext(ctx)

	var kind EventKind
	var id RequestID
	if decodeErr := decodeData(session.IDSizes(), p.Data, func(r *Reader) {
		kind = EventKind(r.Uint8())
		id = RequestID(r.Int32())
	}); decodeErr != nil {
		return nil, decodeErr
	}

	a.requests.Clear(kind, id)
	return nil, nil
}
