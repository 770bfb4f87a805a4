/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/elastic/go-freelru"
	"github.com/go-logr/logr"

	"github.com/microsoft/jdwp/pkg/concurrency"
	"github.com/microsoft/jdwp/pkg/resiliency"
	"github.com/microsoft/jdwp/pkg/telemetry"
)

// Number of abandoned request IDs remembered to recognize late replies.
const abandonedRequestsCapacity = 256

// CommandHandler handles a command packet received from the peer.
// The returned data is sent back in a reply with the same ID. Returning ErrNoReply suppresses the reply;
// any other error is converted to a JDWP error code (see ErrorCodeFor).
type CommandHandler func(ctx context.Context, p *Packet) ([]byte, error)

// Dispatcher correlates outgoing commands with their replies and routes incoming commands to handlers.
type Dispatcher struct {
	session *Session
	log     logr.Logger

	ids     idCounter
	pending *pendingRequestMap

	// Requests whose callers stopped waiting, so a late reply is not mistaken for an unknown one.
	abandoned *freelru.SyncedLRU[uint32, CommandKey]

	handlersLock sync.RWMutex
	handlers     map[CommandKey]CommandHandler
	fallback     CommandHandler
	middleware   []CommandMiddleware
}

func newDispatcher(s *Session, log logr.Logger) *Dispatcher {
	abandoned, lruErr := freelru.NewSynced[uint32, CommandKey](abandonedRequestsCapacity, func(id uint32) uint32 { return id })
	if lruErr != nil {
		panic(fmt.Errorf("failed to create abandoned request cache: %w", lruErr))
	}

	return &Dispatcher{
		session:   s,
		log:       log,
		pending:   newPendingRequestMap(),
		abandoned: abandoned,
		handlers:  make(map[CommandKey]CommandHandler),
	}
}

// Handle registers the handler for a command. A nil handler removes the registration.
func (d *Dispatcher) Handle(key CommandKey, handler CommandHandler) {
	d.handlersLock.Lock()
	defer d.handlersLock.Unlock()
	if handler == nil {
		delete(d.handlers, key)
	} else {
		d.handlers[key] = handler
	}
}

// HandleUnregistered sets the handler for commands that have no registered handler.
// Without one, such commands are answered with NOT_IMPLEMENTED.
func (d *Dispatcher) HandleUnregistered(handler CommandHandler) {
	d.handlersLock.Lock()
	defer d.handlersLock.Unlock()
	d.fallback = handler
}

// Use adds middleware that wraps every handler, including the one for unregistered commands.
func (d *Dispatcher) Use(middleware ...CommandMiddleware) {
	d.handlersLock.Lock()
	defer d.handlersLock.Unlock()
	d.middleware = append(d.middleware, middleware...)
}

// Send writes a command and returns a future that completes with the reply packet.
// Error replies complete the future with *Error. The future completes with ErrVMDisconnected
// if the session closes before the reply arrives.
func (d *Dispatcher) Send(ctx context.Context, key CommandKey, data []byte) (*concurrency.Future[*Packet], error) {
	_, future, err := d.send(ctx, key, data)
	return future, err
}

func (d *Dispatcher) send(ctx context.Context, key CommandKey, data []byte) (uint32, *concurrency.Future[*Packet], error) {
	if err := d.session.checkConnected(); err != nil {
		return 0, nil, err
	}
	if ctx.Err() != nil {
		return 0, nil, ctx.Err()
	}

	id, ok := d.ids.Next()
	if !ok {
		return 0, nil, fmt.Errorf("packet ID space exhausted: %w", ErrVMDisconnected)
	}

	// Register before writing, so a fast reply always finds its request.
	future := concurrency.NewFuture[*Packet]()
	d.pending.Add(id, &pendingRequest{key: key, future: future})

	p := NewCommandPacket(id, key, data)
	if writeErr := d.session.writePacket(p); writeErr != nil {
		d.pending.Get(id)
		err := fmt.Errorf("failed to send %v: %w", key, writeErr)
		future.TryComplete(nil, err)
		return 0, nil, err
	}

	commandsSentCounter.Add(ctx, 1, commandAttributes(key))
	d.log.V(2).Info("Command sent", "ID", id, "Command", key.String(), "Length", len(data))
	return id, future, nil
}

// Call sends a command and waits for the reply data.
// If ctx is done first, the request is abandoned and a late reply is dropped.
func (d *Dispatcher) Call(ctx context.Context, key CommandKey, data []byte) ([]byte, error) {
	return telemetry.CallWithTelemetry(telemetry.Tracer(), "jdwp."+key.String(), ctx, func(spanCtx context.Context) ([]byte, error) {
		id, future, sendErr := d.send(spanCtx, key, data)
		if sendErr != nil {
			return nil, sendErr
		}
		telemetry.SetAttribute(spanCtx, "jdwp.packet.id", id)
		telemetry.SuppressIfSuccessful(spanCtx)

		reply, waitErr := future.Wait(spanCtx)
		if waitErr != nil {
			if !future.IsDone() {
				d.pending.Get(id)
				d.abandoned.Add(id, key)
			}
			return nil, waitErr
		}
		return reply.Data, nil
	})
}

// Notify writes a command the peer does not answer, such as Event.Composite.
func (d *Dispatcher) Notify(key CommandKey, data []byte) error {
	if err := d.session.checkConnected(); err != nil {
		return err
	}
	id, ok := d.ids.Next()
	if !ok {
		return fmt.Errorf("packet ID space exhausted: %w", ErrVMDisconnected)
	}
	if writeErr := d.session.writePacket(NewCommandPacket(id, key, data)); writeErr != nil {
		return fmt.Errorf("failed to send %v: %w", key, writeErr)
	}
	commandsSentCounter.Add(context.Background(), 1, commandAttributes(key))
	d.log.V(2).Info("Command sent", "ID", id, "Command", key.String(), "Length", len(data))
	return nil
}

// onReply completes the pending request a reply belongs to.
func (d *Dispatcher) onReply(p *Packet) {
	req := d.pending.Get(p.ID)
	if req == nil {
		if key, wasAbandoned := d.abandoned.Get(p.ID); wasAbandoned {
			d.abandoned.Remove(p.ID)
			d.log.V(1).Info("Late reply for abandoned request dropped", "ID", p.ID, "Command", key.String())
		} else {
			d.log.Info("Reply for unknown request dropped", "ID", p.ID, "ErrorCode", p.ErrorCode.String())
		}
		return
	}

	if p.ErrorCode != ErrNone {
		req.future.TryComplete(nil, &Error{Code: p.ErrorCode, CommandSet: req.key.Set, Command: req.key.Command})
		return
	}
	req.future.TryComplete(p, nil)
}

// onCommand runs the handler for a command and writes the reply.
func (d *Dispatcher) onCommand(ctx context.Context, p *Packet) {
	key := p.Key()

	d.handlersLock.RLock()
	handler, found := d.handlers[key]
	if !found {
		handler = d.fallback
	}
	if handler == nil {
		handler = notImplemented
	}
	handler = ChainHandler(handler, d.middleware...)
	d.handlersLock.RUnlock()

	data, err := d.invoke(context.WithValue(ctx, sessionContextKey{}, d.session), handler, p)
	commandsHandledCounter.Add(ctx, 1, commandAttributes(key))

	if errors.Is(err, ErrNoReply) {
		return
	}

	reply := NewReplyPacket(p.ID, ErrNone, data)
	if err != nil {
		reply = NewReplyPacket(p.ID, ErrorCodeFor(err), nil)
		d.log.V(1).Info("Command failed", "ID", p.ID, "Command", key.String(), "ErrorCode", reply.ErrorCode.String(), "Error", err.Error())
	}

	if writeErr := d.session.writePacket(reply); writeErr != nil {
		d.log.V(1).Info("Could not send reply", "ID", p.ID, "Command", key.String(), "Error", writeErr.Error())
	}
}

func (d *Dispatcher) invoke(ctx context.Context, handler CommandHandler, p *Packet) (data []byte, err error) {
	defer func() {
		if panicErr := resiliency.MakePanicError(recover(), d.log); panicErr != nil {
			data = nil
			err = &Error{Code: ErrInternal, CommandSet: p.CommandSet, Command: p.Command}
		}
	}()
	return handler(ctx, p)
}

func notImplemented(_ context.Context, p *Packet) ([]byte, error) {
	return nil, &Error{Code: ErrNotImplemented, CommandSet: p.CommandSet, Command: p.Command}
}

// failPending completes every pending request with err.
func (d *Dispatcher) failPending(err error) {
	if n := d.pending.DrainWithError(err); n > 0 {
		d.log.V(1).Info("Pending requests cancelled", "Count", n)
	}
}

// ErrorCodeFor maps an error returned by a command handler to the JDWP error code sent to the peer.
func ErrorCodeFor(err error) ErrorCode {
	var protoErr *Error
	var unknownTag *UnknownTagError
	var invalidFilter *InvalidFilterError
	var mustPossess *MustPossessCapabilityError

	switch {
	case err == nil:
		return ErrNone
	case errors.As(err, &protoErr):
		return protoErr.Code
	case errors.As(err, &unknownTag):
		return ErrInvalidTag
	case errors.As(err, &invalidFilter):
		return ErrIllegalArgument
	case errors.As(err, &mustPossess):
		return ErrNotImplemented
	case errors.Is(err, ErrInvalidEventKind):
		return ErrInvalidEventType
	case errors.Is(err, errInvalidCount):
		return ErrInvalidCount
	case errors.Is(err, ErrTypeMismatch):
		return ErrCodeTypeMismatch
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, errIllegalArgument):
		return ErrIllegalArgument
	case errors.Is(err, ErrVMDisconnected):
		return ErrVMDead
	default:
		return ErrInternal
	}
}
