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
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/smallnest/chanx"

	"github.com/microsoft/jdwp/pkg/logger"
	"github.com/microsoft/jdwp/pkg/resiliency"
)

// DefaultHandshakeTimeout bounds the handshake unless SessionConfig says otherwise.
const DefaultHandshakeTimeout = 30 * time.Second

const commandQueueCapacity = 16

type sessionContextKey struct{}

// SessionFromContext returns the session a command handler runs for.
// Handlers use it to decode arguments with the session's identifier sizes.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok
}

// SessionState is the lifecycle state of a Session.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateHandshaking
	StateConnected
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateHandshaking:
		return "Handshaking"
	case StateConnected:
		return "Connected"
	case StateClosing:
		return "Closing"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// SessionConfig contains configuration options for a session.
type SessionConfig struct {
	// Initiator is true for the debugger side, which writes the handshake first.
	Initiator bool

	// HandshakeTimeout bounds the handshake. If zero, DefaultHandshakeTimeout is used.
	HandshakeTimeout time.Duration

	// IDSizes are the initial identifier sizes. If zero, DefaultIDSizes is used.
	IDSizes IDSizes

	// Logger is the logger for the session. If nil, logging is disabled.
	Logger logr.Logger
}

// Session owns one JDWP connection: its transport, its lifecycle state and its command dispatcher.
// A session is used once; after it closes it stays disconnected.
type Session struct {
	id        string
	transport Transport
	config    SessionConfig
	log       logr.Logger

	state      atomic.Int32
	started    atomic.Bool
	sizes      atomic.Pointer[IDSizes]
	dispatcher *Dispatcher

	// Incoming commands are handled in arrival order on a separate goroutine, so the reader never blocks.
	commands *chanx.UnboundedChan[*Packet]

	lifetimeCtx context.Context
	cancel      context.CancelFunc

	closeOnce   sync.Once
	closeReason error
	done        chan struct{}

	hooksLock sync.Mutex
	onClose   []func(reason error)
}

// NewSession creates a session over the transport. Call Start to perform the handshake,
// and Close to release the session resources.
func NewSession(t Transport, config SessionConfig) *Session {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	id := uuid.New().String()
	log = log.WithValues(logger.SESSION_LOG_STREAM_ID, id)

	sizes := config.IDSizes
	if sizes == (IDSizes{}) {
		sizes = DefaultIDSizes
	}

	s := &Session{
		id:        id,
		transport: t,
		config:    config,
		log:       log,
		done:      make(chan struct{}),
	}
	s.lifetimeCtx, s.cancel = context.WithCancel(context.Background())
	s.commands = chanx.NewUnboundedChan[*Packet](s.lifetimeCtx, commandQueueCapacity)
	s.sizes.Store(&sizes)
	s.state.Store(int32(StateDisconnected))
	s.dispatcher = newDispatcher(s, log.WithName("dispatcher"))
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Dispatcher returns the dispatcher used to send commands and register command handlers.
func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// IDSizes returns the identifier sizes used to encode and decode packet data.
func (s *Session) IDSizes() IDSizes {
	return *s.sizes.Load()
}

func (s *Session) SetIDSizes(sizes IDSizes) error {
	if err := sizes.Validate(); err != nil {
		return err
	}
	s.sizes.Store(&sizes)
	s.log.V(1).Info("ID sizes set", "Sizes", sizes)
	return nil
}

// NewReader returns a reader for packet data that uses the session's identifier sizes.
func (s *Session) NewReader(data []byte) *Reader {
	return NewReader(data, s.IDSizes())
}

// NewWriter returns a writer for packet data that uses the session's identifier sizes.
func (s *Session) NewWriter() *Writer {
	return NewWriter(s.IDSizes())
}

// OnClose registers a function that is called once when the session closes.
// The reason is nil for an orderly close. If the session is already closed, fn runs immediately.
func (s *Session) OnClose(fn func(reason error)) {
	s.hooksLock.Lock()
	select {
	case <-s.done:
		s.hooksLock.Unlock()
		fn(s.closeReason)
		return
	default:
	}
	s.onClose = append(s.onClose, fn)
	s.hooksLock.Unlock()
}

// Done returns a channel that is closed when the session has closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the session closed, or nil if it is open or was closed in an orderly way.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.closeReason
	default:
		return nil
	}
}

// Start performs the handshake and starts reading packets.
// On success the session is connected. On failure the session is closed and cannot be restarted.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session has already been started")
	}
	if s.isClosed() || !s.state.CompareAndSwap(int32(StateDisconnected), int32(StateHandshaking)) {
		return fmt.Errorf("%w: session was closed before it started", ErrVMDisconnected)
	}

	timeout := s.config.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	hsCtx, hsCancel := context.WithTimeout(ctx, timeout)
	defer hsCancel()

	if hsErr := s.transport.Handshake(hsCtx, s.config.Initiator); hsErr != nil {
		s.log.Info("Handshake failed", "Error", hsErr.Error())
		s.closeWithError(hsErr)
		return hsErr
	}

	if !s.state.CompareAndSwap(int32(StateHandshaking), int32(StateConnected)) {
		return fmt.Errorf("%w: session was closed during the handshake", ErrVMDisconnected)
	}
	s.log.V(1).Info("Session connected", "Initiator", s.config.Initiator)

	go s.readLoop()
	go s.commandLoop()
	return nil
}

// Close closes the session. Pending requests complete with ErrVMDisconnected.
func (s *Session) Close() error {
	s.closeWithError(nil)
	return nil
}

func (s *Session) closeWithError(reason error) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		if reason != nil {
			s.log.V(1).Info("Session closing", "Reason", reason.Error())
		} else {
			s.log.V(1).Info("Session closing")
		}

		s.cancel()
		if closeErr := s.transport.Close(); closeErr != nil {
			s.log.V(1).Info("Error closing transport", "Error", closeErr.Error())
		}

		disconnectErr := ErrVMDisconnected
		if reason != nil {
			disconnectErr = fmt.Errorf("%w: %w", ErrVMDisconnected, reason)
		}
		s.dispatcher.failPending(disconnectErr)

		s.hooksLock.Lock()
		s.closeReason = reason
		hooks := s.onClose
		s.onClose = nil
		s.state.Store(int32(StateDisconnected))
		close(s.done)
		s.hooksLock.Unlock()

		for _, hook := range hooks {
			s.runHook(hook, reason)
		}
		logger.ReleaseSessionLog(s.id)
	})
}

func (s *Session) runHook(hook func(error), reason error) {
	defer func() {
		_ = resiliency.MakePanicError(recover(), s.log)
	}()
	hook(reason)
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// checkConnected returns nil if commands may be sent.
func (s *Session) checkConnected() error {
	if s.State() == StateConnected {
		return nil
	}
	if s.isClosed() || s.State() == StateClosing {
		return fmt.Errorf("%w: %w", ErrNotConnected, ErrVMDisconnected)
	}
	return ErrNotConnected
}

// writePacket writes a packet. A write failure closes the session.
func (s *Session) writePacket(p *Packet) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if writeErr := s.transport.WritePacket(p); writeErr != nil {
		s.closeWithError(writeErr)
		return fmt.Errorf("%w: %w", ErrVMDisconnected, writeErr)
	}
	return nil
}

func (s *Session) readLoop() {
	defer func() {
		if panicErr := resiliency.MakePanicError(recover(), s.log); panicErr != nil {
			s.closeWithError(panicErr)
		}
	}()

	for {
		p, readErr := s.transport.ReadPacket()
		if readErr != nil {
			if s.lifetimeCtx.Err() != nil {
				return // Closed locally
			}
			if errors.Is(readErr, io.EOF) {
				s.log.V(1).Info("Peer closed the connection")
				s.closeWithError(nil)
				return
			}
			s.log.Info("Failed to read packet, closing session", "Error", readErr.Error())
			s.closeWithError(readErr)
			return
		}

		if p.IsReply() {
			s.log.V(2).Info("Reply received", "ID", p.ID, "ErrorCode", p.ErrorCode.String(), "Length", len(p.Data))
			s.dispatcher.onReply(p)
			continue
		}

		select {
		case s.commands.In <- p:
		case <-s.lifetimeCtx.Done():
			return
		}
	}
}

func (s *Session) commandLoop() {
	for {
		select {
		case <-s.lifetimeCtx.Done():
			return
		case p, ok := <-s.commands.Out:
			if !ok {
				return
			}
			s.dispatcher.onCommand(s.lifetimeCtx, p)
		}
	}
}
