/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/microsoft/jdwp/internal/pubsub"
	"github.com/microsoft/jdwp/pkg/concurrency"
)

// ClientConfig contains configuration options for a debugger client.
type ClientConfig struct {
	// Profile describes capabilities and command gates. If nil, DefaultProfile() is used.
	Profile *Profile

	// HandshakeTimeout bounds the handshake. If zero, DefaultHandshakeTimeout is used.
	HandshakeTimeout time.Duration

	// Logger is the logger for the client. If nil, logging is disabled.
	Logger logr.Logger
}

// VersionInfo is the reply of VirtualMachine.Version.
type VersionInfo struct {
	Description string `json:"description"`
	JDWPMajor   int32  `json:"jdwpMajor"`
	JDWPMinor   int32  `json:"jdwpMinor"`
	VMVersion   string `json:"vmVersion"`
	VMName      string `json:"vmName"`
}

// ClassDefinition is one class passed to VirtualMachine.RedefineClasses.
type ClassDefinition struct {
	Class    ReferenceTypeID
	Bytecode []byte
}

// Client is the debugger side of a JDWP session.
type Client struct {
	session      *Session
	profile      *Profile
	log          logr.Logger
	capabilities Capabilities
	listeners    *pubsub.SubscriptionSet[*Composite]
}

// Dial connects to a VM listening for debuggers at a TCP address and attaches to it.
func Dial(ctx context.Context, address string, config ClientConfig) (*Client, error) {
	t, dialErr := DialTCP(ctx, address)
	if dialErr != nil {
		return nil, dialErr
	}
	return Attach(ctx, t, config)
}

// Attach performs the handshake over the transport, then reads the VM's identifier sizes
// and the capabilities granted for the session. The transport is closed if attaching fails.
func Attach(ctx context.Context, t Transport, config ClientConfig) (*Client, error) {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	profile := config.Profile
	if profile == nil {
		profile = DefaultProfile()
	}

	session := NewSession(t, SessionConfig{
		Initiator:        true,
		HandshakeTimeout: config.HandshakeTimeout,
		Logger:           log,
	})
	c := &Client{
		session:   session,
		profile:   profile,
		log:       log.WithValues("Session", session.ID()),
		listeners: pubsub.NewSubscriptionSet[*Composite](),
	}

	session.Dispatcher().Handle(CmdEventComposite, c.onComposite)
	session.OnClose(c.onSessionClosed)

	if startErr := session.Start(ctx); startErr != nil {
		return nil, startErr
	}

	if initErr := c.initialize(ctx); initErr != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to attach to the VM: %w", initErr)
	}
	return c, nil
}

func (c *Client) initialize(ctx context.Context) error {
	sizes, sizesErr := c.fetchIDSizes(ctx)
	if sizesErr != nil {
		return sizesErr
	}
	if setErr := c.session.SetIDSizes(sizes); setErr != nil {
		return setErr
	}

	data, capErr := c.session.Dispatcher().Call(ctx, CmdVMCapabilitiesNew, nil)
	if capErr != nil {
		return capErr
	}
	granted, decodeErr := c.profile.DecodeCapabilitiesNew(data)
	if decodeErr != nil {
		return decodeErr
	}
	c.capabilities = granted
	c.log.V(1).Info("Attached to VM", "IDSizes", sizes, "Capabilities", granted.String())
	return nil
}

func (c *Client) Session() *Session {
	return c.session
}

// Capabilities returns the capabilities the VM granted to this session.
func (c *Client) Capabilities() Capabilities {
	return c.capabilities
}

func (c *Client) IDSizes() IDSizes {
	return c.session.IDSizes()
}

// Send writes a command and returns a future for its reply.
// Commands that need a capability the session was not granted fail with *MustPossessCapabilityError
// without writing anything.
func (c *Client) Send(ctx context.Context, key CommandKey, data []byte) (*concurrency.Future[*Packet], error) {
	if err := c.profile.CheckCommand(c.capabilities, key); err != nil {
		return nil, err
	}
	return c.session.Dispatcher().Send(ctx, key, data)
}

// Call sends a command and waits for the reply data. Capability checks are the same as for Send.
func (c *Client) Call(ctx context.Context, key CommandKey, data []byte) ([]byte, error) {
	if err := c.profile.CheckCommand(c.capabilities, key); err != nil {
		return nil, err
	}
	return c.session.Dispatcher().Call(ctx, key, data)
}

func (c *Client) call(ctx context.Context, key CommandKey, args func(w *Writer), reply func(r *Reader)) error {
	var data []byte
	if args != nil {
		var encodeErr error
		if data, encodeErr = encodeData(c.session.IDSizes(), args); encodeErr != nil {
			return fmt.Errorf("failed to encode %v arguments: %w", key, encodeErr)
		}
	}

	replyData, callErr := c.Call(ctx, key, data)
	if callErr != nil {
		return callErr
	}
	if reply == nil {
		return nil
	}

	r := c.session.NewReader(replyData)
	reply(r)
	if decodeErr := r.Err(); decodeErr != nil {
		return fmt.Errorf("failed to decode %v reply: %w", key, decodeErr)
	}
	return nil
}

func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var v VersionInfo
	err := c.call(ctx, CmdVMVersion, nil, func(r *Reader) {
		v.Description = r.Utf8String()
		v.JDWPMajor = r.Int32()
		v.JDWPMinor = r.Int32()
		v.VMVersion = r.Utf8String()
		v.VMName = r.Utf8String()
	})
	return v, err
}

func (c *Client) fetchIDSizes(ctx context.Context) (IDSizes, error) {
	var sizes IDSizes
	err := c.call(ctx, CmdVMIDSizes, nil, func(r *Reader) {
		sizes.FieldID = int(r.Int32())
		sizes.MethodID = int(r.Int32())
		sizes.ObjectID = int(r.Int32())
		sizes.ReferenceTypeID = int(r.Int32())
		sizes.FrameID = int(r.Int32())
	})
	return sizes, err
}

// SetEventRequest registers an event request with the VM and returns its ID.
func (c *Client) SetEventRequest(ctx context.Context, kind EventKind, policy SuspendPolicy, modifiers ...Modifier) (RequestID, error) {
	if err := c.profile.CheckEventRequest(c.capabilities, kind, modifiers); err != nil {
		return 0, err
	}

	data, encodeErr := EncodeEventRequestSet(c.session.IDSizes(), kind, policy, modifiers)
	if encodeErr != nil {
		return 0, encodeErr
	}
	replyData, callErr := c.Call(ctx, CmdEventRequestSet, data)
	if callErr != nil {
		return 0, callErr
	}

	r := c.session.NewReader(replyData)
	id := RequestID(r.Int32())
	if decodeErr := r.Err(); decodeErr != nil {
		return 0, fmt.Errorf("failed to decode %v reply: %w", CmdEventRequestSet, decodeErr)
	}
	return id, nil
}

// ClearEventRequest removes an event request. Clearing an unknown request succeeds.
func (c *Client) ClearEventRequest(ctx context.Context, kind EventKind, id RequestID) error {
	return c.call(ctx, CmdEventRequestClear, func(w *Writer) {
		w.Uint8(uint8(kind)).Int32(int32(id))
	}, nil)
}

func (c *Client) ClearAllBreakpoints(ctx context.Context) error {
	return c.call(ctx, CmdEventRequestClearAllBreakpoints, nil, nil)
}

// ArraySetValues sets consecutive elements of an array, starting at index first.
// Values are written untagged, so they must already have the array's component type.
func (c *Client) ArraySetValues(ctx context.Context, array ArrayID, first int32, values []Value) error {
	return c.call(ctx, CmdArraySetValues, func(w *Writer) {
		w.ObjectID(array).Int32(first).Int32(int32(len(values)))
		for _, v := range values {
			w.UntaggedValue(v)
		}
	}, nil)
}

// RedefineClasses replaces the bytecode of loaded classes. It requires can_redefine_classes.
func (c *Client) RedefineClasses(ctx context.Context, classes []ClassDefinition) error {
	return c.call(ctx, CmdVMRedefineClasses, func(w *Writer) {
		w.Int32(int32(len(classes)))
		for _, def := range classes {
			w.ReferenceTypeID(def.Class).Bytes(def.Bytecode)
		}
	}, nil)
}

func (c *Client) Resume(ctx context.Context) error {
	return c.call(ctx, CmdVMResume, nil, nil)
}

func (c *Client) Suspend(ctx context.Context) error {
	return c.call(ctx, CmdVMSuspend, nil, nil)
}

// HoldEvents asks the VM to stop sending events until ReleaseEvents. Events are held, not discarded.
func (c *Client) HoldEvents(ctx context.Context) error {
	return c.call(ctx, CmdVMHoldEvents, nil, nil)
}

func (c *Client) ReleaseEvents(ctx context.Context) error {
	return c.call(ctx, CmdVMReleaseEvents, nil, nil)
}

// Dispose ends the debugging session and closes the connection. The VM keeps running.
func (c *Client) Dispose(ctx context.Context) error {
	err := c.call(ctx, CmdVMDispose, nil, nil)
	_ = c.session.Close()
	if errors.Is(err, ErrVMDisconnected) {
		return nil // The VM may close the connection before the reply arrives.
	}
	return err
}

// Exit terminates the VM with the given exit code and closes the connection.
func (c *Client) Exit(ctx context.Context, exitCode int32) error {
	err := c.call(ctx, CmdVMExit, func(w *Writer) { w.Int32(exitCode) }, nil)
	_ = c.session.Close()
	if errors.Is(err, ErrVMDisconnected) {
		return nil
	}
	return err
}

// Events returns a channel that receives Composite event packets until ctx is done or the session closes.
// When the session closes, a locally made VM_DISCONNECTED composite is delivered before the channel is closed.
// Events that arrive while nobody listens are dropped.
func (c *Client) Events(ctx context.Context) <-chan *Composite {
	return c.listeners.Subscribe(ctx).C()
}

// Close closes the connection without disposing the session on the VM side.
func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) onComposite(_ context.Context, p *Packet) ([]byte, error) {
	composite, decodeErr := DecodeComposite(c.session.IDSizes(), p.Data)
	if decodeErr != nil {
		// Only this packet is lost; the stream is still framed correctly.
		c.log.Info("Dropping undecodable event packet", "ID", p.ID, "Error", decodeErr.Error())
		return nil, ErrNoReply
	}

	c.log.V(1).Info("Events received", "SuspendPolicy", composite.SuspendPolicy.String(), "Count", len(composite.Events))
	c.listeners.Notify(composite)
	return nil, ErrNoReply
}

func (c *Client) onSessionClosed(reason error) {
	disconnected := &Composite{
		SuspendPolicy: SuspendNone,
		Events:        []Event{{Kind: EventVMDisconnected}},
	}
	if c.listeners.NotifyAndCancelAll(disconnected) && reason != nil {
		c.log.Info("Disconnected from VM", "Reason", reason.Error())
	}
}
