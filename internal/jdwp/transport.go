/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// DefaultMaxPacketSize is the largest packet a transport accepts unless configured otherwise.
const DefaultMaxPacketSize = 64 * 1024 * 1024

var errTransportClosed = errors.New("transport is closed")

// Transport carries JDWP packets over a reliable, ordered byte stream.
// ReadPacket must only be called from one goroutine at a time; WritePacket is safe for concurrent use.
type Transport interface {
	// Handshake exchanges the JDWP handshake literal. The initiator (the debugger) writes first.
	// If ctx is done before the exchange completes, the transport is closed.
	Handshake(ctx context.Context, initiator bool) error

	// ReadPacket blocks until a complete packet is available.
	ReadPacket() (*Packet, error)

	WritePacket(p *Packet) error

	// Close closes the transport. Blocked ReadPacket and WritePacket calls return with an error.
	Close() error
}

// StreamTransport implements Transport over any io.ReadWriteCloser, such as a net.Conn.
type StreamTransport struct {
	conn          io.ReadWriteCloser
	reader        *bufio.Reader
	writer        *bufio.Writer
	maxPacketSize uint32

	// writeMu serializes packet writes so packets are never interleaved.
	writeMu sync.Mutex

	closed atomic.Bool
}

type StreamTransportOption func(*StreamTransport)

// WithMaxPacketSize limits the declared length of incoming packets.
// Longer packets are reported as *MalformedHeaderError.
func WithMaxPacketSize(size uint32) StreamTransportOption {
	return func(t *StreamTransport) {
		if size >= HeaderSize {
			t.maxPacketSize = size
		}
	}
}

func NewStreamTransport(conn io.ReadWriteCloser, opts ...StreamTransportOption) *StreamTransport {
	t := &StreamTransport{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		writer:        bufio.NewWriter(conn),
		maxPacketSize: DefaultMaxPacketSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DialTCP establishes a TCP connection to the specified address and returns a Transport.
func DialTCP(ctx context.Context, address string, opts ...StreamTransportOption) (*StreamTransport, error) {
	var d net.Dialer
	conn, dialErr := d.DialContext(ctx, "tcp", address)
	if dialErr != nil {
		return nil, fmt.Errorf("failed to dial TCP %s: %w", address, dialErr)
	}

	return NewStreamTransport(conn, opts...), nil
}

func (t *StreamTransport) Handshake(ctx context.Context, initiator bool) error {
	if t.closed.Load() {
		return errTransportClosed
	}

	stop := context.AfterFunc(ctx, func() {
		_ = t.Close()
	})
	defer stop()

	hsErr := exchangeHandshake(t.reader, t.conn, initiator)
	if hsErr != nil && ctx.Err() != nil {
		return fmt.Errorf("handshake interrupted: %w", errors.Join(ctx.Err(), hsErr))
	}
	return hsErr
}

func (t *StreamTransport) ReadPacket() (*Packet, error) {
	if t.closed.Load() {
		return nil, errTransportClosed
	}

	header := make([]byte, HeaderSize)
	if _, readErr := io.ReadFull(t.reader, header[:4]); readErr != nil {
		return nil, fmt.Errorf("failed to read packet length: %w", readErr)
	}

	length, _ := DeclaredLength(header)
	if length < HeaderSize || length > t.maxPacketSize {
		return nil, &MalformedHeaderError{Length: length}
	}

	buf := make([]byte, length)
	copy(buf, header[:4])
	if _, readErr := io.ReadFull(t.reader, buf[4:]); readErr != nil {
		return nil, fmt.Errorf("failed to read packet body: %w", readErr)
	}

	return Decode(buf)
}

func (t *StreamTransport) WritePacket(p *Packet) error {
	if t.closed.Load() {
		return errTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, writeErr := t.writer.Write(Encode(p)); writeErr != nil {
		return fmt.Errorf("failed to write packet: %w", writeErr)
	}
	if flushErr := t.writer.Flush(); flushErr != nil {
		return fmt.Errorf("failed to flush packet: %w", flushErr)
	}
	return nil
}

func (t *StreamTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

var _ Transport = (*StreamTransport)(nil)

// Listener accepts JDWP connections on a TCP port.
type Listener struct {
	listener net.Listener
	opts     []StreamTransportOption
}

// ListenTCP starts listening for debugger connections. Use "127.0.0.1:0" to pick a free port.
func ListenTCP(address string, opts ...StreamTransportOption) (*Listener, error) {
	l, listenErr := net.Listen("tcp", address)
	if listenErr != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, listenErr)
	}
	return &Listener{listener: l, opts: opts}, nil
}

// Accept waits for the next connection. If ctx is done first, the listener is closed.
func (l *Listener) Accept(ctx context.Context) (*StreamTransport, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.listener.Close()
	})
	defer stop()

	conn, acceptErr := l.listener.Accept()
	if acceptErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to accept connection: %w", acceptErr)
	}
	return NewStreamTransport(conn, l.opts...), nil
}

func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *Listener) Close() error {
	return l.listener.Close()
}
