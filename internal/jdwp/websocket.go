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
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const webSocketCloseTimeout = 100 * time.Millisecond

// webSocketStream exposes the binary messages of a WebSocket connection as a byte stream.
// Message boundaries carry no meaning; the JDWP framing lives in the stream.
type webSocketStream struct {
	conn *websocket.Conn

	readMu  sync.Mutex
	current io.Reader

	writeMu sync.Mutex
}

func (s *webSocketStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		if s.current == nil {
			msgType, r, readErr := s.conn.NextReader()
			if readErr != nil {
				var closeErr *websocket.CloseError
				if errors.As(readErr, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
					return 0, io.EOF
				}
				return 0, readErr
			}
			if msgType != websocket.BinaryMessage {
				continue // Only binary messages carry packet data.
			}
			s.current = r
		}

		n, readErr := s.current.Read(p)
		if errors.Is(readErr, io.EOF) {
			s.current = nil
			if n == 0 {
				continue
			}
			return n, nil
		}
		return n, readErr
	}
}

func (s *webSocketStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if writeErr := s.conn.WriteMessage(websocket.BinaryMessage, p); writeErr != nil {
		return 0, writeErr
	}
	return len(p), nil
}

func (s *webSocketStream) Close() error {
	// Best effort; the peer may already be gone. WriteControl may run concurrently with Write.
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(webSocketCloseTimeout),
	)
	return s.conn.Close()
}

// NewWebSocketTransport creates a Transport that carries the JDWP byte stream in binary WebSocket messages.
func NewWebSocketTransport(conn *websocket.Conn, opts ...StreamTransportOption) *StreamTransport {
	return NewStreamTransport(&webSocketStream{conn: conn}, opts...)
}

// DialWebSocket connects to a JDWP-over-WebSocket endpoint such as "ws://localhost:8000/jdwp".
func DialWebSocket(ctx context.Context, url string, opts ...StreamTransportOption) (*StreamTransport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 30 * time.Second,
	}
	conn, _, dialErr := dialer.DialContext(ctx, url, nil)
	if dialErr != nil {
		return nil, fmt.Errorf("failed to dial WebSocket %s: %w", url, dialErr)
	}
	return NewWebSocketTransport(conn, opts...), nil
}

// WebSocketHandler returns an HTTP handler that upgrades requests to WebSocket connections
// and passes the resulting transports to onConnect. onConnect runs on the request goroutine.
func WebSocketHandler(onConnect func(r *http.Request, t Transport), opts ...StreamTransportOption) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, upgradeErr := upgrader.Upgrade(w, r, nil)
		if upgradeErr != nil {
			return // Upgrade already replied with an HTTP error.
		}
		onConnect(r, NewWebSocketTransport(conn, opts...))
	})
}
