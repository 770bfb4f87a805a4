/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"bytes"
	"fmt"
	"io"
)

// HandshakeLiteral is exchanged by both peers before any packet is sent.
const HandshakeLiteral = "JDWP-Handshake"

// exchangeHandshake writes the handshake literal and expects the peer to send it back.
// The initiator writes first; the other side reads first and only answers a correct handshake.
func exchangeHandshake(r io.Reader, w io.Writer, initiator bool) error {
	if initiator {
		if writeErr := writeHandshake(w); writeErr != nil {
			return writeErr
		}
		return readHandshake(r)
	}

	if readErr := readHandshake(r); readErr != nil {
		return readErr
	}
	return writeHandshake(w)
}

func writeHandshake(w io.Writer) error {
	if _, writeErr := io.WriteString(w, HandshakeLiteral); writeErr != nil {
		return fmt.Errorf("%w: failed to write handshake: %w", ErrHandshakeFailed, writeErr)
	}
	if f, isFlusher := w.(interface{ Flush() error }); isFlusher {
		if flushErr := f.Flush(); flushErr != nil {
			return fmt.Errorf("%w: failed to flush handshake: %w", ErrHandshakeFailed, flushErr)
		}
	}
	return nil
}

func readHandshake(r io.Reader) error {
	buf := make([]byte, len(HandshakeLiteral))
	if _, readErr := io.ReadFull(r, buf); readErr != nil {
		return fmt.Errorf("%w: failed to read handshake: %w", ErrHandshakeFailed, readErr)
	}
	if !bytes.Equal(buf, []byte(HandshakeLiteral)) {
		return fmt.Errorf("%w: unexpected handshake %q", ErrHandshakeFailed, buf)
	}
	return nil
}
