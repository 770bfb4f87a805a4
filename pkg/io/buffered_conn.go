/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package io

import (
	"errors"
	"io"
	"sync"
)

// BufferedConn is one end of an in-memory duplex connection made of two buffered pipes.
// Writes never block on the peer reading.
type BufferedConn struct {
	r         io.ReadCloser
	w         io.WriteCloser
	closeOnce sync.Once
	closeErr  error
}

func (c *BufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *BufferedConn) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

// CloseWrite makes the peer see end of stream after it drains the data already written.
// Local reads keep working.
func (c *BufferedConn) CloseWrite() error {
	return c.w.Close()
}

// Close ends the stream for the peer and fails pending and subsequent local reads with io.ErrClosedPipe.
func (c *BufferedConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(c.w.Close(), c.r.Close())
	})
	return c.closeErr
}

// NewBufferedConnPair returns the two ends of an in-memory duplex connection.
// What is written to one end is read from the other.
func NewBufferedConnPair() (*BufferedConn, *BufferedConn) {
	r1, w1 := NewBufferedPipe()
	r2, w2 := NewBufferedPipe()
	return &BufferedConn{r: r1, w: w2}, &BufferedConn{r: r2, w: w1}
}

var _ io.ReadWriteCloser = (*BufferedConn)(nil)
