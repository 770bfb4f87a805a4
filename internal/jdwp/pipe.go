/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	usvc_io "github.com/microsoft/jdwp/pkg/io"
)

// Pipe returns two connected in-memory transports, for running a debugger and an agent in one process.
// Writes never block on the peer reading.
func Pipe(opts ...StreamTransportOption) (*StreamTransport, *StreamTransport) {
	debuggerConn, vmConn := usvc_io.NewBufferedConnPair()
	return NewStreamTransport(debuggerConn, opts...), NewStreamTransport(vmConn, opts...)
}
