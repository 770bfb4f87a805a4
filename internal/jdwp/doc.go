/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

/*
Package jdwp implements the Java Debug Wire Protocol (JDWP) packet engine
for both ends of a debugging connection.

# Architecture Overview

A Session owns one connection. It exchanges the "JDWP-Handshake" literal over a
Transport, then runs a single reader goroutine that decodes packets in arrival order.
Replies are correlated with pending commands by packet ID; commands from the peer are
queued and handled in order by the session's Dispatcher, so the reader never blocks.

# Key Components

  - Packet, Encode, Decode: the 11-byte header framing
  - Reader, Writer: packet data codecs with session-wide identifier sizes and tagged values
  - Dispatcher: request/reply correlation, command handlers and error replies
  - RequestManager: event requests, modifier filtering and suspend policy resolution
  - Profile, Negotiator: capability table, command gates and one-time negotiation
  - Client: the debugger role
  - Agent: the VM role, in front of a Backend that performs the actual VM operations

# Session Lifecycle

 1. Disconnected: the session was created but not started
 2. Handshaking: the debugger writes the handshake literal, the VM answers it
 3. Connected: commands and events flow
 4. Closing: Dispose, Exit, Close, end of stream, a write failure or a malformed header
 5. Disconnected: pending commands have failed with ErrVMDisconnected; the session cannot be reused

When a client session closes, its event listeners receive one locally made VM_DISCONNECTED
composite event before their channels are closed.

# Usage

Debugger side:

	client, err := jdwp.Dial(ctx, "localhost:5005", jdwp.ClientConfig{Logger: log})
	if err != nil {
		return err
	}
	defer client.Close()

	events := client.Events(ctx)
	_, err = client.SetEventRequest(ctx, jdwp.EventClassPrepare, jdwp.SuspendNone, jdwp.ClassMatch("com.example.*"))

VM side:

	agent, err := jdwp.NewAgent(backend, jdwp.AgentConfig{Logger: log})
	listener, err := jdwp.ListenTCP("127.0.0.1:5005")
	t, err := listener.Accept(ctx)
	err = agent.Serve(ctx, t)

# Errors

Framing errors (TruncatedPacketError, MalformedHeaderError, UnknownTagError) affect one packet,
except MalformedHeaderError, which closes the session. Error replies surface as *Error to the caller
that sent the command. MustPossessCapabilityError is returned before anything is written.
Session errors (ErrHandshakeFailed, ErrVMDisconnected, ErrNotConnected) are terminal.
*/
package jdwp
