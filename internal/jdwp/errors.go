/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a command is sent before the session reached the connected state.
	ErrNotConnected = errors.New("session is not connected")

	// ErrVMDisconnected is returned for every pending and future operation once the session is closing.
	ErrVMDisconnected = errors.New("VM disconnected")

	// ErrHandshakeFailed is returned when the peer did not answer with the JDWP handshake literal.
	ErrHandshakeFailed = errors.New("JDWP handshake failed")

	// ErrAlreadyNegotiated is returned when capabilities are negotiated more than once.
	ErrAlreadyNegotiated = errors.New("capabilities already negotiated")

	// ErrTypeMismatch is returned when a value cannot be widened to the requested type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidEventKind is returned when an event request names a kind that cannot be requested.
	ErrInvalidEventKind = errors.New("invalid event kind")

	// ErrNoReply is returned by a command handler to indicate that the command must not be answered.
	ErrNoReply = errors.New("command does not take a reply")

	// Malformed command arguments are answered with ILLEGAL_ARGUMENT.
	errIllegalArgument = errors.New("illegal argument")
)

// TruncatedPacketError is returned when fewer bytes are available than the packet header declares.
// It is a framing condition: the caller should buffer more data and retry.
type TruncatedPacketError struct {
	Declared  uint32
	Available int
}

func (e *TruncatedPacketError) Error() string {
	if e.Declared == 0 {
		return fmt.Sprintf("truncated packet: %d bytes available, length field incomplete", e.Available)
	}
	return fmt.Sprintf("truncated packet: %d bytes available, %d declared", e.Available, e.Declared)
}

// MalformedHeaderError is returned when the declared packet length cannot be valid.
// The byte stream can no longer be framed, so the session closes.
type MalformedHeaderError struct {
	Length uint32
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed packet header: declared length %d", e.Length)
}

// UnknownTagError is returned when a value carries a tag byte this engine does not know.
// Only the packet being decoded is affected.
type UnknownTagError struct {
	Tag byte
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown value tag %d (%q)", e.Tag, rune(e.Tag))
}

// Error is a JDWP error reply to a command.
type Error struct {
	Code       ErrorCode
	CommandSet CommandSet
	Command    Command
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v failed: %v (%d)", CommandKey{Set: e.CommandSet, Command: e.Command}, e.Code, uint16(e.Code))
}

// Is makes errors.Is match another *Error with the same code, regardless of the command.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code && (other.CommandSet == 0 || other.CommandSet == e.CommandSet)
	}
	return false
}

// MustPossessCapabilityError is returned without contacting the VM
// when a command or event request requires a capability the session was not granted.
type MustPossessCapabilityError struct {
	Capability string
	Operation  string
}

func (e *MustPossessCapabilityError) Error() string {
	return fmt.Sprintf("%s requires capability %s", e.Operation, e.Capability)
}

// InvalidFilterError is returned when an event request modifier cannot be used with the request's event kind.
type InvalidFilterError struct {
	Modifier ModifierKind
	Kind     EventKind
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("modifier %v is not valid for %v event requests", e.Modifier, e.Kind)
}

// IsSessionError returns true if the error is terminal for the session.
// This includes handshake failures, disconnection and use before connecting.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrHandshakeFailed) ||
		errors.Is(err, ErrVMDisconnected) ||
		errors.Is(err, ErrNotConnected)
}

// IsFramingError returns true if the error is scoped to a single packet's framing or decoding.
func IsFramingError(err error) bool {
	var truncated *TruncatedPacketError
	var malformed *MalformedHeaderError
	var unknownTag *UnknownTagError
	return errors.As(err, &truncated) ||
		errors.As(err, &malformed) ||
		errors.As(err, &unknownTag)
}

// IsProtocolError returns true if the error is an error reply from the peer.
func IsProtocolError(err error) bool {
	var protoErr *Error
	return errors.As(err, &protoErr)
}

// ErrorCodeOf returns the JDWP error code carried by err, if any.
func ErrorCodeOf(err error) (ErrorCode, bool) {
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr.Code, true
	}
	return ErrNone, false
}
