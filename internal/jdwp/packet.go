/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size of the fixed packet header:
	// length (4) + id (4) + flags (1) + command set and command, or error code (2).
	HeaderSize = 11

	// FlagReply marks a reply packet.
	FlagReply uint8 = 0x80
)

// Packet is a single JDWP command or reply packet.
// For command packets CommandSet and Command are meaningful; for replies ErrorCode is.
type Packet struct {
	ID         uint32
	Flags      uint8
	CommandSet CommandSet
	Command    Command
	ErrorCode  ErrorCode
	Data       []byte
}

// IsReply returns true if the packet is a reply packet.
func (p *Packet) IsReply() bool {
	return p.Flags&FlagReply != 0
}

// Key returns the command key of a command packet.
func (p *Packet) Key() CommandKey {
	return CommandKey{Set: p.CommandSet, Command: p.Command}
}

// Len returns the encoded length of the packet.
func (p *Packet) Len() int {
	return HeaderSize + len(p.Data)
}

func (p *Packet) String() string {
	if p.IsReply() {
		return fmt.Sprintf("reply{id=%d error=%v len=%d}", p.ID, p.ErrorCode, len(p.Data))
	}
	return fmt.Sprintf("command{id=%d %v len=%d}", p.ID, p.Key(), len(p.Data))
}

// NewCommandPacket creates a command packet.
func NewCommandPacket(id uint32, key CommandKey, data []byte) *Packet {
	return &Packet{
		ID:         id,
		CommandSet: key.Set,
		Command:    key.Command,
		Data:       data,
	}
}

// NewReplyPacket creates a reply packet for the command with the given id.
func NewReplyPacket(id uint32, code ErrorCode, data []byte) *Packet {
	return &Packet{
		ID:        id,
		Flags:     FlagReply,
		ErrorCode: code,
		Data:      data,
	}
}

// Encode serializes the packet into its wire representation.
func Encode(p *Packet) []byte {
	buf := make([]byte, p.Len())
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.Len()))
	binary.BigEndian.PutUint32(buf[4:8], p.ID)
	buf[8] = p.Flags
	if p.IsReply() {
		binary.BigEndian.PutUint16(buf[9:11], uint16(p.ErrorCode))
	} else {
		buf[9] = byte(p.CommandSet)
		buf[10] = byte(p.Command)
	}
	copy(buf[HeaderSize:], p.Data)
	return buf
}

// DeclaredLength returns the total packet length announced by the header at the start of buf.
// The second return value is false if buf is too short to contain the length field.
func DeclaredLength(buf []byte) (uint32, bool) {
	if len(buf) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(buf[0:4]), true
}

// Decode parses one packet from the start of buf.
// A *TruncatedPacketError means more bytes are needed; the caller should buffer and retry.
// A *MalformedHeaderError means the stream is corrupt.
// Bytes following the declared packet length are ignored.
func Decode(buf []byte) (*Packet, error) {
	length, ok := DeclaredLength(buf)
	if !ok {
		return nil, &TruncatedPacketError{Declared: 0, Available: len(buf)}
	}
	if length < HeaderSize {
		return nil, &MalformedHeaderError{Length: length}
	}
	if uint64(len(buf)) < uint64(length) {
		return nil, &TruncatedPacketError{Declared: length, Available: len(buf)}
	}

	p := &Packet{
		ID:    binary.BigEndian.Uint32(buf[4:8]),
		Flags: buf[8],
	}
	if p.IsReply() {
		p.ErrorCode = ErrorCode(binary.BigEndian.Uint16(buf[9:11]))
	} else {
		p.CommandSet = CommandSet(buf[9])
		p.Command = Command(buf[10])
	}

	if length > HeaderSize {
		p.Data = make([]byte, length-HeaderSize)
		copy(p.Data, buf[HeaderSize:length])
	}
	return p, nil
}
