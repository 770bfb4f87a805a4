/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// IDSizes are the byte widths of the variable-size identifiers, as reported by VirtualMachine.IDSizes.
type IDSizes struct {
	FieldID         int
	MethodID        int
	ObjectID        int
	ReferenceTypeID int
	FrameID         int
}

// DefaultIDSizes is used until the sizes are negotiated.
var DefaultIDSizes = IDSizes{FieldID: 8, MethodID: 8, ObjectID: 8, ReferenceTypeID: 8, FrameID: 8}

// Validate accepts any width from 1 to 8 bytes; identifiers are decoded as big-endian integers of that width.
func (s IDSizes) Validate() error {
	for _, size := range []int{s.FieldID, s.MethodID, s.ObjectID, s.ReferenceTypeID, s.FrameID} {
		if size < 1 || size > 8 {
			return fmt.Errorf("invalid ID size %d in %+v", size, s)
		}
	}
	return nil
}

// Location is an executable position in the target VM.
type Location struct {
	Type   TypeTag
	Class  ClassID
	Method MethodID
	Index  uint64
}

func (l Location) String() string {
	return fmt.Sprintf("%v:%d.%d@%d", l.Type, l.Class, l.Method, l.Index)
}

// Reader decodes packet data. The first error is sticky: once a read fails,
// subsequent reads return zero values and Err reports the original failure.
type Reader struct {
	data  []byte
	pos   int
	sizes IDSizes
	err   error
}

func NewReader(data []byte, sizes IDSizes) *Reader {
	return &Reader{data: data, sizes: sizes}
}

func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.fail(fmt.Errorf("reading %d bytes at offset %d of %d: %w", n, r.pos, len(r.data), io.ErrUnexpectedEOF))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) Uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

func (r *Reader) Uint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) Uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *Reader) Uint64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *Reader) Int64() int64 {
	return int64(r.Uint64())
}

func (r *Reader) sized(n int) uint64 {
	b := r.take(n)
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func (r *Reader) ObjectID() ObjectID { return ObjectID(r.sized(r.sizes.ObjectID)) }
func (r *Reader) ReferenceTypeID() ReferenceTypeID {
	return ReferenceTypeID(r.sized(r.sizes.ReferenceTypeID))
}
func (r *Reader) MethodID() MethodID { return MethodID(r.sized(r.sizes.MethodID)) }
func (r *Reader) FieldID() FieldID   { return FieldID(r.sized(r.sizes.FieldID)) }
func (r *Reader) FrameID() FrameID   { return FrameID(r.sized(r.sizes.FrameID)) }

// Bytes reads a 4-byte length followed by that many raw bytes.
func (r *Reader) Bytes() []byte {
	n := r.Int32()
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Utf8String reads a length-prefixed UTF-8 string.
func (r *Reader) Utf8String() string {
	b := r.take(int(r.Int32()))
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.fail(fmt.Errorf("string at offset %d is not valid UTF-8: %w", r.pos-len(b), errIllegalArgument))
		return ""
	}
	return string(b)
}

// Tag reads a value tag, failing with *UnknownTagError for unknown tag bytes.
func (r *Reader) Tag() Tag {
	t := Tag(r.Uint8())
	if r.err == nil && !t.Valid() {
		r.fail(&UnknownTagError{Tag: byte(t)})
	}
	return t
}

func (r *Reader) TypeTag() TypeTag {
	return TypeTag(r.Uint8())
}

func (r *Reader) Location() Location {
	return Location{
		Type:   r.TypeTag(),
		Class:  ClassID(r.ReferenceTypeID()),
		Method: r.MethodID(),
		Index:  r.Uint64(),
	}
}

// TaggedObjectID reads a tag followed by an object ID.
func (r *Reader) TaggedObjectID() Value {
	t := r.Tag()
	if r.err == nil && !t.IsObject() {
		r.fail(fmt.Errorf("expected an object tag, got %v: %w", t, ErrTypeMismatch))
	}
	return ObjectValue(t, r.ObjectID())
}

// TaggedValue reads a tag followed by a payload of the width the tag determines.
func (r *Reader) TaggedValue() Value {
	t := r.Tag()
	if r.err != nil {
		return Value{}
	}
	return r.UntaggedValue(t)
}

// UntaggedValue reads a payload whose tag is known from context.
func (r *Reader) UntaggedValue(t Tag) Value {
	if !t.Valid() {
		r.fail(&UnknownTagError{Tag: byte(t)})
		return Value{}
	}
	if t.IsObject() {
		return ObjectValue(t, r.ObjectID())
	}

	switch t {
	case TagBoolean:
		return BooleanValue(r.Bool())
	case TagByte:
		return ByteValue(int8(r.Uint8()))
	case TagChar:
		return CharValue(r.Uint16())
	case TagShort:
		return ShortValue(int16(r.Uint16()))
	case TagInt:
		return IntValue(r.Int32())
	case TagLong:
		return LongValue(r.Int64())
	case TagFloat:
		return Value{Tag: TagFloat, Bits: uint64(r.Uint32())}
	case TagDouble:
		return Value{Tag: TagDouble, Bits: r.Uint64()}
	default: // TagVoid
		return VoidValue()
	}
}

// ArrayRegion reads a tag, a 4-byte count and the values. Primitive components are untagged,
// reference components are tagged.
func (r *Reader) ArrayRegion() (Tag, []Value) {
	t := r.Tag()
	n := r.Int32()
	if r.err != nil {
		return t, nil
	}
	if n < 0 {
		r.fail(fmt.Errorf("negative array region length %d: %w", n, errIllegalArgument))
		return t, nil
	}

	// Every element takes at least one byte, so a count beyond the remaining data is corrupt.
	if int(n) > r.Remaining() {
		r.fail(fmt.Errorf("array region of %d elements exceeds remaining %d bytes: %w", n, r.Remaining(), io.ErrUnexpectedEOF))
		return t, nil
	}

	values := make([]Value, 0, n)
	for i := 0; i < int(n) && r.err == nil; i++ {
		if t.IsObject() {
			values = append(values, r.TaggedValue())
		} else {
			values = append(values, r.UntaggedValue(t))
		}
	}
	if r.err != nil {
		return t, nil
	}
	return t, values
}

// Writer encodes packet data. The first error is sticky.
type Writer struct {
	buf   bytes.Buffer
	sizes IDSizes
	err   error
}

func NewWriter(sizes IDSizes) *Writer {
	return &Writer{sizes: sizes}
}

func (w *Writer) Err() error {
	return w.err
}

// Data returns the encoded bytes, or nil if nothing was written.
func (w *Writer) Data() []byte {
	if w.buf.Len() == 0 {
		return nil
	}
	return w.buf.Bytes()
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) Uint8(v uint8) *Writer {
	w.buf.WriteByte(v)
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.Uint8(1)
	}
	return w.Uint8(0)
}

func (w *Writer) Uint16(v uint16) *Writer {
	w.buf.Write(binary.BigEndian.AppendUint16(nil, v))
	return w
}

func (w *Writer) Uint32(v uint32) *Writer {
	w.buf.Write(binary.BigEndian.AppendUint32(nil, v))
	return w
}

func (w *Writer) Int32(v int32) *Writer {
	return w.Uint32(uint32(v))
}

func (w *Writer) Uint64(v uint64) *Writer {
	w.buf.Write(binary.BigEndian.AppendUint64(nil, v))
	return w
}

func (w *Writer) Int64(v int64) *Writer {
	return w.Uint64(uint64(v))
}

func (w *Writer) sized(n int, v uint64) *Writer {
	if n < 8 && v>>(uint(n)*8) != 0 {
		w.fail(fmt.Errorf("ID %d does not fit in %d bytes", v, n))
	}
	for i := n - 1; i >= 0; i-- {
		w.buf.WriteByte(byte(v >> (uint(i) * 8)))
	}
	return w
}

func (w *Writer) ObjectID(id ObjectID) *Writer { return w.sized(w.sizes.ObjectID, uint64(id)) }
func (w *Writer) ReferenceTypeID(id ReferenceTypeID) *Writer {
	return w.sized(w.sizes.ReferenceTypeID, uint64(id))
}
func (w *Writer) MethodID(id MethodID) *Writer { return w.sized(w.sizes.MethodID, uint64(id)) }
func (w *Writer) FieldID(id FieldID) *Writer   { return w.sized(w.sizes.FieldID, uint64(id)) }
func (w *Writer) FrameID(id FrameID) *Writer   { return w.sized(w.sizes.FrameID, uint64(id)) }

func (w *Writer) Bytes(b []byte) *Writer {
	w.Int32(int32(len(b)))
	w.buf.Write(b)
	return w
}

func (w *Writer) Utf8String(s string) *Writer {
	if !utf8.ValidString(s) {
		w.fail(fmt.Errorf("string %q is not valid UTF-8", s))
	}
	w.Int32(int32(len(s)))
	w.buf.WriteString(s)
	return w
}

func (w *Writer) Tag(t Tag) *Writer {
	if !t.Valid() {
		w.fail(&UnknownTagError{Tag: byte(t)})
	}
	return w.Uint8(uint8(t))
}

func (w *Writer) Location(l Location) *Writer {
	w.Uint8(uint8(l.Type))
	w.ReferenceTypeID(ReferenceTypeID(l.Class))
	w.MethodID(l.Method)
	return w.Uint64(l.Index)
}

func (w *Writer) TaggedValue(v Value) *Writer {
	w.Tag(v.Tag)
	return w.UntaggedValue(v)
}

// UntaggedValue writes only the payload of v.
func (w *Writer) UntaggedValue(v Value) *Writer {
	if v.Tag.IsObject() {
		return w.ObjectID(v.Object)
	}
	switch v.Tag.PrimitiveWidth() {
	case 1:
		return w.Uint8(uint8(v.Bits))
	case 2:
		return w.Uint16(uint16(v.Bits))
	case 4:
		return w.Uint32(uint32(v.Bits))
	case 8:
		return w.Uint64(v.Bits)
	default:
		if !v.Tag.Valid() {
			w.fail(&UnknownTagError{Tag: byte(v.Tag)})
		}
		return w
	}
}

// ArrayRegion writes a region whose values are widened to the component tag t.
func (w *Writer) ArrayRegion(t Tag, values []Value) *Writer {
	w.Tag(t)
	w.Int32(int32(len(values)))
	for _, v := range values {
		if t.IsObject() {
			w.TaggedValue(v)
			continue
		}
		widened, err := v.Widen(t)
		if err != nil {
			w.fail(err)
			continue
		}
		w.UntaggedValue(widened)
	}
	return w
}
