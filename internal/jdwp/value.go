/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"fmt"
	"math"
)

// ObjectID identifies an object in the target VM.
// IDs are minted by the VM and may become invalid at any time (the referent can be collected);
// the engine never interprets them.
type ObjectID uint64

type (
	ThreadID        = ObjectID
	ThreadGroupID   = ObjectID
	StringID        = ObjectID
	ClassLoaderID   = ObjectID
	ClassObjectID   = ObjectID
	ArrayID         = ObjectID
	ReferenceTypeID uint64
	ClassID         = ReferenceTypeID
	MethodID        uint64
	FieldID         uint64
	FrameID         uint64
)

// Value is a tagged value. Primitive payloads live in Bits
// (integral types sign-extended, CHAR zero-extended, FLOAT and DOUBLE as IEEE bits);
// object references live in Object.
type Value struct {
	Tag    Tag
	Bits   uint64
	Object ObjectID
}

func BooleanValue(v bool) Value {
	if v {
		return Value{Tag: TagBoolean, Bits: 1}
	}
	return Value{Tag: TagBoolean}
}

func ByteValue(v int8) Value     { return Value{Tag: TagByte, Bits: uint64(int64(v))} }
func CharValue(v uint16) Value   { return Value{Tag: TagChar, Bits: uint64(v)} }
func ShortValue(v int16) Value   { return Value{Tag: TagShort, Bits: uint64(int64(v))} }
func IntValue(v int32) Value     { return Value{Tag: TagInt, Bits: uint64(int64(v))} }
func LongValue(v int64) Value    { return Value{Tag: TagLong, Bits: uint64(v)} }
func FloatValue(v float32) Value { return Value{Tag: TagFloat, Bits: uint64(math.Float32bits(v))} }
func DoubleValue(v float64) Value {
	return Value{Tag: TagDouble, Bits: math.Float64bits(v)}
}
func VoidValue() Value { return Value{Tag: TagVoid} }

// ObjectValue creates a reference value. tag must be one of the object tags.
func ObjectValue(tag Tag, id ObjectID) Value {
	return Value{Tag: tag, Object: id}
}

func (v Value) Bool() bool { return v.Bits != 0 }

// Int returns the value of an integral (BYTE, CHAR, SHORT, INT, LONG) value.
func (v Value) Int() int64 {
	return int64(v.Bits)
}

// Float returns the value of a FLOAT or DOUBLE value.
func (v Value) Float() float64 {
	if v.Tag == TagFloat {
		return float64(math.Float32frombits(uint32(v.Bits)))
	}
	return math.Float64frombits(v.Bits)
}

func (v Value) String() string {
	switch {
	case v.Tag.IsObject():
		return fmt.Sprintf("%v@%d", v.Tag, v.Object)
	case v.Tag == TagBoolean:
		return fmt.Sprintf("%v:%t", v.Tag, v.Bool())
	case v.Tag == TagFloat || v.Tag == TagDouble:
		return fmt.Sprintf("%v:%g", v.Tag, v.Float())
	case v.Tag == TagVoid:
		return "VOID"
	default:
		return fmt.Sprintf("%v:%d", v.Tag, v.Int())
	}
}

// Java primitive widening conversions.
var widenings = map[Tag][]Tag{
	TagByte:  {TagShort, TagInt, TagLong, TagFloat, TagDouble},
	TagShort: {TagInt, TagLong, TagFloat, TagDouble},
	TagChar:  {TagInt, TagLong, TagFloat, TagDouble},
	TagInt:   {TagLong, TagFloat, TagDouble},
	TagLong:  {TagFloat, TagDouble},
	TagFloat: {TagDouble},
}

// Widen converts the value to the target type using Java widening rules.
// Any reference value widens to OBJECT. Narrowing is never performed; it returns ErrTypeMismatch.
func (v Value) Widen(target Tag) (Value, error) {
	if v.Tag == target {
		return v, nil
	}
	if v.Tag.IsObject() && target == TagObject {
		return ObjectValue(TagObject, v.Object), nil
	}

	allowed := false
	for _, t := range widenings[v.Tag] {
		if t == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return Value{}, fmt.Errorf("cannot widen %v to %v: %w", v.Tag, target, ErrTypeMismatch)
	}

	if v.Tag == TagFloat {
		return DoubleValue(v.Float()), nil
	}

	n := v.Int()
	switch target {
	case TagShort:
		return ShortValue(int16(n)), nil
	case TagInt:
		return IntValue(int32(n)), nil
	case TagLong:
		return LongValue(n), nil
	case TagFloat:
		return FloatValue(float32(n)), nil
	default: // TagDouble
		return DoubleValue(float64(n)), nil
	}
}
