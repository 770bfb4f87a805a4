/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import "fmt"

// Tag identifies the type of a value on the wire. Tags are the ASCII signature characters.
type Tag uint8

const (
	TagArray       Tag = '['
	TagByte        Tag = 'B'
	TagChar        Tag = 'C'
	TagObject      Tag = 'L'
	TagFloat       Tag = 'F'
	TagDouble      Tag = 'D'
	TagInt         Tag = 'I'
	TagLong        Tag = 'J'
	TagShort       Tag = 'S'
	TagVoid        Tag = 'V'
	TagBoolean     Tag = 'Z'
	TagString      Tag = 's'
	TagThread      Tag = 't'
	TagThreadGroup Tag = 'g'
	TagClassLoader Tag = 'l'
	TagClassObject Tag = 'c'
)

type tagInfo struct {
	name string
	// Payload width in bytes for primitives; -1 for object references (width comes from IDSizes).
	width int
}

var tags = map[Tag]tagInfo{
	TagArray:       {"ARRAY", -1},
	TagByte:        {"BYTE", 1},
	TagChar:        {"CHAR", 2},
	TagObject:      {"OBJECT", -1},
	TagFloat:       {"FLOAT", 4},
	TagDouble:      {"DOUBLE", 8},
	TagInt:         {"INT", 4},
	TagLong:        {"LONG", 8},
	TagShort:       {"SHORT", 2},
	TagVoid:        {"VOID", 0},
	TagBoolean:     {"BOOLEAN", 1},
	TagString:      {"STRING", -1},
	TagThread:      {"THREAD", -1},
	TagThreadGroup: {"THREAD_GROUP", -1},
	TagClassLoader: {"CLASS_LOADER", -1},
	TagClassObject: {"CLASS_OBJECT", -1},
}

// Valid returns true if the tag is one of the known JDWP value tags.
func (t Tag) Valid() bool {
	_, found := tags[t]
	return found
}

// IsObject returns true if values with this tag are object references.
func (t Tag) IsObject() bool {
	info, found := tags[t]
	return found && info.width < 0
}

// IsPrimitive returns true for the primitive tags, including VOID.
func (t Tag) IsPrimitive() bool {
	info, found := tags[t]
	return found && info.width >= 0
}

// PrimitiveWidth returns the payload width of a primitive tag.
func (t Tag) PrimitiveWidth() int {
	if info, found := tags[t]; found && info.width >= 0 {
		return info.width
	}
	return 0
}

func (t Tag) String() string {
	if info, found := tags[t]; found {
		return info.name
	}
	return fmt.Sprintf("TAG_%d", uint8(t))
}

// TypeTag is the kind of a reference type.
type TypeTag uint8

const (
	TypeTagClass     TypeTag = 1
	TypeTagInterface TypeTag = 2
	TypeTagArray     TypeTag = 3
)

func (t TypeTag) String() string {
	switch t {
	case TypeTagClass:
		return "CLASS"
	case TypeTagInterface:
		return "INTERFACE"
	case TypeTagArray:
		return "ARRAY"
	default:
		return fmt.Sprintf("TYPE_TAG_%d", uint8(t))
	}
}
