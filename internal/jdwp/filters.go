/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"fmt"
	"slices"
	"strings"
)

// ModifierKind identifies an event request modifier (filter).
type ModifierKind uint8

const (
	ModCount           ModifierKind = 1
	ModConditional     ModifierKind = 2
	ModThreadOnly      ModifierKind = 3
	ModClassOnly       ModifierKind = 4
	ModClassMatch      ModifierKind = 5
	ModClassExclude    ModifierKind = 6
	ModLocationOnly    ModifierKind = 7
	ModExceptionOnly   ModifierKind = 8
	ModFieldOnly       ModifierKind = 9
	ModStep            ModifierKind = 10
	ModInstanceOnly    ModifierKind = 11
	ModSourceNameMatch ModifierKind = 12
)

var modifierNames = map[ModifierKind]string{
	ModCount:           "Count",
	ModConditional:     "Conditional",
	ModThreadOnly:      "ThreadOnly",
	ModClassOnly:       "ClassOnly",
	ModClassMatch:      "ClassMatch",
	ModClassExclude:    "ClassExclude",
	ModLocationOnly:    "LocationOnly",
	ModExceptionOnly:   "ExceptionOnly",
	ModFieldOnly:       "FieldOnly",
	ModStep:            "Step",
	ModInstanceOnly:    "InstanceOnly",
	ModSourceNameMatch: "SourceNameMatch",
}

func (k ModifierKind) String() string {
	if name, found := modifierNames[k]; found {
		return name
	}
	return fmt.Sprintf("Modifier<%d>", uint8(k))
}

// Modifier is one filter of an event request. Kind selects which of the other fields are meaningful.
type Modifier struct {
	Kind ModifierKind

	// Count
	Count int32
	// Conditional
	ExprID int32
	// ThreadOnly, Step
	Thread ThreadID
	// ClassOnly, ExceptionOnly (zero means any exception), FieldOnly
	Class ReferenceTypeID
	// ClassMatch, ClassExclude, SourceNameMatch
	Pattern string
	// LocationOnly
	Location Location
	// ExceptionOnly
	Caught   bool
	Uncaught bool
	// FieldOnly
	Field FieldID
	// Step
	StepSize  int32
	StepDepth int32
	// InstanceOnly
	Instance ObjectID
}

func CountModifier(n int32) Modifier          { return Modifier{Kind: ModCount, Count: n} }
func ConditionalModifier(expr int32) Modifier { return Modifier{Kind: ModConditional, ExprID: expr} }
func ThreadOnly(thread ThreadID) Modifier     { return Modifier{Kind: ModThreadOnly, Thread: thread} }
func ClassOnly(class ReferenceTypeID) Modifier {
	return Modifier{Kind: ModClassOnly, Class: class}
}
func ClassMatch(pattern string) Modifier   { return Modifier{Kind: ModClassMatch, Pattern: pattern} }
func ClassExclude(pattern string) Modifier { return Modifier{Kind: ModClassExclude, Pattern: pattern} }
func LocationOnly(loc Location) Modifier   { return Modifier{Kind: ModLocationOnly, Location: loc} }
func ExceptionOnly(class ReferenceTypeID, caught, uncaught bool) Modifier {
	return Modifier{Kind: ModExceptionOnly, Class: class, Caught: caught, Uncaught: uncaught}
}
func FieldOnly(class ReferenceTypeID, field FieldID) Modifier {
	return Modifier{Kind: ModFieldOnly, Class: class, Field: field}
}
func StepModifier(thread ThreadID, size, depth int32) Modifier {
	return Modifier{Kind: ModStep, Thread: thread, StepSize: size, StepDepth: depth}
}
func InstanceOnly(instance ObjectID) Modifier {
	return Modifier{Kind: ModInstanceOnly, Instance: instance}
}
func SourceNameMatch(pattern string) Modifier {
	return Modifier{Kind: ModSourceNameMatch, Pattern: pattern}
}

var (
	locatableKinds = []EventKind{
		EventBreakpoint, EventFieldAccess, EventFieldModification, EventSingleStep, EventException,
	}
	noClassKinds    = []EventKind{EventThreadStart, EventThreadDeath, EventVMDeath, EventVMStart}
	noInstanceKinds = []EventKind{EventClassPrepare, EventClassUnload, EventThreadStart, EventThreadDeath, EventVMDeath, EventVMStart}
)

// AllowedFor returns true if the modifier may be used in a request for the given event kind.
func (k ModifierKind) AllowedFor(kind EventKind) bool {
	switch k {
	case ModCount, ModConditional:
		return true
	case ModThreadOnly:
		return kind != EventClassUnload && kind != EventVMDeath
	case ModClassOnly, ModClassMatch, ModClassExclude:
		return !slices.Contains(noClassKinds, kind)
	case ModLocationOnly:
		return slices.Contains(locatableKinds, kind)
	case ModExceptionOnly:
		return kind == EventException
	case ModFieldOnly:
		return kind == EventFieldAccess || kind == EventFieldModification
	case ModStep:
		return kind == EventSingleStep
	case ModInstanceOnly:
		return !slices.Contains(noInstanceKinds, kind)
	case ModSourceNameMatch:
		return kind == EventClassPrepare
	default:
		return false
	}
}

// matchModifier evaluates a stateless modifier against an event. Count is handled by the request table.
func matchModifier(m *Modifier, ev *Event) bool {
	switch m.Kind {
	case ModCount, ModConditional:
		return true
	case ModThreadOnly:
		return ev.Thread == m.Thread
	case ModClassOnly:
		return ev.eventClass() == m.Class || slices.Contains(ev.Supertypes, m.Class)
	case ModClassMatch:
		return MatchClassPattern(m.Pattern, ev.eventClassName())
	case ModClassExclude:
		return !MatchClassPattern(m.Pattern, ev.eventClassName())
	case ModLocationOnly:
		return ev.Location == m.Location
	case ModExceptionOnly:
		if m.Class != 0 && ev.ExceptionClass != m.Class && !slices.Contains(ev.ExceptionSupertypes, m.Class) {
			return false
		}
		caught := ev.CatchLocation != Location{}
		return (caught && m.Caught) || (!caught && m.Uncaught)
	case ModFieldOnly:
		return ev.Class == m.Class && ev.Field == m.Field
	case ModStep:
		return ev.Thread == m.Thread
	case ModInstanceOnly:
		return ev.This == m.Instance
	case ModSourceNameMatch:
		return MatchClassPattern(m.Pattern, ev.SourceName)
	default:
		return false
	}
}

// MatchClassPattern matches a name against a restricted JDWP pattern:
// an exact name, or a name with a single '*' at the beginning or the end.
func MatchClassPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	default:
		return pattern == name
	}
}

func writeModifier(w *Writer, m *Modifier) {
	w.Uint8(uint8(m.Kind))
	switch m.Kind {
	case ModCount:
		w.Int32(m.Count)
	case ModConditional:
		w.Int32(m.ExprID)
	case ModThreadOnly:
		w.ObjectID(m.Thread)
	case ModClassOnly:
		w.ReferenceTypeID(m.Class)
	case ModClassMatch, ModClassExclude, ModSourceNameMatch:
		w.Utf8String(m.Pattern)
	case ModLocationOnly:
		w.Location(m.Location)
	case ModExceptionOnly:
		w.ReferenceTypeID(m.Class).Bool(m.Caught).Bool(m.Uncaught)
	case ModFieldOnly:
		w.ReferenceTypeID(m.Class).FieldID(m.Field)
	case ModStep:
		w.ObjectID(m.Thread).Int32(m.StepSize).Int32(m.StepDepth)
	case ModInstanceOnly:
		w.ObjectID(m.Instance)
	default:
		w.fail(fmt.Errorf("cannot encode %v", m.Kind))
	}
}

func readModifier(r *Reader) Modifier {
	m := Modifier{Kind: ModifierKind(r.Uint8())}
	switch m.Kind {
	case ModCount:
		m.Count = r.Int32()
	case ModConditional:
		m.ExprID = r.Int32()
	case ModThreadOnly:
		m.Thread = r.ObjectID()
	case ModClassOnly:
		m.Class = r.ReferenceTypeID()
	case ModClassMatch, ModClassExclude, ModSourceNameMatch:
		m.Pattern = r.Utf8String()
	case ModLocationOnly:
		m.Location = r.Location()
	case ModExceptionOnly:
		m.Class = r.ReferenceTypeID()
		m.Caught = r.Bool()
		m.Uncaught = r.Bool()
	case ModFieldOnly:
		m.Class = r.ReferenceTypeID()
		m.Field = r.FieldID()
	case ModStep:
		m.Thread = r.ObjectID()
		m.StepSize = r.Int32()
		m.StepDepth = r.Int32()
	case ModInstanceOnly:
		m.Instance = r.ObjectID()
	default:
		if r.Err() == nil {
			r.fail(fmt.Errorf("unknown event request modifier %d: %w", uint8(m.Kind), errIllegalArgument))
		}
	}
	return m
}

// EncodeEventRequestSet encodes the data of an EventRequest.Set command.
func EncodeEventRequestSet(sizes IDSizes, kind EventKind, policy SuspendPolicy, modifiers []Modifier) ([]byte, error) {
	w := NewWriter(sizes)
	w.Uint8(uint8(kind)).Uint8(uint8(policy)).Int32(int32(len(modifiers)))
	for i := range modifiers {
		writeModifier(w, &modifiers[i])
	}
	return w.Data(), w.Err()
}

// DecodeEventRequestSet decodes the data of an EventRequest.Set command.
func DecodeEventRequestSet(sizes IDSizes, data []byte) (EventKind, SuspendPolicy, []Modifier, error) {
	r := NewReader(data, sizes)
	kind := EventKind(r.Uint8())
	policy := SuspendPolicy(r.Uint8())
	n := r.Int32()
	if r.Err() == nil && (n < 0 || int(n) > r.Remaining()) {
		return kind, policy, nil, fmt.Errorf("invalid modifier count %d: %w", n, errIllegalArgument)
	}
	var modifiers []Modifier
	for i := 0; i < int(n) && r.Err() == nil; i++ {
		modifiers = append(modifiers, readModifier(r))
	}
	return kind, policy, modifiers, r.Err()
}
