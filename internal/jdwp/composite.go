/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import "fmt"

// Composite is the content of an Event.Composite packet: one or more events
// reported together with the suspend policy the VM applied.
type Composite struct {
	SuspendPolicy SuspendPolicy
	Events        []Event
}

// EncodeComposite encodes the data of an Event.Composite command.
func EncodeComposite(sizes IDSizes, c *Composite) ([]byte, error) {
	w := NewWriter(sizes)
	w.Uint8(uint8(c.SuspendPolicy)).Int32(int32(len(c.Events)))
	for i := range c.Events {
		writeEvent(w, &c.Events[i])
	}
	return w.Data(), w.Err()
}

// DecodeComposite decodes the data of an Event.Composite command.
func DecodeComposite(sizes IDSizes, data []byte) (*Composite, error) {
	r := NewReader(data, sizes)
	c := &Composite{SuspendPolicy: SuspendPolicy(r.Uint8())}
	n := r.Int32()
	if r.Err() == nil && (n < 0 || int(n) > r.Remaining()) {
		return nil, fmt.Errorf("invalid composite event count %d", n)
	}
	for i := 0; i < int(n) && r.Err() == nil; i++ {
		c.Events = append(c.Events, readEvent(r))
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode composite event: %w", err)
	}
	return c, nil
}

func taggedObject(v Value) Value {
	if v.Tag == 0 {
		v.Tag = TagObject
	}
	return v
}

func writeEvent(w *Writer, ev *Event) {
	w.Uint8(uint8(ev.Kind)).Int32(int32(ev.RequestID))

	switch ev.Kind {
	case EventVMStart, EventThreadStart, EventThreadDeath:
		w.ObjectID(ev.Thread)
	case EventSingleStep, EventBreakpoint, EventMethodEntry, EventMethodExit:
		w.ObjectID(ev.Thread).Location(ev.Location)
	case EventMethodExitWithReturnValue:
		w.ObjectID(ev.Thread).Location(ev.Location).TaggedValue(ev.Value)
	case EventMonitorContendedEnter, EventMonitorContendedEntered:
		w.ObjectID(ev.Thread).TaggedValue(taggedObject(ev.Object)).Location(ev.Location)
	case EventMonitorWait:
		w.ObjectID(ev.Thread).TaggedValue(taggedObject(ev.Object)).Location(ev.Location).Int64(ev.Timeout)
	case EventMonitorWaited:
		w.ObjectID(ev.Thread).TaggedValue(taggedObject(ev.Object)).Location(ev.Location).Bool(ev.TimedOut)
	case EventException:
		w.ObjectID(ev.Thread).Location(ev.Location).TaggedValue(taggedObject(ev.Exception)).Location(ev.CatchLocation)
	case EventClassPrepare:
		w.ObjectID(ev.Thread).Uint8(uint8(ev.RefTypeTag)).ReferenceTypeID(ev.Class).Utf8String(ev.Signature).Int32(ev.Status)
	case EventClassUnload:
		w.Utf8String(ev.Signature)
	case EventFieldAccess:
		w.ObjectID(ev.Thread).Location(ev.Location).Uint8(uint8(ev.RefTypeTag)).ReferenceTypeID(ev.Class).
			FieldID(ev.Field).TaggedValue(taggedObject(ev.Object))
	case EventFieldModification:
		w.ObjectID(ev.Thread).Location(ev.Location).Uint8(uint8(ev.RefTypeTag)).ReferenceTypeID(ev.Class).
			FieldID(ev.Field).TaggedValue(taggedObject(ev.Object)).TaggedValue(ev.Value)
	case EventVMDeath:
	default:
		w.fail(fmt.Errorf("%v events cannot be sent in a composite packet", ev.Kind))
	}
}

func readEvent(r *Reader) Event {
	ev := Event{
		Kind:      EventKind(r.Uint8()),
		RequestID: RequestID(r.Int32()),
	}

	switch ev.Kind {
	case EventVMStart, EventThreadStart, EventThreadDeath:
		ev.Thread = r.ObjectID()
	case EventSingleStep, EventBreakpoint, EventMethodEntry, EventMethodExit:
		ev.Thread = r.ObjectID()
		ev.Location = r.Location()
	case EventMethodExitWithReturnValue:
		ev.Thread = r.ObjectID()
		ev.Location = r.Location()
		ev.Value = r.TaggedValue()
	case EventMonitorContendedEnter, EventMonitorContendedEntered, EventMonitorWait, EventMonitorWaited:
		ev.Thread = r.ObjectID()
		ev.Object = r.TaggedObjectID()
		ev.Location = r.Location()
		if ev.Kind == EventMonitorWait {
			ev.Timeout = r.Int64()
		} else if ev.Kind == EventMonitorWaited {
			ev.TimedOut = r.Bool()
		}
	case EventException:
		ev.Thread = r.ObjectID()
		ev.Location = r.Location()
		ev.Exception = r.TaggedObjectID()
		ev.CatchLocation = r.Location()
	case EventClassPrepare:
		ev.Thread = r.ObjectID()
		ev.RefTypeTag = r.TypeTag()
		ev.Class = r.ReferenceTypeID()
		ev.Signature = r.Utf8String()
		ev.Status = r.Int32()
	case EventClassUnload:
		ev.Signature = r.Utf8String()
	case EventFieldAccess, EventFieldModification:
		ev.Thread = r.ObjectID()
		ev.Location = r.Location()
		ev.RefTypeTag = r.TypeTag()
		ev.Class = r.ReferenceTypeID()
		ev.Field = r.FieldID()
		ev.Object = r.TaggedObjectID()
		if ev.Kind == EventFieldModification {
			ev.Value = r.TaggedValue()
		}
	case EventVMDeath:
	default:
		if r.Err() == nil {
			r.fail(fmt.Errorf("unknown event kind %d in composite packet", uint8(ev.Kind)))
		}
	}
	return ev
}

// compositeFor builds the composite packet content for a raw event and the requests it matched.
// The event is repeated once per matching request, as JDWP requires.
func compositeFor(ev *Event, matches []Match) *Composite {
	c := &Composite{
		SuspendPolicy: EffectiveSuspendPolicy(matches),
		Events:        make([]Event, 0, len(matches)),
	}
	for _, m := range matches {
		e := *ev
		e.RequestID = m.RequestID
		c.Events = append(c.Events, e)
	}
	return c
}
