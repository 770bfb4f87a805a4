/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"fmt"
	"strings"
)

// EventKind is the kind of a VM event.
type EventKind uint8

const (
	EventSingleStep                EventKind = 1
	EventBreakpoint                EventKind = 2
	EventFramePop                  EventKind = 3
	EventException                 EventKind = 4
	EventUserDefined               EventKind = 5
	EventThreadStart               EventKind = 6
	EventThreadDeath               EventKind = 7
	EventClassPrepare              EventKind = 8
	EventClassUnload               EventKind = 9
	EventClassLoad                 EventKind = 10
	EventFieldAccess               EventKind = 20
	EventFieldModification         EventKind = 21
	EventExceptionCatch            EventKind = 30
	EventMethodEntry               EventKind = 40
	EventMethodExit                EventKind = 41
	EventMethodExitWithReturnValue EventKind = 42
	EventMonitorContendedEnter     EventKind = 43
	EventMonitorContendedEntered   EventKind = 44
	EventMonitorWait               EventKind = 45
	EventMonitorWaited             EventKind = 46
	EventVMStart                   EventKind = 90
	EventVMDeath                   EventKind = 99

	// EventVMDisconnected never appears on the wire. It is synthesized locally when the session ends.
	EventVMDisconnected EventKind = 100
)

var eventKindNames = map[EventKind]string{
	EventSingleStep:                "SINGLE_STEP",
	EventBreakpoint:                "BREAKPOINT",
	EventFramePop:                  "FRAME_POP",
	EventException:                 "EXCEPTION",
	EventUserDefined:               "USER_DEFINED",
	EventThreadStart:               "THREAD_START",
	EventThreadDeath:               "THREAD_DEATH",
	EventClassPrepare:              "CLASS_PREPARE",
	EventClassUnload:               "CLASS_UNLOAD",
	EventClassLoad:                 "CLASS_LOAD",
	EventFieldAccess:               "FIELD_ACCESS",
	EventFieldModification:         "FIELD_MODIFICATION",
	EventExceptionCatch:            "EXCEPTION_CATCH",
	EventMethodEntry:               "METHOD_ENTRY",
	EventMethodExit:                "METHOD_EXIT",
	EventMethodExitWithReturnValue: "METHOD_EXIT_WITH_RETURN_VALUE",
	EventMonitorContendedEnter:     "MONITOR_CONTENDED_ENTER",
	EventMonitorContendedEntered:   "MONITOR_CONTENDED_ENTERED",
	EventMonitorWait:               "MONITOR_WAIT",
	EventMonitorWaited:             "MONITOR_WAITED",
	EventVMStart:                   "VM_START",
	EventVMDeath:                   "VM_DEATH",
	EventVMDisconnected:            "VM_DISCONNECTED",
}

func (k EventKind) String() string {
	if name, found := eventKindNames[k]; found {
		return name
	}
	return fmt.Sprintf("EVENT_%d", uint8(k))
}

// ParseEventKind accepts names such as "class_prepare" or "CLASS_PREPARE".
func ParseEventKind(name string) (EventKind, error) {
	upper := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	for k, n := range eventKindNames {
		if n == upper {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind '%s'", name)
}

// Requestable returns true if an event request may be registered for the kind.
// JVMTI-only kinds and the locally synthesized VM_DISCONNECTED are not requestable.
func (k EventKind) Requestable() bool {
	switch k {
	case EventFramePop, EventUserDefined, EventClassLoad, EventExceptionCatch, EventVMDisconnected:
		return false
	default:
		_, known := eventKindNames[k]
		return known
	}
}

// Unconditional returns true for kinds that are delivered even when no request matched.
func (k EventKind) Unconditional() bool {
	return k == EventVMStart || k == EventVMDeath || k == EventVMDisconnected
}

// SuspendPolicy determines which threads the VM suspends when an event is reported.
type SuspendPolicy uint8

const (
	SuspendNone        SuspendPolicy = 0
	SuspendEventThread SuspendPolicy = 1
	SuspendAll         SuspendPolicy = 2
)

func (p SuspendPolicy) String() string {
	switch p {
	case SuspendNone:
		return "NONE"
	case SuspendEventThread:
		return "EVENT_THREAD"
	case SuspendAll:
		return "ALL"
	default:
		return fmt.Sprintf("SUSPEND_%d", uint8(p))
	}
}

func (p SuspendPolicy) Valid() bool {
	return p <= SuspendAll
}

func ParseSuspendPolicy(name string) (SuspendPolicy, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "none":
		return SuspendNone, nil
	case "event_thread", "thread":
		return SuspendEventThread, nil
	case "all":
		return SuspendAll, nil
	default:
		return 0, fmt.Errorf("unknown suspend policy '%s'", name)
	}
}

// RequestID identifies a registered event request. Zero is used for events
// that were delivered without a matching request.
type RequestID int32

// Event is a VM event. The agent receives raw events from its backend and fills RequestID
// for every matching request; the client decodes them from Composite packets.
type Event struct {
	Kind      EventKind
	RequestID RequestID

	Thread   ThreadID
	Location Location

	// Class events and field events.
	RefTypeTag TypeTag
	Class      ReferenceTypeID
	Signature  string
	Status     int32
	Field      FieldID

	// EXCEPTION
	Exception     Value
	CatchLocation Location

	// Field owner for field events, monitor for monitor events.
	Object Value

	// New field value for FIELD_MODIFICATION, return value for METHOD_EXIT_WITH_RETURN_VALUE.
	Value Value

	Timeout  int64
	TimedOut bool

	// The remaining fields are used for filtering by the agent and are never sent.
	ClassName           string
	SourceName          string
	Supertypes          []ReferenceTypeID
	ExceptionClass      ReferenceTypeID
	ExceptionSupertypes []ReferenceTypeID
	This                ObjectID
}

// eventClass is the class an event is attributed to for class filters.
func (e *Event) eventClass() ReferenceTypeID {
	if e.Class != 0 {
		return e.Class
	}
	return ReferenceTypeID(e.Location.Class)
}

// eventClassName is the dotted class name an event is attributed to.
func (e *Event) eventClassName() string {
	if e.ClassName != "" {
		return e.ClassName
	}
	return SignatureToClassName(e.Signature)
}

// SignatureToClassName converts a JNI type signature such as "Ljava/lang/String;" to "java.lang.String".
func SignatureToClassName(signature string) string {
	if strings.HasPrefix(signature, "L") && strings.HasSuffix(signature, ";") {
		signature = signature[1 : len(signature)-1]
	}
	return strings.ReplaceAll(signature, "/", ".")
}

func (e *Event) String() string {
	return fmt.Sprintf("%v{request=%d thread=%d}", e.Kind, e.RequestID, e.Thread)
}
