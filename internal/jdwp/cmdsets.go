/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"fmt"
	"strings"
)

// CommandSet is the namespace of a command.
type CommandSet uint8

// Command identifies a command within a command set.
type Command uint8

// CommandKey is a (command set, command) pair.
type CommandKey struct {
	Set     CommandSet
	Command Command
}

const (
	SetVirtualMachine       CommandSet = 1
	SetReferenceType        CommandSet = 2
	SetClassType            CommandSet = 3
	SetArrayType            CommandSet = 4
	SetInterfaceType        CommandSet = 5
	SetMethod               CommandSet = 6
	SetField                CommandSet = 8
	SetObjectReference      CommandSet = 9
	SetStringReference      CommandSet = 10
	SetThreadReference      CommandSet = 11
	SetThreadGroupReference CommandSet = 12
	SetArrayReference       CommandSet = 13
	SetClassLoaderReference CommandSet = 14
	SetEventRequest         CommandSet = 15
	SetStackFrame           CommandSet = 16
	SetClassObjectReference CommandSet = 17
	SetModuleReference      CommandSet = 18
	SetEvent                CommandSet = 64
)

var (
	CmdVMVersion               = CommandKey{SetVirtualMachine, 1}
	CmdVMClassesBySignature    = CommandKey{SetVirtualMachine, 2}
	CmdVMAllClasses            = CommandKey{SetVirtualMachine, 3}
	CmdVMAllThreads            = CommandKey{SetVirtualMachine, 4}
	CmdVMTopLevelThreadGroups  = CommandKey{SetVirtualMachine, 5}
	CmdVMDispose               = CommandKey{SetVirtualMachine, 6}
	CmdVMIDSizes               = CommandKey{SetVirtualMachine, 7}
	CmdVMSuspend               = CommandKey{SetVirtualMachine, 8}
	CmdVMResume                = CommandKey{SetVirtualMachine, 9}
	CmdVMExit                  = CommandKey{SetVirtualMachine, 10}
	CmdVMCreateString          = CommandKey{SetVirtualMachine, 11}
	CmdVMCapabilities          = CommandKey{SetVirtualMachine, 12}
	CmdVMClassPaths            = CommandKey{SetVirtualMachine, 13}
	CmdVMDisposeObjects        = CommandKey{SetVirtualMachine, 14}
	CmdVMHoldEvents            = CommandKey{SetVirtualMachine, 15}
	CmdVMReleaseEvents         = CommandKey{SetVirtualMachine, 16}
	CmdVMCapabilitiesNew       = CommandKey{SetVirtualMachine, 17}
	CmdVMRedefineClasses       = CommandKey{SetVirtualMachine, 18}
	CmdVMSetDefaultStratum     = CommandKey{SetVirtualMachine, 19}
	CmdVMAllClassesWithGeneric = CommandKey{SetVirtualMachine, 20}
	CmdVMInstanceCounts        = CommandKey{SetVirtualMachine, 21}
	CmdVMAllModules            = CommandKey{SetVirtualMachine, 22}

	CmdRTSignature            = CommandKey{SetReferenceType, 1}
	CmdRTClassLoader          = CommandKey{SetReferenceType, 2}
	CmdRTModifiers            = CommandKey{SetReferenceType, 3}
	CmdRTFields               = CommandKey{SetReferenceType, 4}
	CmdRTMethods              = CommandKey{SetReferenceType, 5}
	CmdRTGetValues            = CommandKey{SetReferenceType, 6}
	CmdRTSourceFile           = CommandKey{SetReferenceType, 7}
	CmdRTNestedTypes          = CommandKey{SetReferenceType, 8}
	CmdRTStatus               = CommandKey{SetReferenceType, 9}
	CmdRTInterfaces           = CommandKey{SetReferenceType, 10}
	CmdRTClassObject          = CommandKey{SetReferenceType, 11}
	CmdRTSourceDebugExtension = CommandKey{SetReferenceType, 12}
	CmdRTSignatureWithGeneric = CommandKey{SetReferenceType, 13}
	CmdRTFieldsWithGeneric    = CommandKey{SetReferenceType, 14}
	CmdRTMethodsWithGeneric   = CommandKey{SetReferenceType, 15}
	CmdRTInstances            = CommandKey{SetReferenceType, 16}
	CmdRTClassFileVersion     = CommandKey{SetReferenceType, 17}
	CmdRTConstantPool         = CommandKey{SetReferenceType, 18}
	CmdRTModule               = CommandKey{SetReferenceType, 19}

	CmdClassTypeSuperclass   = CommandKey{SetClassType, 1}
	CmdClassTypeSetValues    = CommandKey{SetClassType, 2}
	CmdClassTypeInvokeMethod = CommandKey{SetClassType, 3}
	CmdClassTypeNewInstance  = CommandKey{SetClassType, 4}

	CmdArrayTypeNewInstance = CommandKey{SetArrayType, 1}

	CmdInterfaceTypeInvokeMethod = CommandKey{SetInterfaceType, 1}

	CmdMethodLineTable                = CommandKey{SetMethod, 1}
	CmdMethodVariableTable            = CommandKey{SetMethod, 2}
	CmdMethodBytecodes                = CommandKey{SetMethod, 3}
	CmdMethodIsObsolete               = CommandKey{SetMethod, 4}
	CmdMethodVariableTableWithGeneric = CommandKey{SetMethod, 5}

	CmdObjectReferenceType             = CommandKey{SetObjectReference, 1}
	CmdObjectGetValues                 = CommandKey{SetObjectReference, 2}
	CmdObjectSetValues                 = CommandKey{SetObjectReference, 3}
	CmdObjectMonitorInfo               = CommandKey{SetObjectReference, 5}
	CmdObjectInvokeMethod              = CommandKey{SetObjectReference, 6}
	CmdObjectDisableCollection         = CommandKey{SetObjectReference, 7}
	CmdObjectEnableCollection          = CommandKey{SetObjectReference, 8}
	CmdObjectIsCollected               = CommandKey{SetObjectReference, 9}
	CmdObjectReferringObjects          = CommandKey{SetObjectReference, 10}
	CmdStringValue                     = CommandKey{SetStringReference, 1}
	CmdThreadName                      = CommandKey{SetThreadReference, 1}
	CmdThreadSuspend                   = CommandKey{SetThreadReference, 2}
	CmdThreadResume                    = CommandKey{SetThreadReference, 3}
	CmdThreadStatus                    = CommandKey{SetThreadReference, 4}
	CmdThreadThreadGroup               = CommandKey{SetThreadReference, 5}
	CmdThreadFrames                    = CommandKey{SetThreadReference, 6}
	CmdThreadFrameCount                = CommandKey{SetThreadReference, 7}
	CmdThreadOwnedMonitors             = CommandKey{SetThreadReference, 8}
	CmdThreadCurrentContendedMonitor   = CommandKey{SetThreadReference, 9}
	CmdThreadStop                      = CommandKey{SetThreadReference, 10}
	CmdThreadInterrupt                 = CommandKey{SetThreadReference, 11}
	CmdThreadSuspendCount              = CommandKey{SetThreadReference, 12}
	CmdThreadOwnedMonitorsStackDepth   = CommandKey{SetThreadReference, 13}
	CmdThreadForceEarlyReturn          = CommandKey{SetThreadReference, 14}
	CmdThreadIsVirtual                 = CommandKey{SetThreadReference, 15}
	CmdThreadGroupName                 = CommandKey{SetThreadGroupReference, 1}
	CmdThreadGroupParent               = CommandKey{SetThreadGroupReference, 2}
	CmdThreadGroupChildren             = CommandKey{SetThreadGroupReference, 3}
	CmdArrayLength                     = CommandKey{SetArrayReference, 1}
	CmdArrayGetValues                  = CommandKey{SetArrayReference, 2}
	CmdArraySetValues                  = CommandKey{SetArrayReference, 3}
	CmdClassLoaderVisibleClasses       = CommandKey{SetClassLoaderReference, 1}
	CmdEventRequestSet                 = CommandKey{SetEventRequest, 1}
	CmdEventRequestClear               = CommandKey{SetEventRequest, 2}
	CmdEventRequestClearAllBreakpoints = CommandKey{SetEventRequest, 3}
	CmdStackFrameGetValues             = CommandKey{SetStackFrame, 1}
	CmdStackFrameSetValues             = CommandKey{SetStackFrame, 2}
	CmdStackFrameThisObject            = CommandKey{SetStackFrame, 3}
	CmdStackFramePopFrames             = CommandKey{SetStackFrame, 4}
	CmdClassObjectReflectedType        = CommandKey{SetClassObjectReference, 1}
	CmdModuleName                      = CommandKey{SetModuleReference, 1}
	CmdModuleClassLoader               = CommandKey{SetModuleReference, 2}
	CmdEventComposite                  = CommandKey{SetEvent, 100}
)

var commandSetNames = map[CommandSet]string{
	SetVirtualMachine:       "VirtualMachine",
	SetReferenceType:        "ReferenceType",
	SetClassType:            "ClassType",
	SetArrayType:            "ArrayType",
	SetInterfaceType:        "InterfaceType",
	SetMethod:               "Method",
	SetField:                "Field",
	SetObjectReference:      "ObjectReference",
	SetStringReference:      "StringReference",
	SetThreadReference:      "ThreadReference",
	SetThreadGroupReference: "ThreadGroupReference",
	SetArrayReference:       "ArrayReference",
	SetClassLoaderReference: "ClassLoaderReference",
	SetEventRequest:         "EventRequest",
	SetStackFrame:           "StackFrame",
	SetClassObjectReference: "ClassObjectReference",
	SetModuleReference:      "ModuleReference",
	SetEvent:                "Event",
}

var commandNames = map[CommandKey]string{}

func init() {
	register := func(c CommandKey, n string) {
		if _, exists := commandNames[c]; exists {
			panic("command already registered: " + n)
		}
		commandNames[c] = n
	}

	register(CmdVMVersion, "Version")
	register(CmdVMClassesBySignature, "ClassesBySignature")
	register(CmdVMAllClasses, "AllClasses")
	register(CmdVMAllThreads, "AllThreads")
	register(CmdVMTopLevelThreadGroups, "TopLevelThreadGroups")
	register(CmdVMDispose, "Dispose")
	register(CmdVMIDSizes, "IDSizes")
	register(CmdVMSuspend, "Suspend")
	register(CmdVMResume, "Resume")
	register(CmdVMExit, "Exit")
	register(CmdVMCreateString, "CreateString")
	register(CmdVMCapabilities, "Capabilities")
	register(CmdVMClassPaths, "ClassPaths")
	register(CmdVMDisposeObjects, "DisposeObjects")
	register(CmdVMHoldEvents, "HoldEvents")
	register(CmdVMReleaseEvents, "ReleaseEvents")
	register(CmdVMCapabilitiesNew, "CapabilitiesNew")
	register(CmdVMRedefineClasses, "RedefineClasses")
	register(CmdVMSetDefaultStratum, "SetDefaultStratum")
	register(CmdVMAllClassesWithGeneric, "AllClassesWithGeneric")
	register(CmdVMInstanceCounts, "InstanceCounts")
	register(CmdVMAllModules, "AllModules")

	register(CmdRTSignature, "Signature")
	register(CmdRTClassLoader, "ClassLoader")
	register(CmdRTModifiers, "Modifiers")
	register(CmdRTFields, "Fields")
	register(CmdRTMethods, "Methods")
	register(CmdRTGetValues, "GetValues")
	register(CmdRTSourceFile, "SourceFile")
	register(CmdRTNestedTypes, "NestedTypes")
	register(CmdRTStatus, "Status")
	register(CmdRTInterfaces, "Interfaces")
	register(CmdRTClassObject, "ClassObject")
	register(CmdRTSourceDebugExtension, "SourceDebugExtension")
	register(CmdRTSignatureWithGeneric, "SignatureWithGeneric")
	register(CmdRTFieldsWithGeneric, "FieldsWithGeneric")
	register(CmdRTMethodsWithGeneric, "MethodsWithGeneric")
	register(CmdRTInstances, "Instances")
	register(CmdRTClassFileVersion, "ClassFileVersion")
	register(CmdRTConstantPool, "ConstantPool")
	register(CmdRTModule, "Module")

	register(CmdClassTypeSuperclass, "Superclass")
	register(CmdClassTypeSetValues, "SetValues")
	register(CmdClassTypeInvokeMethod, "InvokeMethod")
	register(CmdClassTypeNewInstance, "NewInstance")
	register(CmdArrayTypeNewInstance, "NewInstance")
	register(CmdInterfaceTypeInvokeMethod, "InvokeMethod")

	register(CmdMethodLineTable, "LineTable")
	register(CmdMethodVariableTable, "VariableTable")
	register(CmdMethodBytecodes, "Bytecodes")
	register(CmdMethodIsObsolete, "IsObsolete")
	register(CmdMethodVariableTableWithGeneric, "VariableTableWithGeneric")

	register(CmdObjectReferenceType, "ReferenceType")
	register(CmdObjectGetValues, "GetValues")
	register(CmdObjectSetValues, "SetValues")
	register(CmdObjectMonitorInfo, "MonitorInfo")
	register(CmdObjectInvokeMethod, "InvokeMethod")
	register(CmdObjectDisableCollection, "DisableCollection")
	register(CmdObjectEnableCollection, "EnableCollection")
	register(CmdObjectIsCollected, "IsCollected")
	register(CmdObjectReferringObjects, "ReferringObjects")

	register(CmdStringValue, "Value")

	register(CmdThreadName, "Name")
	register(CmdThreadSuspend, "Suspend")
	register(CmdThreadResume, "Resume")
	register(CmdThreadStatus, "Status")
	register(CmdThreadThreadGroup, "ThreadGroup")
	register(CmdThreadFrames, "Frames")
	register(CmdThreadFrameCount, "FrameCount")
	register(CmdThreadOwnedMonitors, "OwnedMonitors")
	register(CmdThreadCurrentContendedMonitor, "CurrentContendedMonitor")
	register(CmdThreadStop, "Stop")
	register(CmdThreadInterrupt, "Interrupt")
	register(CmdThreadSuspendCount, "SuspendCount")
	register(CmdThreadOwnedMonitorsStackDepth, "OwnedMonitorsStackDepthInfo")
	register(CmdThreadForceEarlyReturn, "ForceEarlyReturn")
	register(CmdThreadIsVirtual, "IsVirtual")

	register(CmdThreadGroupName, "Name")
	register(CmdThreadGroupParent, "Parent")
	register(CmdThreadGroupChildren, "Children")

	register(CmdArrayLength, "Length")
	register(CmdArrayGetValues, "GetValues")
	register(CmdArraySetValues, "SetValues")

	register(CmdClassLoaderVisibleClasses, "VisibleClasses")

	register(CmdEventRequestSet, "Set")
	register(CmdEventRequestClear, "Clear")
	register(CmdEventRequestClearAllBreakpoints, "ClearAllBreakpoints")

	register(CmdStackFrameGetValues, "GetValues")
	register(CmdStackFrameSetValues, "SetValues")
	register(CmdStackFrameThisObject, "ThisObject")
	register(CmdStackFramePopFrames, "PopFrames")

	register(CmdClassObjectReflectedType, "ReflectedType")

	register(CmdModuleName, "Name")
	register(CmdModuleClassLoader, "ClassLoader")

	register(CmdEventComposite, "Composite")
}

func (s CommandSet) String() string {
	if name, found := commandSetNames[s]; found {
		return name
	}
	return fmt.Sprint(int(s))
}

func (k CommandKey) String() string {
	name, found := commandNames[k]
	if !found {
		name = fmt.Sprint(int(k.Command))
	}
	return fmt.Sprintf("%v.%s", k.Set, name)
}

// ParseCommandKey resolves a "CommandSet.Command" name such as "ArrayReference.SetValues".
func ParseCommandKey(name string) (CommandKey, error) {
	setName, cmdName, found := strings.Cut(name, ".")
	if !found {
		return CommandKey{}, fmt.Errorf("command name '%s' is not in CommandSet.Command form", name)
	}
	for key, n := range commandNames {
		if n == cmdName && key.Set.String() == setName {
			return key, nil
		}
	}
	return CommandKey{}, fmt.Errorf("unknown command '%s'", name)
}
