/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Number of flags in the VirtualMachine.CapabilitiesNew and VirtualMachine.Capabilities replies.
const (
	capabilitiesNewFlags = 32
	capabilitiesFlags    = 7
)

//go:embed profile.yaml
var defaultProfileYAML []byte

type CapabilityDef struct {
	Name string `yaml:"name"`
	// Position in the CapabilitiesNew reply; nil for capabilities that are not reported on the wire.
	Index     *int     `yaml:"index,omitempty"`
	Implies   []string `yaml:"implies,omitempty"`
	Conflicts []string `yaml:"conflicts,omitempty"`
}

type CommandGate struct {
	Command    string `yaml:"command"`
	Capability string `yaml:"capability"`
}

type EventGate struct {
	Kind       string `yaml:"kind"`
	Capability string `yaml:"capability"`
}

type ModifierGate struct {
	Modifier   string `yaml:"modifier"`
	Capability string `yaml:"capability"`
}

// Profile is the capability table and the capability requirements of commands, events and modifiers.
// A Profile is immutable once parsed.
type Profile struct {
	Capabilities []CapabilityDef `yaml:"capabilities"`
	Commands     []CommandGate   `yaml:"commands,omitempty"`
	Events       []EventGate     `yaml:"events,omitempty"`
	Modifiers    []ModifierGate  `yaml:"modifiers,omitempty"`

	byName        map[string]*CapabilityDef
	byIndex       [capabilitiesNewFlags]string
	commandGates  map[CommandKey]string
	eventGates    map[EventKind]string
	modifierGates map[ModifierKind]string
}

var defaultProfile = sync.OnceValue(func() *Profile {
	p, err := ParseProfile(defaultProfileYAML)
	if err != nil {
		panic(fmt.Errorf("the embedded protocol profile is invalid: %w", err))
	}
	return p
})

// DefaultProfile returns the embedded protocol profile.
func DefaultProfile() *Profile {
	return defaultProfile()
}

// LoadProfile reads a protocol profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read protocol profile: %w", err)
	}
	return ParseProfile(data)
}

func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unable to parse protocol profile: %w", err)
	}

	p.byName = make(map[string]*CapabilityDef, len(p.Capabilities))
	for i := range p.Capabilities {
		def := &p.Capabilities[i]
		if def.Name == "" {
			return nil, fmt.Errorf("capability #%d has no name", i)
		}
		if _, dup := p.byName[def.Name]; dup {
			return nil, fmt.Errorf("capability '%s' is defined more than once", def.Name)
		}
		p.byName[def.Name] = def

		if def.Index != nil {
			idx := *def.Index
			if idx < 0 || idx >= capabilitiesNewFlags {
				return nil, fmt.Errorf("capability '%s' has invalid index %d", def.Name, idx)
			}
			if p.byIndex[idx] != "" {
				return nil, fmt.Errorf("capabilities '%s' and '%s' share index %d", p.byIndex[idx], def.Name, idx)
			}
			p.byIndex[idx] = def.Name
		}
	}

	for _, def := range p.Capabilities {
		for _, related := range slices.Concat(def.Implies, def.Conflicts) {
			if _, known := p.byName[related]; !known {
				return nil, fmt.Errorf("capability '%s' refers to unknown capability '%s'", def.Name, related)
			}
		}
	}

	p.commandGates = make(map[CommandKey]string, len(p.Commands))
	for _, g := range p.Commands {
		key, err := ParseCommandKey(g.Command)
		if err != nil {
			return nil, err
		}
		if err = p.checkKnown(g.Capability); err != nil {
			return nil, err
		}
		p.commandGates[key] = g.Capability
	}

	p.eventGates = make(map[EventKind]string, len(p.Events))
	for _, g := range p.Events {
		kind, err := ParseEventKind(g.Kind)
		if err != nil {
			return nil, err
		}
		if err = p.checkKnown(g.Capability); err != nil {
			return nil, err
		}
		p.eventGates[kind] = g.Capability
	}

	p.modifierGates = make(map[ModifierKind]string, len(p.Modifiers))
	for _, g := range p.Modifiers {
		kind, err := ParseModifierKind(g.Modifier)
		if err != nil {
			return nil, err
		}
		if err = p.checkKnown(g.Capability); err != nil {
			return nil, err
		}
		p.modifierGates[kind] = g.Capability
	}

	return &p, nil
}

func (p *Profile) checkKnown(name string) error {
	if _, known := p.byName[name]; !known {
		return fmt.Errorf("unknown capability '%s'", name)
	}
	return nil
}

// Known returns true if the capability is defined in the profile.
func (p *Profile) Known(name string) bool {
	_, known := p.byName[name]
	return known
}

// Capability returns the definition of a capability.
func (p *Profile) Capability(name string) (CapabilityDef, bool) {
	def, found := p.byName[name]
	if !found {
		return CapabilityDef{}, false
	}
	return *def, true
}

// CommandCapability returns the capability a command requires, if any.
func (p *Profile) CommandCapability(key CommandKey) (string, bool) {
	name, found := p.commandGates[key]
	return name, found
}

// EventCapability returns the capability an event request of the given kind requires, if any.
func (p *Profile) EventCapability(kind EventKind) (string, bool) {
	name, found := p.eventGates[kind]
	return name, found
}

// ModifierCapability returns the capability an event request modifier requires, if any.
func (p *Profile) ModifierCapability(kind ModifierKind) (string, bool) {
	name, found := p.modifierGates[kind]
	return name, found
}

// CheckCommand returns *MustPossessCapabilityError if the command requires a capability that was not granted.
func (p *Profile) CheckCommand(granted Capabilities, key CommandKey) error {
	if name, gated := p.commandGates[key]; gated && !granted.Has(name) {
		return &MustPossessCapabilityError{Capability: name, Operation: key.String()}
	}
	return nil
}

// CheckEventRequest returns *MustPossessCapabilityError if the event kind
// or one of the modifiers requires a capability that was not granted.
func (p *Profile) CheckEventRequest(granted Capabilities, kind EventKind, modifiers []Modifier) error {
	// A modifier that can never apply to the kind is reported before any missing capability.
	for _, m := range modifiers {
		if !m.Kind.AllowedFor(kind) {
			return &InvalidFilterError{Modifier: m.Kind, Kind: kind}
		}
	}

	if name, gated := p.eventGates[kind]; gated && !granted.Has(name) {
		return &MustPossessCapabilityError{Capability: name, Operation: kind.String() + " event request"}
	}
	for _, m := range modifiers {
		if name, gated := p.modifierGates[m.Kind]; gated && !granted.Has(name) {
			return &MustPossessCapabilityError{Capability: name, Operation: m.Kind.String() + " modifier"}
		}
	}
	return nil
}

// EncodeCapabilitiesNew encodes the reply of VirtualMachine.CapabilitiesNew.
func (p *Profile) EncodeCapabilitiesNew(granted Capabilities) []byte {
	return p.encodeFlags(granted, capabilitiesNewFlags)
}

// EncodeCapabilities encodes the reply of the legacy VirtualMachine.Capabilities command.
func (p *Profile) EncodeCapabilities(granted Capabilities) []byte {
	return p.encodeFlags(granted, capabilitiesFlags)
}

func (p *Profile) encodeFlags(granted Capabilities, n int) []byte {
	w := NewWriter(DefaultIDSizes)
	for i := 0; i < n; i++ {
		w.Bool(p.byIndex[i] != "" && granted.Has(p.byIndex[i]))
	}
	return w.Data()
}

// DecodeCapabilitiesNew decodes the reply of VirtualMachine.CapabilitiesNew.
// Set flags at positions the profile does not name are ignored.
func (p *Profile) DecodeCapabilitiesNew(data []byte) (Capabilities, error) {
	r := NewReader(data, DefaultIDSizes)
	var names []string
	for i := 0; i < capabilitiesNewFlags; i++ {
		if r.Bool() && p.byIndex[i] != "" {
			names = append(names, p.byIndex[i])
		}
	}
	if err := r.Err(); err != nil {
		return Capabilities{}, fmt.Errorf("failed to decode capabilities: %w", err)
	}
	return NewCapabilities(names...), nil
}

// ParseModifierKind accepts modifier names such as "InstanceOnly" (case-insensitive).
func ParseModifierKind(name string) (ModifierKind, error) {
	for k, n := range modifierNames {
		if strings.EqualFold(n, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown modifier '%s'", name)
}
