/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProfileYAML = `
capabilities:
  - name: alpha
    index: 0
  - name: beta
    index: 1
    implies: [alpha]
  - name: gamma
    index: 2
    conflicts: [alpha]
  - name: delta
    index: 31
  - name: hidden
commands:
  - command: VirtualMachine.RedefineClasses
    capability: beta
events:
  - kind: monitor_wait
    capability: delta
modifiers:
  - modifier: InstanceOnly
    capability: gamma
`

func TestDefaultProfileIsValid(t *testing.T) {
	t.Parallel()

	p := DefaultProfile()
	require.NotNil(t, p)
	assert.True(t, p.Known("can_redefine_classes"))
	assert.True(t, p.Known("can_generate_breakpoint_events"))
	assert.False(t, p.Known("can_fly"))

	name, gated := p.CommandCapability(CmdVMRedefineClasses)
	assert.True(t, gated)
	assert.Equal(t, "can_redefine_classes", name)

	name, gated = p.ModifierCapability(ModInstanceOnly)
	assert.True(t, gated)
	assert.Equal(t, "can_use_instance_filters", name)

	_, gated = p.CommandCapability(CmdVMVersion)
	assert.False(t, gated)
}

func TestParseProfileErrors(t *testing.T) {
	t.Parallel()

	invalid := map[string]string{
		"duplicate name":         "capabilities: [{name: a}, {name: a}]",
		"missing name":           "capabilities: [{index: 1}]",
		"index out of range":     "capabilities: [{name: a, index: 32}]",
		"shared index":           "capabilities: [{name: a, index: 1}, {name: b, index: 1}]",
		"unknown implied":        "capabilities: [{name: a, implies: [b]}]",
		"unknown gate":           "capabilities: [{name: a}]\ncommands: [{command: VirtualMachine.Exit, capability: b}]",
		"unknown command":        "capabilities: [{name: a}]\ncommands: [{command: VirtualMachine.Fly, capability: a}]",
		"unknown event kind":     "capabilities: [{name: a}]\nevents: [{kind: sunrise, capability: a}]",
		"unknown modifier":       "capabilities: [{name: a}]\nmodifiers: [{modifier: Sometimes, capability: a}]",
		"not a capability table": "capabilities: 3",
	}

	for name, data := range invalid {
		_, err := ParseProfile([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestLoadProfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testProfileYAML), 0600))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.True(t, p.Known("hidden"))

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNegotiation(t *testing.T) {
	t.Parallel()

	p, err := ParseProfile([]byte(testProfileYAML))
	require.NoError(t, err)

	t.Run("grants offered capabilities", func(t *testing.T) {
		t.Parallel()

		n := NewNegotiator(p, []string{"alpha", "beta", "delta"}, logr.Discard())
		_, negotiated := n.Granted()
		assert.False(t, negotiated)

		granted, negotiateErr := n.Negotiate([]string{"beta", "delta", "gamma", "unknown", "beta"})
		require.NoError(t, negotiateErr)
		assert.Equal(t, []string{"beta", "delta"}, granted.Names())

		again, negotiated := n.Granted()
		assert.True(t, negotiated)
		assert.Equal(t, granted, again)
	})

	t.Run("implied capability must be offered", func(t *testing.T) {
		t.Parallel()

		n := NewNegotiator(p, []string{"beta"}, logr.Discard())
		granted, negotiateErr := n.Negotiate([]string{"beta"})
		require.NoError(t, negotiateErr)
		assert.Zero(t, granted.Len())
	})

	t.Run("conflicts are resolved in request order", func(t *testing.T) {
		t.Parallel()

		n := NewNegotiator(p, []string{"alpha", "gamma"}, logr.Discard())
		granted, negotiateErr := n.Negotiate([]string{"gamma", "alpha"})
		require.NoError(t, negotiateErr)
		assert.Equal(t, []string{"gamma"}, granted.Names())
	})

	t.Run("negotiates once", func(t *testing.T) {
		t.Parallel()

		n := NewNegotiator(p, []string{"alpha", "delta"}, logr.Discard())
		first, negotiateErr := n.Negotiate([]string{"alpha"})
		require.NoError(t, negotiateErr)

		second, negotiateErr := n.Negotiate([]string{"delta"})
		assert.ErrorIs(t, negotiateErr, ErrAlreadyNegotiated)
		assert.Equal(t, first, second)
	})
}

func TestCapabilityGates(t *testing.T) {
	t.Parallel()

	p, err := ParseProfile([]byte(testProfileYAML))
	require.NoError(t, err)

	none := NewCapabilities()
	var mustPossess *MustPossessCapabilityError

	err = p.CheckCommand(none, CmdVMRedefineClasses)
	require.ErrorAs(t, err, &mustPossess)
	assert.Equal(t, "beta", mustPossess.Capability)
	assert.Equal(t, ErrNotImplemented, ErrorCodeFor(err))
	assert.NoError(t, p.CheckCommand(NewCapabilities("beta"), CmdVMRedefineClasses))
	assert.NoError(t, p.CheckCommand(none, CmdVMVersion))

	err = p.CheckEventRequest(none, EventMonitorWait, nil)
	require.ErrorAs(t, err, &mustPossess)
	assert.Equal(t, "delta", mustPossess.Capability)

	err = p.CheckEventRequest(NewCapabilities("delta"), EventMonitorWait, []Modifier{InstanceOnly(1)})
	require.ErrorAs(t, err, &mustPossess)
	assert.Equal(t, "gamma", mustPossess.Capability)

	assert.NoError(t, p.CheckEventRequest(none, EventBreakpoint, []Modifier{CountModifier(1)}))

	// A modifier that never applies to the kind wins over a missing capability.
	var invalidFilter *InvalidFilterError
	err = p.CheckEventRequest(none, EventMonitorWait, []Modifier{ClassMatch("a.*"), SourceNameMatch("*.java")})
	require.ErrorAs(t, err, &invalidFilter)
	assert.Equal(t, ModSourceNameMatch, invalidFilter.Modifier)
	assert.Equal(t, EventMonitorWait, invalidFilter.Kind)
}

func TestCapabilitiesNewEncoding(t *testing.T) {
	t.Parallel()

	p, err := ParseProfile([]byte(testProfileYAML))
	require.NoError(t, err)

	granted := NewCapabilities("beta", "delta", "hidden")
	data := p.EncodeCapabilitiesNew(granted)
	require.Len(t, data, 32)
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, byte(1), data[1])
	assert.Equal(t, byte(1), data[31])

	legacy := p.EncodeCapabilities(granted)
	assert.Equal(t, []byte{0, 1, 0, 0, 0, 0, 0}, legacy)

	decoded, err := p.DecodeCapabilitiesNew(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "delta"}, decoded.Names(), "capabilities without an index are not on the wire")

	// Unnamed positions are ignored.
	data[20] = 1
	decoded, err = p.DecodeCapabilitiesNew(data)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Len())

	_, err = p.DecodeCapabilitiesNew(data[:10])
	assert.Error(t, err)
}
