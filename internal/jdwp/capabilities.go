/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package jdwp

import (
	"slices"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// Capabilities is an immutable set of granted capability names.
type Capabilities struct {
	names []string // Sorted, no duplicates
}

func NewCapabilities(names ...string) Capabilities {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	return Capabilities{names: slices.Compact(sorted)}
}

func (c Capabilities) Has(name string) bool {
	_, found := slices.BinarySearch(c.names, name)
	return found
}

// Names returns the granted capability names in sorted order.
func (c Capabilities) Names() []string {
	return slices.Clone(c.names)
}

func (c Capabilities) Len() int {
	return len(c.names)
}

func (c Capabilities) String() string {
	return "{" + strings.Join(c.names, ", ") + "}"
}

// Negotiator grants capabilities once per session.
type Negotiator struct {
	profile *Profile
	offered map[string]struct{}
	log     logr.Logger

	lock       sync.Mutex
	negotiated bool
	granted    Capabilities
}

// NewNegotiator creates a negotiator for a backend that offers the given capabilities.
func NewNegotiator(profile *Profile, offered []string, log logr.Logger) *Negotiator {
	n := &Negotiator{
		profile: profile,
		offered: make(map[string]struct{}, len(offered)),
		log:     log,
	}
	for _, name := range offered {
		n.offered[name] = struct{}{}
	}
	return n
}

// Negotiate grants the requested capabilities that are grantable and silently omits the rest.
// A capability is grantable when the profile knows it, the backend offers it and everything it implies,
// and it does not conflict with a capability granted before it.
// Negotiation happens once; later calls return ErrAlreadyNegotiated together with the existing grant.
func (n *Negotiator) Negotiate(requested []string) (Capabilities, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.negotiated {
		return n.granted, ErrAlreadyNegotiated
	}

	var granted []string
	for _, name := range requested {
		if slices.Contains(granted, name) {
			continue
		}
		if reason := n.ungrantableReason(name, granted); reason != "" {
			n.log.V(1).Info("Capability not granted", "Capability", name, "Reason", reason)
			continue
		}
		granted = append(granted, name)
	}

	n.negotiated = true
	n.granted = NewCapabilities(granted...)
	n.log.V(1).Info("Capabilities negotiated", "Requested", len(requested), "Granted", n.granted.String())
	return n.granted, nil
}

func (n *Negotiator) ungrantableReason(name string, granted []string) string {
	def, known := n.profile.Capability(name)
	if !known {
		return "unknown capability"
	}
	if _, offered := n.offered[name]; !offered {
		return "not offered by the VM"
	}
	for _, implied := range def.Implies {
		if _, offered := n.offered[implied]; !offered {
			return "implied capability " + implied + " is not offered by the VM"
		}
	}
	for _, other := range granted {
		otherDef, _ := n.profile.Capability(other)
		if slices.Contains(def.Conflicts, other) || slices.Contains(otherDef.Conflicts, name) {
			return "conflicts with " + other
		}
	}
	return ""
}

// Granted returns the negotiated capabilities. The second return value is false before negotiation.
func (n *Negotiator) Granted() (Capabilities, bool) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.granted, n.negotiated
}
