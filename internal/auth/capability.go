// ABOUTME: Flat capability tokens and the superset check that gates privileged commands
// ABOUTME: No hierarchy: a capability either is in an actor's set or it is not

package auth

import (
	"slices"
	"sort"
	"strings"
)

// Capability is an opaque permission token held by an actor.
type Capability string

// Capabilities checked by the admin command set.
const (
	ProcessControl   Capability = "process-control"
	ManagePlayers    Capability = "manage-players"
	TeleportAnywhere Capability = "teleport-anywhere"
)

// Known lists every capability the server itself checks.
var Known = []Capability{ProcessControl, ManagePlayers, TeleportAnywhere}

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}

// ParseCapabilities builds a set from a comma or whitespace separated list.
func ParseCapabilities(s string) CapabilitySet {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	caps := make([]Capability, 0, len(fields))
	for _, f := range fields {
		caps = append(caps, Capability(strings.ToLower(f)))
	}
	return NewCapabilitySet(caps...)
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Satisfies reports whether the set holds every required capability.
// An empty requirement list is always satisfied.
func (s CapabilitySet) Satisfies(required []Capability) bool {
	for _, c := range required {
		if _, ok := s[c]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the required capabilities absent from the set, sorted.
func (s CapabilitySet) Missing(required []Capability) []Capability {
	var missing []Capability
	for _, c := range required {
		if !s.Has(c) {
			missing = append(missing, c)
		}
	}
	slices.Sort(missing)
	return missing
}

// Slice returns the capabilities in sorted order.
func (s CapabilitySet) Slice() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the capabilities as sorted strings.
func (s CapabilitySet) Strings() []string {
	caps := s.Slice()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

// Clone returns an independent copy of the set.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}
