package domain

import (
	"encoding/json"
	"sort"
)

// Capability is a single permission tag an agent can hold or advertise.
type Capability string

// CapabilityWildcard grants every capability. It is matched literally in
// membership checks; expansion to concrete capabilities never happens.
const CapabilityWildcard Capability = "*"

// CapabilitySet is a deduplicated collection of capability tags.
// Accumulation across delegation chains uses set union, so duplicates
// submitted by callers collapse silently.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given tags.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether c is in the set. The wildcard is a literal
// member, not a match-all: Contains("x") on {"*"} returns false.
func (s CapabilitySet) Contains(c Capability) bool {
	_, ok := s[c]
	return ok
}

// HasWildcard reports whether the set holds the wildcard tag.
func (s CapabilitySet) HasWildcard() bool {
	return s.Contains(CapabilityWildcard)
}

// Union returns a new set with the members of both sets.
func (s CapabilitySet) Union(other CapabilitySet) CapabilitySet {
	out := make(CapabilitySet, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
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

// IsSupersetOf reports whether every member of other is also in s.
func (s CapabilitySet) IsSupersetOf(other CapabilitySet) bool {
	for c := range other {
		if !s.Contains(c) {
			return false
		}
	}
	return true
}

// Slice returns the members in lexical order.
func (s CapabilitySet) Slice() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted JSON array.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes a JSON array into the set, dropping duplicates.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var caps []Capability
	if err := json.Unmarshal(data, &caps); err != nil {
		return err
	}
	*s = NewCapabilitySet(caps...)
	return nil
}
