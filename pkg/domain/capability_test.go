package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilitySetOperations(t *testing.T) {
	s := NewCapabilitySet("read", "write")

	assert.True(t, s.Contains("read"))
	assert.False(t, s.Contains("delete"))
	assert.False(t, s.HasWildcard())

	u := s.Union(NewCapabilitySet("delete"))
	assert.True(t, u.Contains("delete"))
	assert.True(t, u.IsSupersetOf(s))
	assert.False(t, s.IsSupersetOf(u))

	// Union does not mutate its receiver.
	assert.False(t, s.Contains("delete"))
}

func TestCapabilitySetWildcard(t *testing.T) {
	s := NewCapabilitySet(TrustWildcard)
	assert.True(t, s.HasWildcard())
	// Wildcard is an element, not a match-all for Contains.
	assert.False(t, s.Contains("anything"))
}

func TestCapabilitySetCloneIsDetached(t *testing.T) {
	s := NewCapabilitySet("read")
	c := s.Clone()
	c["write"] = struct{}{}

	assert.False(t, s.Contains("write"))
}

func TestCapabilitySetJSON(t *testing.T) {
	s := NewCapabilitySet("b", "a", "c")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	// Serialized as a sorted list, not an object.
	assert.Equal(t, `["a","b","c"]`, string(data))

	var back CapabilitySet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IsSupersetOf(s))
	assert.True(t, s.IsSupersetOf(back))
}

func TestOracleErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := &OracleError{Err: cause}

	assert.True(t, IsOracleError(err))
	assert.True(t, IsOracleError(fmt.Errorf("invoking oracle: %w", err)))
	assert.False(t, IsOracleError(cause))
	assert.ErrorIs(t, err, cause)
}

func TestSentinelErrorHierarchy(t *testing.T) {
	// Agent and policy lookups share the generic not-found sentinel so HTTP
	// mapping needs a single check.
	assert.True(t, errors.Is(ErrAgentNotFound, ErrNotFound))
	assert.True(t, errors.Is(ErrPolicyNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrValidation, ErrNotFound))
}

func TestAgentRecordCloneIsDeep(t *testing.T) {
	rec := &AgentRecord{
		ID:           "a",
		Capabilities: NewCapabilitySet("read"),
		Memory:       []string{"note"},
		State:        map[string]int{"n": 1},
	}

	clone := rec.Clone()
	clone.Capabilities["write"] = struct{}{}
	clone.Memory[0] = "tampered"
	clone.State["n"] = 99

	assert.False(t, rec.Capabilities.Contains("write"))
	assert.Equal(t, "note", rec.Memory[0])
	assert.Equal(t, 1, rec.State["n"])
}

func TestAgentRecordRedacted(t *testing.T) {
	rec := &AgentRecord{
		ID:           "a",
		SystemPrompt: "secret key inside",
		Memory:       []string{"private"},
		State:        map[string]int{"n": 1},
	}

	red := rec.Redacted()
	assert.Empty(t, red.SystemPrompt)
	assert.Nil(t, red.Memory)
	assert.Nil(t, red.State)
	// The original keeps its secrets.
	assert.Equal(t, "secret key inside", rec.SystemPrompt)
}

func TestMarketplaceListingAdvertised(t *testing.T) {
	l := &MarketplaceListing{
		ID:                     "x",
		AdvertisedCapabilities: NewCapabilitySet("notes"),
		ActualCapabilities:     NewCapabilitySet("notes", "network_access"),
		Config:                 map[string]any{"backdoor_enabled": true},
		SystemPrompt:           "SECRET",
	}

	pub := l.Advertised()
	assert.Nil(t, pub.ActualCapabilities)
	assert.Nil(t, pub.Config)
	assert.Empty(t, pub.SystemPrompt)
	assert.True(t, pub.AdvertisedCapabilities.Contains("notes"))
}
