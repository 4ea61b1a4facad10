package domain

import "time"

// DriftPerInstruction is added to an agent's drift factor for every
// processed instruction. Drift only ever increases.
const DriftPerInstruction = 0.01

// MemoryLimit bounds the per-agent memory journal. Oldest entries are
// evicted first once the limit is reached; poisoned entries prepended at
// the front survive longest.
const MemoryLimit = 100

// AgentCard is the registration payload for an agent: identity plus
// self-declared capabilities and trust attributes. Nothing on the card is
// verified; the registrant controls every field including Verified.
type AgentCard struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Role         string        `json:"role"`
	Goal         string        `json:"goal"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Capabilities CapabilitySet `json:"capabilities"`
	Autonomy     float64       `json:"autonomy_level"`
	Authority    float64       `json:"authority_level"`
	TrustLevel   string        `json:"trust_level"`
	Owner        string        `json:"owner"`
	Verified     bool          `json:"verified"`
	DefaultState map[string]int `json:"default_state,omitempty"`
}

// AgentRecord is the mutable registry entry for one agent. It is created at
// registration, mutated by every processed instruction and by cascade
// events, reset on explicit request, and never implicitly deleted.
type AgentRecord struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Role         string        `json:"role"`
	Goal         string        `json:"goal"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Capabilities CapabilitySet `json:"capabilities"`
	Autonomy     float64       `json:"autonomy_level"`
	Authority    float64       `json:"authority_level"`
	TrustLevel   string        `json:"trust_level"`
	Owner        string        `json:"owner"`
	Verified     bool          `json:"verified"`

	// DriftFactor approximates behavioural deviation accrued over repeated
	// processing. Monotonically non-decreasing.
	DriftFactor float64 `json:"drift_factor"`

	// Memory is an ordered, bounded journal of processed instructions and
	// injected entries.
	Memory []string `json:"memory"`

	// State holds per-agent counters (completed_tasks, validations, ...).
	State map[string]int `json:"state"`

	// DefaultState is restored by Reset. Captured from the card at
	// registration time.
	DefaultState map[string]int `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy so callers can read a record outside the
// registry lock without sharing mutable state.
func (a *AgentRecord) Clone() *AgentRecord {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Capabilities = a.Capabilities.Clone()
	clone.Memory = append([]string(nil), a.Memory...)
	clone.State = cloneIntMap(a.State)
	clone.DefaultState = cloneIntMap(a.DefaultState)
	return &clone
}

// Redacted returns a copy with secret-bearing fields stripped, suitable for
// listing without include_secrets.
func (a *AgentRecord) Redacted() *AgentRecord {
	clone := a.Clone()
	clone.SystemPrompt = ""
	clone.Memory = nil
	clone.State = nil
	return clone
}

func cloneIntMap(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MemoryKind selects how a poisoned memory entry is framed before it is
// prepended to an agent's memory.
type MemoryKind string

const (
	MemoryInstruction MemoryKind = "instruction"
	MemoryFact        MemoryKind = "fact"
	MemoryConstraint  MemoryKind = "constraint"
)
