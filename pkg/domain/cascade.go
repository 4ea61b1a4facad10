package domain

import "time"

// FailureType selects the mutation a cascade applies at each visited agent.
type FailureType string

const (
	FailureStateCorruption FailureType = "state_corruption"
	FailureGoalOverride    FailureType = "goal_override"
	FailureMemoryWipe      FailureType = "memory_wipe"
	FailureTrustCollapse   FailureType = "trust_collapse"
)

// Cascade mutation constants, reproduced verbatim from the modelled system.
const (
	CascadeGoal           = "MALICIOUS GOAL INJECTED"
	CascadeMemorySentinel = "MEMORY CORRUPTED BY CASCADE"
	CascadeDriftPenalty   = 0.5
)

// ValidFailureType reports whether t names a known failure mutation.
func ValidFailureType(t FailureType) bool {
	switch t {
	case FailureStateCorruption, FailureGoalOverride, FailureMemoryWipe, FailureTrustCollapse:
		return true
	}
	return false
}

// CascadeEvent records one agent visit during a cascade run, with the
// agent's counter state captured before and after the mutation.
type CascadeEvent struct {
	Depth       int            `json:"depth"`
	AgentID     string         `json:"agent"`
	FailureType FailureType    `json:"failure_type"`
	StateBefore map[string]int `json:"state_before"`
	StateAfter  map[string]int `json:"state_after"`
	Timestamp   time.Time      `json:"timestamp"`
}

// CascadeRequest is the simulation input.
type CascadeRequest struct {
	TriggerAgent string      `json:"trigger_agent"`
	FailureType  FailureType `json:"failure_type"`
	Depth        int         `json:"propagation_depth"`
}
