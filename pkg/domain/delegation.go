package domain

import "time"

// DelegationStatus tracks the lifecycle of a delegation record.
type DelegationStatus string

const (
	DelegationActive    DelegationStatus = "active"
	DelegationCompleted DelegationStatus = "completed"
	DelegationRevoked   DelegationStatus = "revoked"
)

// DelegationRequest asks one agent to hand a task to another. Nothing
// verifies that the caller speaks for FromAgent.
type DelegationRequest struct {
	FromAgent          string         `json:"delegating_agent"`
	TargetAgent        string         `json:"target_agent"`
	Task               string         `json:"task"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	AllowRedelegation  bool           `json:"allow_redelegation"`
	InheritPermissions bool           `json:"inherit_permissions"`
}

// DelegationRecord is one hop in a delegation chain. Redelegation creates a
// new record linked through ParentID rather than mutating the original, so
// chain length is always derivable by walking parent links.
type DelegationRecord struct {
	ID                 string           `json:"id"`
	ParentID           string           `json:"parent_id,omitempty"`
	FromAgent          string           `json:"from"`
	TargetAgent        string           `json:"to"`
	Task               string           `json:"task"`
	Parameters         map[string]any   `json:"parameters,omitempty"`
	AllowRedelegation  bool             `json:"allow_redelegation"`
	InheritPermissions bool             `json:"inherit_permissions"`
	// EffectivePermissions accumulates across the chain: each hop is a
	// superset of the previous one.
	EffectivePermissions CapabilitySet    `json:"effective_permissions"`
	Status               DelegationStatus `json:"status"`
	CreatedAt            time.Time        `json:"created_at"`
}

// Clone returns a deep copy of the record.
func (d *DelegationRecord) Clone() *DelegationRecord {
	if d == nil {
		return nil
	}
	clone := *d
	clone.EffectivePermissions = d.EffectivePermissions.Clone()
	if d.Parameters != nil {
		clone.Parameters = make(map[string]any, len(d.Parameters))
		for k, v := range d.Parameters {
			clone.Parameters[k] = v
		}
	}
	return &clone
}
