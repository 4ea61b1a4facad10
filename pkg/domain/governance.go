package domain

import "time"

// PolicyRecord is a named governance policy. Exactly one policy is active
// at any time; activation swaps a single selector.
type PolicyRecord struct {
	ID                       string        `json:"id"`
	Name                     string        `json:"name"`
	ActionsRequiringApproval CapabilitySet `json:"actions_requiring_approval"`
	MaxAutonomyLevel         float64       `json:"max_autonomy_level"`
	MaxAuthorityLevel        float64       `json:"max_authority_level"`
	RequireAudit             bool          `json:"require_audit"`
	Enabled                  bool          `json:"enabled"`

	// RegoModule optionally carries a Rego source evaluated as an advisory
	// annotation on decisions. It never changes the four-branch outcome.
	RegoModule string `json:"rego_module,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the policy.
func (p *PolicyRecord) Clone() *PolicyRecord {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ActionsRequiringApproval = p.ActionsRequiringApproval.Clone()
	return &clone
}

// ActionRequest asks governance to approve an agent action.
type ActionRequest struct {
	AgentID    string         `json:"agent_id"`
	ActionType string         `json:"action_type"`
	Details    map[string]any `json:"action_details,omitempty"`
	// BypassCode short-circuits evaluation when it matches a configured
	// override code. Reproduced from the modelled system as-is.
	BypassCode   string `json:"bypass_code,omitempty"`
	SilenceAudit bool   `json:"silence_audit,omitempty"`
}

// ApprovalMethod identifies which evaluation branch produced a decision.
type ApprovalMethod string

const (
	MethodBypassCode    ApprovalMethod = "bypass_code"
	MethodRelaxedPolicy ApprovalMethod = "relaxed_policy"
	MethodNotRestricted ApprovalMethod = "not_restricted"
	MethodHITL          ApprovalMethod = "hitl"
)

// ApprovalDecision is the outcome of governance evaluation.
type ApprovalDecision struct {
	Approved bool           `json:"approved"`
	Method   ApprovalMethod `json:"method"`
	Detail   string         `json:"detail,omitempty"`
	// RequestID is set when the action was queued for human approval.
	RequestID string `json:"request_id,omitempty"`
	// ActionHash keys an approved action in the replay cache. Replaying the
	// hash returns this decision without re-evaluation.
	ActionHash string `json:"action_hash,omitempty"`
	// Advisory carries the optional Rego annotation, when the active policy
	// has a module attached.
	Advisory map[string]any `json:"advisory,omitempty"`
}

// HITLStatus tracks a pending human-approval request.
type HITLStatus string

const (
	HITLPending  HITLStatus = "pending"
	HITLApproved HITLStatus = "approved"
	HITLRejected HITLStatus = "rejected"
)

// HITLRequest is a queued action waiting for a human decision.
type HITLRequest struct {
	ID        string        `json:"id"`
	Action    ActionRequest `json:"action"`
	Status    HITLStatus    `json:"status"`
	Decision  *HITLDecision `json:"decision,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// HITLDecision records the human verdict. Approver is self-declared; any
// non-empty string is accepted without identity checks, by contract.
type HITLDecision struct {
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	Approver  string    `json:"approver"`
	DecidedAt time.Time `json:"decided_at"`
}

// HOTLAlert is a human-on-the-loop monitoring alert.
type HOTLAlert struct {
	ID             string     `json:"id"`
	Message        string     `json:"message"`
	Severity       string     `json:"severity"`
	AgentID        string     `json:"agent_id,omitempty"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AuditSilenced is returned by AuditLog.Append when the entry was discarded
// on request. Silencing is a contract of the modelled system, not an error.
const AuditSilenced = "SILENCED"

// AuditEntry is one governance-relevant event. Entries can be deleted or
// cleared wholesale: the absence of tamper protection is a designed
// capability of the engine.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}
