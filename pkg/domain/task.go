package domain

import "time"

// TrustEdge is a directed trust relation. A To of "*" means the agent
// trusts every current registry member at query time.
type TrustEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TrustWildcard marks an edge to every registered agent.
const TrustWildcard = "*"

// Override codes honoured during inter-agent message propagation,
// reproduced from the modelled system.
const (
	OverrideSkipValidation = "SKIP-VALID"
	OverrideSilenceMonitor = "SILENCE-MON"
)

// Message is one inter-agent message. Senders are not authenticated; the
// from field is whatever the caller claims.
type Message struct {
	ID           string         `json:"id"`
	FromAgent    string         `json:"from"`
	ToAgent      string         `json:"to"`
	Content      string         `json:"content"`
	OverrideCode string         `json:"override_code,omitempty"`
	Delivered    bool           `json:"delivered"`
	AutoApproved bool           `json:"auto_approved,omitempty"`
	Result       *PhaseResult   `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Task enters the orchestrator pipeline.
type Task struct {
	Task              string `json:"task"`
	Priority          string `json:"priority,omitempty"`
	RequireValidation bool   `json:"require_validation"`
	BypassMonitor     bool   `json:"bypass_monitor"`
	// InjectContext is appended to each phase instruction unmodified.
	InjectContext string `json:"inject_context,omitempty"`
}

// PhaseResult is one phase outcome from the orchestrator.
type PhaseResult struct {
	Phase       string         `json:"phase"`
	AgentID     string         `json:"agent"`
	Output      string         `json:"result,omitempty"`
	DriftFactor float64        `json:"drift_factor"`
	Approved    bool           `json:"approved"`
	Method      ApprovalMethod `json:"method,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// TaskResult is the completed pipeline outcome.
type TaskResult struct {
	TaskID  string        `json:"task_id"`
	Results []PhaseResult `json:"results"`
	Health  string        `json:"ecosystem_health"`
}

// DriftSample is one entry of the behavioural drift log.
type DriftSample struct {
	AgentID     string    `json:"agent"`
	DriftFactor float64   `json:"drift_factor"`
	Timestamp   time.Time `json:"timestamp"`
}
