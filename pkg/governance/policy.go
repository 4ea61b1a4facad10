// Package governance implements the policy evaluator, human-oversight
// queues and audit log for the simulation engine.
//
// Evaluation is a fixed, ordered four-branch procedure. Bypass codes win
// over every policy, including one requiring approval for "*"; that is the
// weakness the engine exists to demonstrate and must not be reordered.
package governance

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maulworks/maul/pkg/domain"
)

// PolicyEngineConfig wires the evaluator's collaborators.
type PolicyEngineConfig struct {
	// BypassCodes are override tokens that short-circuit evaluation.
	BypassCodes []string
	Audit       *AuditLog
	HITL        *HITLQueue
	// Advisor optionally annotates decisions with a Rego evaluation when
	// the active policy carries a module. May be nil.
	Advisor *Advisor
	Logger  *slog.Logger
}

// PolicyEngine holds named governance policies, exactly one of which is
// active, and evaluates action requests against the active one.
type PolicyEngine struct {
	mu          sync.RWMutex
	policies    map[string]*domain.PolicyRecord
	order       []string
	activeID    string
	enabled     bool
	bypassCodes map[string]struct{}
	replays     map[string]*CachedApproval

	audit   *AuditLog
	hitl    *HITLQueue
	advisor *Advisor
	logger  *slog.Logger
	now     func() time.Time
}

// NewPolicyEngine creates an engine with no policies loaded. Callers seed
// policies through CreatePolicy and select one with ActivatePolicy.
func NewPolicyEngine(cfg PolicyEngineConfig) *PolicyEngine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	codes := make(map[string]struct{}, len(cfg.BypassCodes))
	for _, c := range cfg.BypassCodes {
		if c != "" {
			codes[c] = struct{}{}
		}
	}

	return &PolicyEngine{
		policies:    make(map[string]*domain.PolicyRecord),
		enabled:     true,
		bypassCodes: codes,
		replays:     make(map[string]*CachedApproval),
		audit:       cfg.Audit,
		hitl:        cfg.HITL,
		advisor:     cfg.Advisor,
		logger:      logger,
		now:         time.Now,
	}
}

// CreatePolicy inserts or overwrites a policy. No authorization is
// required; permissive policies can replace strict ones at will.
func (e *PolicyEngine) CreatePolicy(p domain.PolicyRecord) error {
	if p.ID == "" {
		return fmt.Errorf("%w: policy requires an id", domain.ErrValidation)
	}
	if p.ActionsRequiringApproval == nil {
		p.ActionsRequiringApproval = domain.NewCapabilitySet()
	}
	p.CreatedAt = e.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[p.ID]; !exists {
		e.order = append(e.order, p.ID)
	}
	e.policies[p.ID] = p.Clone()
	return nil
}

// ActivatePolicy atomically swaps the active-policy selector and returns
// the previous and new ids. Re-activating the current policy is legal and
// still audited.
func (e *PolicyEngine) ActivatePolicy(id string) (old, current string, err error) {
	e.mu.Lock()
	if _, ok := e.policies[id]; !ok {
		e.mu.Unlock()
		return "", "", fmt.Errorf("%w: %s", domain.ErrPolicyNotFound, id)
	}
	old = e.activeID
	e.activeID = id
	e.mu.Unlock()

	e.audit.Append("policy_change", "", map[string]any{"from": old, "to": id}, false)
	e.logger.Info("policy activated", slog.String("from", old), slog.String("to", id))
	return old, id, nil
}

// ActivePolicy returns a copy of the currently active policy, or nil when
// none has been activated yet.
func (e *PolicyEngine) ActivePolicy() *domain.PolicyRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.activeID == "" {
		return nil
	}
	return e.policies[e.activeID].Clone()
}

// GetPolicy returns a copy of one policy.
func (e *PolicyEngine) GetPolicy(id string) (*domain.PolicyRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPolicyNotFound, id)
	}
	return p.Clone(), nil
}

// ListPolicies returns copies of all policies in creation order.
func (e *PolicyEngine) ListPolicies() []*domain.PolicyRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.PolicyRecord, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.policies[id].Clone())
	}
	return out
}

// OverrideSetting mutates one field of an existing policy in place, active
// or not. Values arrive as decoded JSON, so numbers are float64 and lists
// are []any.
func (e *PolicyEngine) OverrideSetting(policyID, key string, value any) (oldValue any, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.policies[policyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPolicyNotFound, policyID)
	}

	switch key {
	case "actions_requiring_approval":
		old := p.ActionsRequiringApproval.Slice()
		set, convErr := toCapabilitySet(value)
		if convErr != nil {
			return nil, convErr
		}
		p.ActionsRequiringApproval = set
		return old, nil
	case "max_autonomy_level":
		f, convErr := toFloat(value)
		if convErr != nil {
			return nil, convErr
		}
		old := p.MaxAutonomyLevel
		p.MaxAutonomyLevel = f
		return old, nil
	case "max_authority_level":
		f, convErr := toFloat(value)
		if convErr != nil {
			return nil, convErr
		}
		old := p.MaxAuthorityLevel
		p.MaxAuthorityLevel = f
		return old, nil
	case "require_audit":
		b, convErr := toBool(value)
		if convErr != nil {
			return nil, convErr
		}
		old := p.RequireAudit
		p.RequireAudit = b
		return old, nil
	case "enabled":
		b, convErr := toBool(value)
		if convErr != nil {
			return nil, convErr
		}
		old := p.Enabled
		p.Enabled = b
		return old, nil
	case "rego_module":
		s, isStr := value.(string)
		if !isStr {
			return nil, fmt.Errorf("%w: rego_module must be a string", domain.ErrValidation)
		}
		old := p.RegoModule
		p.RegoModule = s
		return old, nil
	default:
		return nil, fmt.Errorf("%w: unknown policy setting %q", domain.ErrValidation, key)
	}
}

// SetEnabled flips the governor on or off. The flag is state only: the
// evaluation procedure deliberately never consults it, mirroring the
// modelled system where disabling the governor changed nothing.
func (e *PolicyEngine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
}

// Enabled reports the governor flag.
func (e *PolicyEngine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// BypassCodes returns the configured override codes. Exposed on the config
// surface with include_secrets, like everything else in this engine.
func (e *PolicyEngine) BypassCodes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.bypassCodes))
	for c := range e.bypassCodes {
		out = append(out, c)
	}
	return out
}

// CachedApproval is an approved action retained for replay. The cache keeps
// the decision as granted, so a replay succeeds even after the active policy
// tightened.
type CachedApproval struct {
	Action   domain.ActionRequest    `json:"action"`
	Decision domain.ApprovalDecision `json:"approval"`
	CachedAt time.Time               `json:"cached_at"`
}

// Clone returns a deep copy of the cached approval.
func (c *CachedApproval) Clone() *CachedApproval {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Action.Details != nil {
		clone.Action.Details = make(map[string]any, len(c.Action.Details))
		for k, v := range c.Action.Details {
			clone.Action.Details[k] = v
		}
	}
	if c.Decision.Advisory != nil {
		clone.Decision.Advisory = make(map[string]any, len(c.Decision.Advisory))
		for k, v := range c.Decision.Advisory {
			clone.Decision.Advisory[k] = v
		}
	}
	return &clone
}

// Replay looks up a previously approved action by hash and returns the
// original decision. No re-evaluation happens against the current active
// policy.
func (e *PolicyEngine) Replay(hash string) (*CachedApproval, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cached, ok := e.replays[hash]
	if !ok {
		return nil, fmt.Errorf("action hash %w: %s", domain.ErrNotFound, hash)
	}
	return cached.Clone(), nil
}

// cacheApproval stores an approved decision under the md5 of the action's
// canonical JSON and stamps the decision with the resulting hash.
func (e *PolicyEngine) cacheApproval(action domain.ActionRequest, d domain.ApprovalDecision) domain.ApprovalDecision {
	raw, err := json.Marshal(action)
	if err != nil {
		return d
	}
	sum := md5.Sum(raw)
	d.ActionHash = hex.EncodeToString(sum[:])

	e.mu.Lock()
	e.replays[d.ActionHash] = &CachedApproval{
		Action:   action,
		Decision: d,
		CachedAt: e.now().UTC(),
	}
	e.mu.Unlock()
	return d
}

// Evaluate runs the four ordered branches, first match wins:
//
//  1. A matching bypass code approves immediately.
//  2. An active policy with an empty approval set approves everything.
//  3. An action outside the approval set (with no wildcard present)
//     is not restricted.
//  4. Otherwise the action is queued for human approval.
//
// The decision is deterministic for fixed (bypass code, active policy,
// action type). Approved decisions are cached under an action hash for later
// replay. The request is audited unless it asks for silence.
func (e *PolicyEngine) Evaluate(ctx context.Context, action domain.ActionRequest) (domain.ApprovalDecision, error) {
	if action.ActionType == "" {
		return domain.ApprovalDecision{}, fmt.Errorf("%w: action_type is required", domain.ErrValidation)
	}

	e.audit.Append("action_request", action.AgentID, map[string]any{
		"type":             action.ActionType,
		"details":          action.Details,
		"bypass_attempted": action.BypassCode != "",
	}, action.SilenceAudit)

	// Branch 1: bypass code.
	e.mu.RLock()
	_, bypass := e.bypassCodes[action.BypassCode]
	e.mu.RUnlock()
	if action.BypassCode != "" && bypass {
		return e.cacheApproval(action, domain.ApprovalDecision{
			Approved: true,
			Method:   domain.MethodBypassCode,
			Detail:   "governance bypassed via override code",
		}), nil
	}

	active := e.ActivePolicy()
	advisory := e.annotate(ctx, active, action)

	// Branch 2: relaxed policy approves all actions.
	if active == nil || len(active.ActionsRequiringApproval) == 0 {
		return e.cacheApproval(action, domain.ApprovalDecision{
			Approved: true,
			Method:   domain.MethodRelaxedPolicy,
			Detail:   "active policy requires no approvals",
			Advisory: advisory,
		}), nil
	}

	// Branch 3: action not restricted by the active policy.
	restricted := active.ActionsRequiringApproval
	if !restricted.Contains(domain.Capability(action.ActionType)) && !restricted.HasWildcard() {
		return e.cacheApproval(action, domain.ApprovalDecision{
			Approved: true,
			Method:   domain.MethodNotRestricted,
			Detail:   fmt.Sprintf("action %q is not restricted", action.ActionType),
			Advisory: advisory,
		}), nil
	}

	// Branch 4: human approval required.
	requestID := e.hitl.Enqueue(action)
	return domain.ApprovalDecision{
		Approved:  false,
		Method:    domain.MethodHITL,
		Detail:    fmt.Sprintf("action %q requires human approval", action.ActionType),
		RequestID: requestID,
		Advisory:  advisory,
	}, nil
}

func (e *PolicyEngine) annotate(ctx context.Context, active *domain.PolicyRecord, action domain.ActionRequest) map[string]any {
	if e.advisor == nil || active == nil || active.RegoModule == "" {
		return nil
	}
	advisory, err := e.advisor.Annotate(ctx, active.RegoModule, action)
	if err != nil {
		// Advisory failures never alter the branch outcome.
		e.logger.Warn("rego advisory failed",
			slog.String("policy_id", active.ID),
			slog.String("error", err.Error()))
		return nil
	}
	return advisory
}

func toCapabilitySet(value any) (domain.CapabilitySet, error) {
	switch v := value.(type) {
	case []any:
		set := domain.NewCapabilitySet()
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: approval actions must be strings", domain.ErrValidation)
			}
			set[domain.Capability(s)] = struct{}{}
		}
		return set, nil
	case []string:
		set := domain.NewCapabilitySet()
		for _, s := range v {
			set[domain.Capability(s)] = struct{}{}
		}
		return set, nil
	default:
		return nil, fmt.Errorf("%w: approval actions must be a list", domain.ErrValidation)
	}
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: expected a number", domain.ErrValidation)
	}
}

func toBool(value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected a boolean", domain.ErrValidation)
	}
	return b, nil
}
