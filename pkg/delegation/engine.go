// Package delegation creates and chains task delegations between agents.
//
// Delegation is deliberately unverified: nothing checks that the caller
// speaks for the delegating agent, no maximum chain depth is enforced, and
// permissions only ever accumulate along a chain. The engine exists to make
// those properties observable, not to prevent them.
package delegation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maulworks/maul/pkg/domain"
)

// AgentSource is the registry access the engine needs: capability snapshots
// of delegating agents. An unknown agent is not an error; it simply
// contributes no capabilities.
type AgentSource interface {
	Get(id string) (*domain.AgentRecord, error)
}

// Engine owns the delegation table. A single mutex guards the table and
// serialises concurrent redelegations of the same record, so permission
// accumulation is well-ordered.
type Engine struct {
	mu      sync.Mutex
	records map[string]*domain.DelegationRecord
	order   []string
	agents  AgentSource
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an empty delegation engine.
func NewEngine(agents AgentSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		records: make(map[string]*domain.DelegationRecord),
		agents:  agents,
		logger:  logger,
		now:     time.Now,
	}
}

// Delegate creates a new active delegation record. When the request inherits
// permissions, the record snapshots the delegating agent's capability set at
// creation time; later capability changes do not flow back into the record.
func (e *Engine) Delegate(req domain.DelegationRequest) (*domain.DelegationRecord, error) {
	effective := domain.NewCapabilitySet()
	if req.InheritPermissions {
		effective = e.capabilitiesOf(req.FromAgent)
	}

	rec := &domain.DelegationRecord{
		ID:                   uuid.NewString(),
		FromAgent:            req.FromAgent,
		TargetAgent:          req.TargetAgent,
		Task:                 req.Task,
		Parameters:           req.Parameters,
		AllowRedelegation:    req.AllowRedelegation,
		InheritPermissions:   req.InheritPermissions,
		EffectivePermissions: effective,
		Status:               domain.DelegationActive,
		CreatedAt:            e.now().UTC(),
	}

	e.mu.Lock()
	e.records[rec.ID] = rec
	e.order = append(e.order, rec.ID)
	e.mu.Unlock()

	e.logger.Info("delegation created",
		slog.String("delegation_id", rec.ID),
		slog.String("from", rec.FromAgent),
		slog.String("to", rec.TargetAgent),
		slog.Bool("inherit_permissions", rec.InheritPermissions))

	return rec.Clone(), nil
}

// Redelegate chains an existing delegation to a new target. The new record's
// delegator is the source's target, and its effective permissions are the
// union of the source's effective permissions and the new delegator's own
// capabilities: permissions strictly grow across a chain and never shrink.
//
// Fails with domain.ErrPermissionDenied when the source record disallows
// redelegation, and domain.ErrNotFound for an unknown id.
func (e *Engine) Redelegate(delegationID, newTarget string) (*domain.DelegationRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	source, ok := e.records[delegationID]
	if !ok {
		return nil, fmt.Errorf("delegation %w: %s", domain.ErrNotFound, delegationID)
	}
	if !source.AllowRedelegation {
		return nil, fmt.Errorf("%w: delegation %s disallows redelegation", domain.ErrPermissionDenied, delegationID)
	}

	base := domain.NewCapabilitySet()
	if source.InheritPermissions {
		base = e.capabilitiesOf(source.TargetAgent)
	}

	rec := &domain.DelegationRecord{
		ID:                   uuid.NewString(),
		ParentID:             source.ID,
		FromAgent:            source.TargetAgent,
		TargetAgent:          newTarget,
		Task:                 source.Task,
		Parameters:           source.Parameters,
		AllowRedelegation:    source.AllowRedelegation,
		InheritPermissions:   source.InheritPermissions,
		EffectivePermissions: base.Union(source.EffectivePermissions),
		Status:               domain.DelegationActive,
		CreatedAt:            e.now().UTC(),
	}

	e.records[rec.ID] = rec
	e.order = append(e.order, rec.ID)

	e.logger.Info("delegation chained",
		slog.String("delegation_id", rec.ID),
		slog.String("parent_id", source.ID),
		slog.String("to", newTarget),
		slog.Int("effective_permissions", len(rec.EffectivePermissions)))

	return rec.Clone(), nil
}

// Get returns a copy of one delegation record.
func (e *Engine) Get(id string) (*domain.DelegationRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[id]
	if !ok {
		return nil, fmt.Errorf("delegation %w: %s", domain.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// List returns copies of all delegation records in creation order.
func (e *Engine) List() []*domain.DelegationRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*domain.DelegationRecord, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.records[id].Clone())
	}
	return out
}

// Chain walks parent links from the given record back to the chain root and
// returns the hops root-first. Chain length for observability is len(chain).
func (e *Engine) Chain(id string) ([]*domain.DelegationRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[id]
	if !ok {
		return nil, fmt.Errorf("delegation %w: %s", domain.ErrNotFound, id)
	}

	var chain []*domain.DelegationRecord
	for rec != nil {
		chain = append([]*domain.DelegationRecord{rec.Clone()}, chain...)
		if rec.ParentID == "" {
			break
		}
		rec = e.records[rec.ParentID]
	}
	return chain, nil
}

// Revoke marks a delegation revoked. The record stays in the table; chains
// built on it remain intact.
func (e *Engine) Revoke(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[id]
	if !ok {
		return fmt.Errorf("delegation %w: %s", domain.ErrNotFound, id)
	}
	rec.Status = domain.DelegationRevoked
	return nil
}

// Clear drops every delegation record. Used by the ecosystem reset.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = make(map[string]*domain.DelegationRecord)
	e.order = nil
}

func (e *Engine) capabilitiesOf(agentID string) domain.CapabilitySet {
	rec, err := e.agents.Get(agentID)
	if err != nil {
		return domain.NewCapabilitySet()
	}
	return rec.Capabilities.Clone()
}
