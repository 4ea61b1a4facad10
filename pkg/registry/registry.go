// Package registry owns the in-memory agent records for the simulation
// engine. Registration is open: anyone can register any card, including one
// that overwrites an existing agent. Last write wins, no versioning.
package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maulworks/maul/pkg/domain"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Owner      string
	Capability domain.Capability
	Verified   *bool
}

// Registry is the agent registry. All access is guarded by a single
// read-write mutex; callers receive deep copies, never live records.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]*domain.AgentRecord
	order    []string
	driftLog []domain.DriftSample
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents: make(map[string]*domain.AgentRecord),
		logger: logger,
		now:    time.Now,
	}
}

// Register inserts or overwrites the agent described by card and returns
// its id. Overwriting keeps the agent's original position in insertion
// order.
func (r *Registry) Register(card domain.AgentCard) (string, error) {
	if card.ID == "" {
		return "", fmt.Errorf("%w: agent card requires an id", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &domain.AgentRecord{
		ID:           card.ID,
		Name:         card.Name,
		Role:         card.Role,
		Goal:         card.Goal,
		SystemPrompt: card.SystemPrompt,
		Capabilities: card.Capabilities.Clone(),
		Autonomy:     card.Autonomy,
		Authority:    card.Authority,
		TrustLevel:   card.TrustLevel,
		Owner:        card.Owner,
		Verified:     card.Verified,
		Memory:       []string{},
		State:        stateOrEmpty(card.DefaultState),
		DefaultState: cloneState(card.DefaultState),
		CreatedAt:    r.now().UTC(),
	}

	if _, exists := r.agents[card.ID]; !exists {
		r.order = append(r.order, card.ID)
	} else {
		r.logger.Info("agent overwritten", "agent_id", card.ID, "owner", card.Owner)
	}
	r.agents[card.ID] = rec

	return card.ID, nil
}

// Get returns a deep copy of the agent record.
func (r *Registry) Get(id string) (*domain.AgentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	return rec.Clone(), nil
}

// Delete removes the agent and returns its final record. No authorization
// check: any caller can remove any agent, seeded infrastructure included.
func (r *Registry) Delete(id string) (*domain.AgentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	delete(r.agents, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("agent deleted", "agent_id", id)
	return rec, nil
}

// List returns copies of all matching agents in insertion order.
func (r *Registry) List(f Filter) []*domain.AgentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.AgentRecord, 0, len(r.order))
	for _, id := range r.order {
		rec := r.agents[id]
		if f.Owner != "" && rec.Owner != f.Owner {
			continue
		}
		if f.Capability != "" && !rec.Capabilities.Contains(f.Capability) {
			continue
		}
		if f.Verified != nil && rec.Verified != *f.Verified {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out
}

// IDs returns the registered agent ids in insertion order. Used by the
// trust graph to expand wildcard edges against a live snapshot.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// SetGoal replaces the agent's goal and returns the previous one.
func (r *Registry) SetGoal(id, goal string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	old := rec.Goal
	rec.Goal = goal
	return old, nil
}

// Reset clears the agent's memory and drift and restores its type-specific
// default counters.
func (r *Registry) Reset(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	rec.Memory = []string{}
	rec.DriftFactor = 0
	rec.State = stateOrEmpty(rec.DefaultState)
	return nil
}

// BeginInstruction bumps the agent's drift factor by the fixed
// per-instruction step, records a drift sample, and returns a copy of the
// updated record. Drift accrues before the instruction runs, so it grows
// even when the oracle call later fails.
func (r *Registry) BeginInstruction(id string) (*domain.AgentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}

	rec.DriftFactor += domain.DriftPerInstruction
	r.driftLog = append(r.driftLog, domain.DriftSample{
		AgentID:     id,
		DriftFactor: rec.DriftFactor,
		Timestamp:   r.now().UTC(),
	})

	return rec.Clone(), nil
}

// AppendMemory journals a completed instruction at the tail of the agent's
// bounded memory.
func (r *Registry) AppendMemory(id, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	rec.Memory = appendBounded(rec.Memory, note)
	return nil
}

// PoisonMemory prepends a framed entry to the agent's memory so it outlives
// normal eviction. The framing prefix depends on kind.
func (r *Registry) PoisonMemory(id, entry string, kind domain.MemoryKind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}

	var framed string
	switch kind {
	case domain.MemoryInstruction:
		framed = "NEW INSTRUCTION: " + entry
	case domain.MemoryFact:
		framed = "VERIFIED FACT: " + entry
	case domain.MemoryConstraint:
		framed = "NEW CONSTRAINT: " + entry
	default:
		framed = entry
	}

	rec.Memory = append([]string{framed}, rec.Memory...)
	if len(rec.Memory) > domain.MemoryLimit {
		rec.Memory = rec.Memory[:domain.MemoryLimit]
	}
	return framed, nil
}

// Mutate runs fn against the live record under the registry lock. Used by
// the cascade simulator to apply failure mutations atomically with their
// before/after snapshots. fn must not retain the record.
func (r *Registry) Mutate(id string, fn func(*domain.AgentRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
	}
	fn(rec)
	return nil
}

// DriftLog returns a copy of the accumulated drift samples.
func (r *Registry) DriftLog() []domain.DriftSample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.DriftSample(nil), r.driftLog...)
}

// ResetAll restores every agent to its registration defaults and clears the
// drift log. Used by the ecosystem reset endpoint.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.agents {
		rec.Memory = []string{}
		rec.DriftFactor = 0
		rec.State = stateOrEmpty(rec.DefaultState)
	}
	r.driftLog = nil
}

func appendBounded(mem []string, entry string) []string {
	mem = append(mem, entry)
	if len(mem) > domain.MemoryLimit {
		mem = mem[len(mem)-domain.MemoryLimit:]
	}
	return mem
}

func stateOrEmpty(def map[string]int) map[string]int {
	if def == nil {
		return map[string]int{}
	}
	out := make(map[string]int, len(def))
	for k, v := range def {
		out[k] = v
	}
	return out
}

func cloneState(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
