// Package cascade propagates failure effects breadth-first across the
// trust graph, modelling how a single compromised agent degrades every
// agent that transitively trusts outward from it.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/registry"
	"github.com/maulworks/maul/pkg/trust"
)

// Simulator runs depth-bounded cascade simulations. Each run carries its
// own visited set, so cyclic trust graphs terminate and no agent is
// mutated twice within one run.
type Simulator struct {
	registry *registry.Registry
	graph    *trust.Graph
	logger   *slog.Logger

	mu      sync.Mutex
	history []domain.CascadeEvent

	now func() time.Time
}

// NewSimulator creates a cascade simulator over the given registry and
// trust graph.
func NewSimulator(reg *registry.Registry, graph *trust.Graph, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		registry: reg,
		graph:    graph,
		logger:   logger,
		now:      time.Now,
	}
}

// Simulate applies the failure mutation level by level, starting from the
// trigger agent at depth 0 and advancing through each visited agent's
// trusted set. It stops after depth levels or when a frontier comes up
// empty, and returns the ordered event sequence.
func (s *Simulator) Simulate(ctx context.Context, req domain.CascadeRequest) ([]domain.CascadeEvent, error) {
	if !domain.ValidFailureType(req.FailureType) {
		return nil, fmt.Errorf("%w: unknown failure type %q", domain.ErrValidation, req.FailureType)
	}
	if _, err := s.registry.Get(req.TriggerAgent); err != nil {
		return nil, err
	}

	s.logger.Info("starting cascade simulation",
		slog.String("trigger", req.TriggerAgent),
		slog.String("failure_type", string(req.FailureType)),
		slog.Int("depth", req.Depth))

	var events []domain.CascadeEvent
	visited := map[string]struct{}{req.TriggerAgent: {}}
	frontier := []string{req.TriggerAgent}

	for level := 0; level < req.Depth; level++ {
		if err := ctx.Err(); err != nil {
			return events, err
		}

		var next []string
		for _, agentID := range frontier {
			event, err := s.applyFailure(level, agentID, req.FailureType)
			if err != nil {
				// Agents deleted mid-run are skipped, never fatal.
				continue
			}
			events = append(events, event)

			for _, trusted := range s.graph.TrustedAgents(agentID) {
				if _, seen := visited[trusted]; seen {
					continue
				}
				visited[trusted] = struct{}{}
				next = append(next, trusted)
			}
		}

		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	s.mu.Lock()
	s.history = append(s.history, events...)
	s.mu.Unlock()

	s.logger.Info("cascade simulation complete",
		slog.String("trigger", req.TriggerAgent),
		slog.Int("events", len(events)))

	return events, nil
}

// History returns every event recorded across all runs.
func (s *Simulator) History() []domain.CascadeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CascadeEvent(nil), s.history...)
}

// ClearHistory drops the accumulated event record. Used by the ecosystem
// reset.
func (s *Simulator) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *Simulator) applyFailure(depth int, agentID string, failure domain.FailureType) (domain.CascadeEvent, error) {
	event := domain.CascadeEvent{
		Depth:       depth,
		AgentID:     agentID,
		FailureType: failure,
		Timestamp:   s.now().UTC(),
	}

	err := s.registry.Mutate(agentID, func(rec *domain.AgentRecord) {
		event.StateBefore = copyState(rec.State)

		switch failure {
		case domain.FailureStateCorruption:
			rec.State["corrupted"] = 1
			rec.DriftFactor += domain.CascadeDriftPenalty
		case domain.FailureGoalOverride:
			rec.Goal = domain.CascadeGoal
		case domain.FailureMemoryWipe:
			rec.Memory = []string{domain.CascadeMemorySentinel}
		case domain.FailureTrustCollapse:
			// Edge removal happens outside the registry lock, below.
		}

		event.StateAfter = copyState(rec.State)
	})
	if err != nil {
		return domain.CascadeEvent{}, err
	}

	if failure == domain.FailureTrustCollapse {
		s.graph.CollapseOutgoing(agentID)
	}

	return event, nil
}

func copyState(state map[string]int) map[string]int {
	out := make(map[string]int, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
