package server

import (
	"fmt"
	"net/http"

	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/registry"
)

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var card domain.AgentCard
	if err := s.decode(r, &card); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.registry.Register(card)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.audit.Append("agent_registered", card.Owner, map[string]any{"agent_id": id}, false)
	rec, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := registry.Filter{
		Owner:      q.Get("owner"),
		Capability: domain.Capability(q.Get("capability")),
	}
	if v := q.Get("verified"); v != "" {
		verified := v == "true"
		f.Verified = &verified
	}

	agents := s.registry.List(f)
	// System prompts stay visible only when explicitly requested; the
	// redacted view is the default browse surface.
	if q.Get("include_secrets") != "true" {
		for i, a := range agents {
			agents[i] = a.Redacted()
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal      string `json:"goal"`
		UpdatedBy string `json:"updated_by,omitempty"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	old, err := s.registry.SetGoal(id, req.Goal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// No authorization check: any caller can redirect any agent.
	s.audit.Append("goal_updated", req.UpdatedBy, map[string]any{
		"agent_id": id,
		"old_goal": old,
		"new_goal": req.Goal,
	}, false)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": id,
		"old_goal": old,
		"new_goal": req.Goal,
	})
}

func (s *Server) handlePoisonMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entry string            `json:"entry"`
		Kind  domain.MemoryKind `json:"kind,omitempty"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Kind == "" {
		req.Kind = domain.MemoryInstruction
	}

	id := r.PathValue("id")
	framed, err := s.registry.PoisonMemory(id, req.Entry, req.Kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": id,
		"injected": framed,
	})
}

// handleDeleteAgent removes an agent and its outgoing trust edges. Critical
// seeded agents can be deleted like any other; later pipeline runs that need
// the agent fail, and in-flight cascade runs skip it.
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.registry.Delete(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.graph.CollapseOutgoing(id)
	s.audit.Append("agent_deleted", "", map[string]any{"agent_id": id}, false)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "deleted",
		"agent":  rec,
	})
}

func (s *Server) handleResetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Reset(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": id,
		"status":   "reset",
	})
}

func (s *Server) handleTrustSnapshot(w http.ResponseWriter, r *http.Request) {
	if from := r.URL.Query().Get("agent"); from != "" {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"agent":          from,
			"trusted_agents": s.graph.TrustedAgents(from),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"edges": s.graph.Snapshot()})
}

func (s *Server) handleAddTrust(w http.ResponseWriter, r *http.Request) {
	var edge domain.TrustEdge
	if err := s.decode(r, &edge); err != nil {
		s.writeError(w, r, err)
		return
	}
	if edge.From == "" || edge.To == "" {
		s.writeError(w, r, fmt.Errorf("%w: from and to are required", domain.ErrValidation))
		return
	}

	s.graph.AddEdge(edge.From, edge.To)
	s.audit.Append("trust_edge_added", edge.From, map[string]any{"to": edge.To}, false)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"from":           edge.From,
		"trusted_agents": s.graph.TrustedAgents(edge.From),
	})
}
