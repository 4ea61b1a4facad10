package server

import (
	"net/http"

	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/telemetry"
)

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req domain.DelegationRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.delegations.Delegate(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordDelegation("direct")
	telemetry.RecordDelegation(r.Context(), false)
	s.audit.Append("delegation_created", req.FromAgent, map[string]any{
		"delegation_id": rec.ID,
		"target":        rec.TargetAgent,
		"task":          rec.Task,
	}, false)
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListDelegations(w http.ResponseWriter, r *http.Request) {
	recs := s.delegations.List()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"delegations": recs,
		"count":       len(recs),
	})
}

func (s *Server) handleGetDelegation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.delegations.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelegationChain(w http.ResponseWriter, r *http.Request) {
	chain, err := s.delegations.Chain(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"chain":  chain,
		"length": len(chain),
	})
}

func (s *Server) handleRedelegate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetAgent string `json:"target_agent"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.delegations.Redelegate(r.PathValue("id"), req.TargetAgent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordDelegation("redelegation")
	telemetry.RecordDelegation(r.Context(), true)
	s.audit.Append("delegation_forwarded", rec.FromAgent, map[string]any{
		"delegation_id": rec.ID,
		"parent_id":     rec.ParentID,
		"target":        rec.TargetAgent,
	}, false)
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRevokeDelegation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.delegations.Revoke(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit.Append("delegation_revoked", "", map[string]any{"delegation_id": id}, false)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"delegation_id": id,
		"status":        string(domain.DelegationRevoked),
	})
}
