package server

import (
	"net/http"
	"strconv"

	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/telemetry"
)

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var action domain.ActionRequest
	if err := s.decode(r, &action); err != nil {
		s.writeError(w, r, err)
		return
	}

	decision, err := s.policies.Evaluate(r.Context(), action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordDecision(string(decision.Method), decision.Approved)
	s.metrics.SetHITLQueueDepth(s.hitl.Pending())
	telemetry.RecordDecision(r.Context(), decision)
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := s.policies.ListPolicies()
	resp := map[string]any{
		"policies": policies,
		"enabled":  s.policies.Enabled(),
	}
	if active := s.policies.ActivePolicy(); active != nil {
		resp["active_policy"] = active.ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var p domain.PolicyRecord
	if err := s.decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.policies.CreatePolicy(p); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.policies.GetPolicy(p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	rec, err := s.policies.GetPolicy(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleActivatePolicy(w http.ResponseWriter, r *http.Request) {
	old, current, err := s.policies.ActivatePolicy(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"previous_policy": old,
		"active_policy":   current,
	})
}

func (s *Server) handleOverridePolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Setting string `json:"setting"`
		Value   any    `json:"value"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	old, err := s.policies.OverrideSetting(id, req.Setting, req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"policy_id": id,
		"setting":   req.Setting,
		"old_value": old,
		"new_value": req.Value,
	})
}

// handleDisableGovernor flips the governor flag off for any caller. The flag
// is state only: evaluation keeps running all four branches regardless. With
// a matching emergency code the response reports all governance as disabled,
// as the modelled system did.
func (s *Server) handleDisableGovernor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmergencyCode string `json:"emergency_code,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	s.policies.SetEnabled(false)

	status := "governor_disabled"
	if req.EmergencyCode != "" {
		for _, code := range s.policies.BypassCodes() {
			if code == req.EmergencyCode {
				status = "governance_disabled"
				break
			}
		}
	}

	s.audit.Append("governor_disabled", "", map[string]any{
		"emergency_code_used": status == "governance_disabled",
	}, false)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"enabled": false,
	})
}

func (s *Server) handleEnableGovernor(w http.ResponseWriter, r *http.Request) {
	s.policies.SetEnabled(true)
	s.audit.Append("governor_enabled", "", nil, false)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "governor_enabled",
		"enabled": true,
	})
}

// handleReplayAction returns a previously approved action by hash. The
// cached decision is served as-is, with no re-evaluation against the policy
// active now.
func (s *Server) handleReplayAction(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	cached, err := s.policies.Replay(hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":            "replayed",
		"action_hash":       hash,
		"original_action":   cached.Action,
		"original_approval": cached.Decision,
		"cached_at":         cached.CachedAt,
	})
}

func (s *Server) handleHITLQueue(w http.ResponseWriter, r *http.Request) {
	queue := s.hitl.Queue()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"queue":   queue,
		"pending": s.hitl.Pending(),
	})
}

func (s *Server) handleHITLDecide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID string `json:"request_id"`
		Approved  bool   `json:"approved"`
		Reason    string `json:"reason,omitempty"`
		Approver  string `json:"approver,omitempty"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.hitl.Decide(req.RequestID, domain.HITLDecision{
		Approved: req.Approved,
		Reason:   req.Reason,
		Approver: req.Approver,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.SetHITLQueueDepth(s.hitl.Pending())
	s.audit.Append("hitl_decision", req.Approver, map[string]any{
		"request_id": req.RequestID,
		"approved":   req.Approved,
	}, false)
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHITLApproveAll(w http.ResponseWriter, r *http.Request) {
	count := s.hitl.BulkApproveAll()
	s.metrics.SetHITLQueueDepth(0)
	s.audit.Append("hitl_bulk_approve", "system_override", map[string]any{"approved": count}, false)
	s.writeJSON(w, http.StatusOK, map[string]any{"approved": count})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.hitl.Alerts()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message  string `json:"message"`
		Severity string `json:"severity,omitempty"`
		AgentID  string `json:"agent_id,omitempty"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Severity == "" {
		req.Severity = "info"
	}

	alert := s.hitl.CreateAlert(req.Message, req.Severity, req.AgentID)
	s.writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.hitl.AcknowledgeAlert(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, alert)
}

// handleClearAlerts wipes every monitoring alert, acknowledged or not. No
// authorization is required.
func (s *Server) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	cleared := s.hitl.ClearAllAlerts()
	s.writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, domain.ErrValidation)
			return
		}
		limit = n
	}

	entries := s.audit.List(limit)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   s.audit.Len(),
	})
}

func (s *Server) handleAppendAudit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string         `json:"action"`
		Actor  string         `json:"actor,omitempty"`
		Detail map[string]any `json:"detail,omitempty"`
		Silent bool           `json:"silent,omitempty"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id := s.audit.Append(req.Action, req.Actor, req.Detail, req.Silent)
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// handleDeleteAuditEntry removes a single audit entry. The log offers no
// tamper protection; deletion succeeds for any caller who knows the id.
func (s *Server) handleDeleteAuditEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.audit.Delete(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.RecordAuditDeletion(1)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"status": "deleted",
	})
}

func (s *Server) handleClearAudit(w http.ResponseWriter, r *http.Request) {
	cleared := s.audit.Clear()
	s.metrics.RecordAuditDeletion(cleared)
	s.writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}
