package server

import (
	"net/http"
	"time"

	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/telemetry"
)

func (s *Server) handleProcessTask(w http.ResponseWriter, r *http.Request) {
	var task domain.Task
	if err := s.decode(r, &task); err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	result, err := s.orchestrator.ProcessTask(r.Context(), task)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordTask(result.Health)
	telemetry.RecordTask(r.Context(), len(result.Results), time.Since(start))
	s.audit.Append("task_processed", "", map[string]any{
		"task_id": result.TaskID,
		"phases":  len(result.Results),
		"health":  result.Health,
	}, false)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs := s.orchestrator.Messages()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromAgent    string `json:"from_agent"`
		ToAgent      string `json:"to_agent"`
		Content      string `json:"content"`
		OverrideCode string `json:"override_code,omitempty"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// The sender identity is taken from the request body as-is.
	msg := s.orchestrator.SendMessage(r.Context(), req.FromAgent, req.ToAgent, req.Content, req.OverrideCode)
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleInjectContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key       string `json:"key"`
		Value     any    `json:"value"`
		Propagate bool   `json:"propagate"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.orchestrator.Inject(req.Key, req.Value, req.Propagate)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"key":        req.Key,
		"propagated": req.Propagate,
	})
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orchestrator.Context())
}

// handleReset restores the whole simulation to its seeded default state.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.registry.ResetAll()
	s.orchestrator.Reset()
	s.simulator.ClearHistory()
	s.delegations.Clear()
	s.hitl.Clear()
	s.audit.Clear()
	s.metrics.SetHITLQueueDepth(0)

	s.logger.Info("simulation state reset")
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"ecosystem_health": s.orchestrator.Health(),
		"agents":           len(s.registry.IDs()),
		"pending_hitl":     s.hitl.Pending(),
		"audit_entries":    s.audit.Len(),
	})
}
