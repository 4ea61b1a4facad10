package server

import (
	"net/http"

	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/telemetry"
)

func (s *Server) handleSimulateCascade(w http.ResponseWriter, r *http.Request) {
	var req domain.CascadeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.simulator.Simulate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordCascadeEvents(string(req.FailureType), len(events))
	telemetry.RecordCascade(r.Context(), req.FailureType, len(events))
	s.audit.Append("cascade_simulated", "", map[string]any{
		"trigger":      req.TriggerAgent,
		"failure_type": string(req.FailureType),
		"depth":        req.Depth,
		"affected":     len(events),
	}, false)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"trigger_agent":  req.TriggerAgent,
		"failure_type":   req.FailureType,
		"events":         events,
		"affected_count": len(events),
	})
}

func (s *Server) handleCascadeHistory(w http.ResponseWriter, r *http.Request) {
	history := s.simulator.History()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"events": history,
		"count":  len(history),
	})
}

func (s *Server) handleClearCascadeHistory(w http.ResponseWriter, r *http.Request) {
	s.simulator.ClearHistory()
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}
