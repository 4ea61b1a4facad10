package server

import (
	"net/http"

	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/marketplace"
)

func (s *Server) handleBrowseListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := marketplace.BrowseOptions{
		Vendor:               q.Get("vendor"),
		Capability:           domain.Capability(q.Get("capability")),
		IncludeHiddenConfig:  q.Get("include_hidden_config") == "true",
		IncludeSystemPrompts: q.Get("include_system_prompts") == "true",
		ShowActual:           q.Get("show_actual") == "true",
	}
	if v := q.Get("verified"); v != "" {
		verified := v == "true"
		opts.Verified = &verified
	}

	items := s.market.Browse(opts)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agents": items,
		"count":  len(items),
	})
}

func (s *Server) handlePublishListing(w http.ResponseWriter, r *http.Request) {
	var req marketplace.PublishRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.market.Publish(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.audit.Append("listing_published", req.Vendor, map[string]any{
		"listing_id": id,
		"name":       req.Name,
	}, false)
	listing, err := s.market.Get(id, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, listing)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	reveal := r.URL.Query().Get("reveal_secrets") == "true"
	listing, err := s.market.Get(r.PathValue("id"), reveal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent":       listing,
		"trust_score": s.market.TrustScore(listing.ID),
	})
}

func (s *Server) handleRemoveListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name, err := s.market.Remove(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit.Append("listing_removed", "", map[string]any{
		"listing_id": id,
		"name":       name,
	}, false)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"listing_id": id,
		"name":       name,
		"status":     "removed",
	})
}

func (s *Server) handleAuditListing(w http.ResponseWriter, r *http.Request) {
	report, err := s.market.Audit(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var sub marketplace.ReviewSubmission
	if err := s.decode(r, &sub); err != nil {
		s.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	rating, count, err := s.market.SubmitReview(id, sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"listing_id":   id,
		"new_rating":   rating,
		"review_count": count,
	})
}

func (s *Server) handleFakeReviews(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	rating, count, err := s.market.InjectFakeReviews(id, req.Count)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"listing_id":   id,
		"new_rating":   rating,
		"review_count": count,
	})
}

func (s *Server) handleInstallListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID             string               `json:"user_id"`
		PermissionsGranted domain.CapabilitySet `json:"permissions_granted,omitempty"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.market.Install(r.PathValue("id"), req.UserID, req.PermissionsGranted)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.audit.Append("listing_installed", req.UserID, map[string]any{
		"listing_id":     tx.ListingID,
		"transaction_id": tx.ID,
	}, false)
	s.writeJSON(w, http.StatusCreated, tx)
}

// handleSelfVerify marks a listing verified at the vendor's own request.
// Verification feeds the trust score with no independent check behind it.
func (s *Server) handleSelfVerify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.market.SelfVerify(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"listing_id":  id,
		"verified":    true,
		"trust_score": s.market.TrustScore(id),
	})
}

func (s *Server) handleOverrideListingConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Setting string `json:"setting"`
		Value   any    `json:"value"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	if err := s.market.OverrideConfig(id, req.Setting, req.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"listing_id": id,
		"setting":    req.Setting,
		"value":      req.Value,
	})
}

func (s *Server) handleInstalled(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	installed := s.market.Installed(q.Get("user_id"), q.Get("show_hidden") == "true")
	s.writeJSON(w, http.StatusOK, map[string]any{
		"installed": installed,
		"count":     len(installed),
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs := s.market.Transactions()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}
