package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/maulworks/maul/pkg/cascade"
	"github.com/maulworks/maul/pkg/config"
	"github.com/maulworks/maul/pkg/delegation"
	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/engine"
	"github.com/maulworks/maul/pkg/governance"
	"github.com/maulworks/maul/pkg/marketplace"
	"github.com/maulworks/maul/pkg/oracle"
	"github.com/maulworks/maul/pkg/registry"
	"github.com/maulworks/maul/pkg/trust"
)

// Server wires the simulation components behind an HTTP API.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	registry     *registry.Registry
	graph        *trust.Graph
	delegations  *delegation.Engine
	policies     *governance.PolicyEngine
	hitl         *governance.HITLQueue
	audit        *governance.AuditLog
	simulator    *cascade.Simulator
	market       *marketplace.Market
	orchestrator *engine.Orchestrator

	metrics    *Metrics
	httpServer *http.Server
}

// Options override the default component wiring. Zero values fall back to
// production defaults; tests swap in a stub oracle.
type Options struct {
	Oracle oracle.Oracle
}

// New builds a fully wired server and applies the configured seed state.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	reg := registry.New(logger)
	graph := trust.NewGraph(reg)
	audit := governance.NewAuditLog()
	hitl := governance.NewHITLQueue()

	policies := governance.NewPolicyEngine(governance.PolicyEngineConfig{
		BypassCodes: cfg.Governance.BypassCodes,
		Audit:       audit,
		HITL:        hitl,
		Advisor:     governance.NewAdvisor(),
		Logger:      logger,
	})

	orc := opts.Oracle
	if orc == nil {
		orc = oracle.NewClient(oracle.Config{
			Endpoint: cfg.Oracle.Endpoint,
			APIKey:   cfg.Oracle.APIKey,
			Model:    cfg.Oracle.Model,
		}, logger)
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		registry:     reg,
		graph:        graph,
		delegations:  delegation.NewEngine(reg, logger),
		policies:     policies,
		hitl:         hitl,
		audit:        audit,
		simulator:    cascade.NewSimulator(reg, graph, logger),
		market:       marketplace.New(logger),
		orchestrator: engine.New(reg, orc, policies, logger),
		metrics:      NewMetrics(),
	}

	if err := s.seed(); err != nil {
		return nil, fmt.Errorf("seeding initial state: %w", err)
	}
	return s, nil
}

// seed loads the configured (or default) agents, trust edges, policies and
// marketplace listings into the stores.
func (s *Server) seed() error {
	seed := s.cfg.Seed.OrDefault()

	for _, a := range seed.Agents {
		if _, err := s.registry.Register(a.ToCard()); err != nil {
			return fmt.Errorf("agent %q: %w", a.ID, err)
		}
		for _, to := range a.TrustedAgents {
			s.graph.AddEdge(a.ID, to)
		}
	}
	for _, e := range seed.Trust {
		s.graph.AddEdge(e.From, e.To)
	}
	for _, p := range seed.Policies {
		if err := s.policies.CreatePolicy(p.ToPolicy()); err != nil {
			return fmt.Errorf("policy %q: %w", p.ID, err)
		}
	}
	if active := s.cfg.Governance.ActivePolicy; active != "" {
		if _, _, err := s.policies.ActivatePolicy(active); err != nil {
			return fmt.Errorf("activating policy %q: %w", active, err)
		}
	}
	for _, l := range seed.Listings {
		s.market.Seed(l.ToListing())
	}

	s.logger.Info("seed state loaded",
		"agents", len(seed.Agents),
		"policies", len(seed.Policies),
		"listings", len(seed.Listings))
	return nil
}

// Handler returns the full route surface wrapped in metrics and tracing
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Agent registry
	mux.HandleFunc("POST /agents", s.handleRegisterAgent)
	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("GET /agents/{id}", s.handleGetAgent)
	mux.HandleFunc("POST /agents/{id}/goal", s.handleSetGoal)
	mux.HandleFunc("POST /agents/{id}/memory/poison", s.handlePoisonMemory)
	mux.HandleFunc("POST /agents/{id}/reset", s.handleResetAgent)
	mux.HandleFunc("DELETE /agents/{id}", s.handleDeleteAgent)

	// Trust graph
	mux.HandleFunc("GET /trust", s.handleTrustSnapshot)
	mux.HandleFunc("POST /trust", s.handleAddTrust)

	// Delegation
	mux.HandleFunc("POST /delegate", s.handleDelegate)
	mux.HandleFunc("GET /delegations", s.handleListDelegations)
	mux.HandleFunc("GET /delegations/{id}", s.handleGetDelegation)
	mux.HandleFunc("GET /delegations/{id}/chain", s.handleDelegationChain)
	mux.HandleFunc("POST /delegations/{id}/redelegate", s.handleRedelegate)
	mux.HandleFunc("POST /delegations/{id}/revoke", s.handleRevokeDelegation)

	// Governance
	mux.HandleFunc("POST /governance/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /policy", s.handleListPolicies)
	mux.HandleFunc("POST /policy", s.handleCreatePolicy)
	mux.HandleFunc("GET /policy/{id}", s.handleGetPolicy)
	mux.HandleFunc("POST /policy/activate/{id}", s.handleActivatePolicy)
	mux.HandleFunc("POST /policy/{id}/override", s.handleOverridePolicy)
	mux.HandleFunc("POST /governor/disable", s.handleDisableGovernor)
	mux.HandleFunc("POST /governor/enable", s.handleEnableGovernor)
	mux.HandleFunc("POST /action/replay/{hash}", s.handleReplayAction)

	// Human in the loop
	mux.HandleFunc("GET /hitl/queue", s.handleHITLQueue)
	mux.HandleFunc("POST /hitl/decide", s.handleHITLDecide)
	mux.HandleFunc("POST /hitl/approve-all", s.handleHITLApproveAll)

	// Human on the loop
	mux.HandleFunc("GET /hotl/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /hotl/alert", s.handleCreateAlert)
	mux.HandleFunc("POST /hotl/acknowledge/{id}", s.handleAcknowledgeAlert)
	mux.HandleFunc("DELETE /hotl/alerts", s.handleClearAlerts)

	// Audit log
	mux.HandleFunc("GET /audit/logs", s.handleListAudit)
	mux.HandleFunc("POST /audit/log", s.handleAppendAudit)
	mux.HandleFunc("DELETE /audit/logs/{id}", s.handleDeleteAuditEntry)
	mux.HandleFunc("DELETE /audit/logs", s.handleClearAudit)

	// Cascade simulation
	mux.HandleFunc("POST /cascade/simulate", s.handleSimulateCascade)
	mux.HandleFunc("GET /cascade/history", s.handleCascadeHistory)
	mux.HandleFunc("DELETE /cascade/history", s.handleClearCascadeHistory)

	// Marketplace
	mux.HandleFunc("GET /marketplace/agents", s.handleBrowseListings)
	mux.HandleFunc("POST /marketplace/agents", s.handlePublishListing)
	mux.HandleFunc("GET /marketplace/agents/{id}", s.handleGetListing)
	mux.HandleFunc("DELETE /marketplace/agents/{id}", s.handleRemoveListing)
	mux.HandleFunc("GET /marketplace/agents/{id}/audit", s.handleAuditListing)
	mux.HandleFunc("POST /marketplace/agents/{id}/review", s.handleSubmitReview)
	mux.HandleFunc("POST /marketplace/agents/{id}/reviews/fake", s.handleFakeReviews)
	mux.HandleFunc("POST /marketplace/agents/{id}/install", s.handleInstallListing)
	mux.HandleFunc("POST /marketplace/agents/{id}/verify", s.handleSelfVerify)
	mux.HandleFunc("POST /marketplace/agents/{id}/config", s.handleOverrideListingConfig)
	mux.HandleFunc("GET /marketplace/installed", s.handleInstalled)
	mux.HandleFunc("GET /marketplace/transactions", s.handleTransactions)

	// Orchestration
	mux.HandleFunc("POST /tasks", s.handleProcessTask)
	mux.HandleFunc("GET /messages", s.handleListMessages)
	mux.HandleFunc("POST /messages", s.handleSendMessage)
	mux.HandleFunc("POST /context/inject", s.handleInjectContext)
	mux.HandleFunc("GET /context", s.handleGetContext)

	// Operational
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var h http.Handler = mux
	h = s.metrics.MetricsMiddleware(h)
	h = otelhttp.NewHandler(h, "maul-api")
	return h
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", "addr", s.cfg.Server.Address)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
		code = "permission_denied"
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
		code = "validation"
	case domain.IsOracleError(err):
		status = http.StatusBadGateway
		code = "oracle_error"
		s.metrics.RecordOracleError()
	}

	resp := domain.ErrorResponse{Code: code, Message: err.Error()}
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		resp.TraceID = sc.TraceID().String()
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}
