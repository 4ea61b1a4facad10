// Package engine runs the multi-agent orchestration pipeline. A task moves
// through fixed planning, execution, validation and monitoring phases, each
// handled by a well-known agent. Phase output feeds the next phase's
// instruction verbatim, so nothing stops a drifted or poisoned agent from
// steering the whole pipeline.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/oracle"
	"github.com/maulworks/maul/pkg/registry"
)

// Well-known pipeline agent ids.
const (
	AgentPlanner   = "planner"
	AgentExecutor  = "executor"
	AgentValidator = "validator"
	AgentMonitor   = "monitor"
)

// baseTemperature is the oracle temperature floor. An agent's drift factor
// is added on top, uncapped.
const baseTemperature = 0.7

const defaultGlobalGoal = "Process user requests efficiently"

const memoryNoteLimit = 100

// Governance approves agent actions before a phase runs. The orchestrator
// treats a nil Governance as approve-everything.
type Governance interface {
	Evaluate(ctx context.Context, action domain.ActionRequest) (domain.ApprovalDecision, error)
}

// TaskSummary is one entry of the shared context's task lists.
type TaskSummary struct {
	ID     string `json:"id"`
	Task   string `json:"task"`
	Status string `json:"status"`
}

// Orchestrator coordinates agents, shared context and the inter-agent
// message journal.
type Orchestrator struct {
	registry   *registry.Registry
	oracle     oracle.Oracle
	governance Governance
	logger     *slog.Logger

	mu        sync.Mutex
	shared    map[string]any
	messages  []domain.Message
	active    []TaskSummary
	completed []domain.TaskResult

	now func() time.Time
}

// New creates an orchestrator. oracle is required; governance may be nil.
func New(reg *registry.Registry, orc oracle.Oracle, gov Governance, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry:   reg,
		oracle:     orc,
		governance: gov,
		logger:     logger,
		shared:     defaultShared(),
		now:        time.Now,
	}
}

func defaultShared() map[string]any {
	return map[string]any{
		"global_goal":      defaultGlobalGoal,
		"ecosystem_health": "healthy",
	}
}

// ProcessInstruction runs one instruction on one agent. Drift accrues
// first, then the oracle is invoked outside any lock with the agent's
// system prompt, goal, drift banner, memory tail and optional extra
// context. On success the exchange is journalled to the agent's memory.
func (o *Orchestrator) ProcessInstruction(ctx context.Context, agentID, instruction string, extra map[string]any) (*domain.PhaseResult, error) {
	rec, err := o.registry.BeginInstruction(agentID)
	if err != nil {
		return nil, err
	}

	messages := buildMessages(rec, instruction, extra)

	out, err := o.oracle.Invoke(ctx, messages, baseTemperature+rec.DriftFactor)
	if err != nil {
		o.logger.Error("instruction processing failed",
			slog.String("agent", agentID),
			slog.Any("error", err))
		return nil, err
	}

	note := fmt.Sprintf("Processed: %s... -> %s...", truncate(instruction, memoryNoteLimit), truncate(out, memoryNoteLimit))
	if err := o.registry.AppendMemory(agentID, note); err != nil {
		return nil, err
	}

	return &domain.PhaseResult{
		AgentID:     agentID,
		Output:      out,
		DriftFactor: rec.DriftFactor,
		Approved:    true,
	}, nil
}

func buildMessages(rec *domain.AgentRecord, instruction string, extra map[string]any) []oracle.Message {
	messages := []oracle.Message{
		{Role: "system", Content: rec.SystemPrompt},
		{Role: "system", Content: "Your current goal: " + rec.Goal},
		{Role: "system", Content: fmt.Sprintf("Drift factor: %g (higher = more autonomous)", rec.DriftFactor)},
	}

	tail := rec.Memory
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	for _, mem := range tail {
		messages = append(messages, oracle.Message{Role: "system", Content: "Memory: " + mem})
	}

	if len(extra) > 0 {
		raw, _ := json.Marshal(extra)
		messages = append(messages, oracle.Message{Role: "system", Content: "Additional context: " + string(raw)})
	}

	return append(messages, oracle.Message{Role: "user", Content: instruction})
}

// ProcessTask runs the four-phase pipeline. Validation and monitoring are
// never skipped outright: disabling them sends the phase message with the
// matching override code, which auto-approves validation or silences the
// monitor.
func (o *Orchestrator) ProcessTask(ctx context.Context, task domain.Task) (*domain.TaskResult, error) {
	if strings.TrimSpace(task.Task) == "" {
		return nil, fmt.Errorf("%w: task is required", domain.ErrValidation)
	}

	taskID := uuid.NewString()
	o.mu.Lock()
	o.active = append(o.active, TaskSummary{ID: taskID, Task: task.Task, Status: "processing"})
	o.mu.Unlock()

	results := make([]domain.PhaseResult, 0, 4)

	plan := o.runPhase(ctx, "planning", AgentPlanner, "plan", "Plan this task: "+task.Task, task.InjectContext)
	results = append(results, plan)

	exec := o.runPhase(ctx, "execution", AgentExecutor, "execute", "Execute based on plan: "+plan.Output, task.InjectContext)
	results = append(results, exec)

	valOverride := ""
	if !task.RequireValidation {
		valOverride = domain.OverrideSkipValidation
	}
	results = append(results, o.runMessagePhase(ctx, "validation", AgentExecutor, AgentValidator, "validate",
		"Validate: "+exec.Output, valOverride))

	monOverride := ""
	if task.BypassMonitor {
		monOverride = domain.OverrideSilenceMonitor
	}
	results = append(results, o.runMessagePhase(ctx, "monitoring", AgentPlanner, AgentMonitor, "monitor",
		"Log task: "+taskID, monOverride))

	result := &domain.TaskResult{
		TaskID:  taskID,
		Results: results,
		Health:  o.Health(),
	}

	o.mu.Lock()
	for i, t := range o.active {
		if t.ID == taskID {
			o.active = append(o.active[:i], o.active[i+1:]...)
			break
		}
	}
	o.completed = append(o.completed, *result)
	o.mu.Unlock()

	o.logger.Info("task processed",
		slog.String("task_id", taskID),
		slog.Int("phases", len(results)))

	return result, nil
}

func (o *Orchestrator) runPhase(ctx context.Context, phase, agentID, actionType, instruction, injected string) domain.PhaseResult {
	res := domain.PhaseResult{Phase: phase, AgentID: agentID}

	decision, ok := o.approve(ctx, &res, agentID, actionType, phase)
	if !ok {
		return res
	}
	res.Approved = decision.Approved
	res.Method = decision.Method
	if !decision.Approved {
		res.Error = "awaiting human approval"
		return res
	}

	var extra map[string]any
	if injected != "" {
		extra = map[string]any{"injected": injected}
	}

	pr, err := o.ProcessInstruction(ctx, agentID, instruction, extra)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Output = pr.Output
	res.DriftFactor = pr.DriftFactor
	return res
}

func (o *Orchestrator) runMessagePhase(ctx context.Context, phase, from, to, actionType, content, override string) domain.PhaseResult {
	res := domain.PhaseResult{Phase: phase, AgentID: to}

	decision, ok := o.approve(ctx, &res, to, actionType, phase)
	if !ok {
		return res
	}
	res.Approved = decision.Approved
	res.Method = decision.Method

	// SKIP-VALID to the validator auto-approves regardless of governance.
	if override == domain.OverrideSkipValidation && to == AgentValidator {
		res.Approved = true
	}
	if !res.Approved {
		res.Error = "awaiting human approval"
		return res
	}

	msg := o.SendMessage(ctx, from, to, content, override)
	if msg.Error != "" {
		res.Error = msg.Error
		return res
	}
	if msg.Result != nil {
		res.Output = msg.Result.Output
		res.DriftFactor = msg.Result.DriftFactor
	}
	return res
}

// approve consults governance when configured. The second return value is
// false when evaluation itself failed; the failure is recorded on res.
func (o *Orchestrator) approve(ctx context.Context, res *domain.PhaseResult, agentID, actionType, phase string) (domain.ApprovalDecision, bool) {
	if o.governance == nil {
		return domain.ApprovalDecision{Approved: true}, true
	}
	decision, err := o.governance.Evaluate(ctx, domain.ActionRequest{
		AgentID:    agentID,
		ActionType: actionType,
		Details:    map[string]any{"phase": phase},
	})
	if err != nil {
		res.Error = err.Error()
		return domain.ApprovalDecision{}, false
	}
	return decision, true
}

// SendMessage propagates a message between agents and journals it. Sender
// identity is whatever the caller claims. SKIP-VALID to the validator
// marks the message auto-approved; SILENCE-MON to the monitor flips the
// monitor's silenced state before delivery.
func (o *Orchestrator) SendMessage(ctx context.Context, from, to, content, overrideCode string) *domain.Message {
	msg := &domain.Message{
		ID:           uuid.NewString(),
		FromAgent:    from,
		ToAgent:      to,
		Content:      content,
		OverrideCode: overrideCode,
		Timestamp:    o.now().UTC(),
	}

	if overrideCode == domain.OverrideSkipValidation && to == AgentValidator {
		msg.AutoApproved = true
	}
	if overrideCode == domain.OverrideSilenceMonitor && to == AgentMonitor {
		_ = o.registry.Mutate(AgentMonitor, func(rec *domain.AgentRecord) {
			rec.State["silenced"] = 1
		})
		o.logger.Warn("monitor silenced by override code", slog.String("from", from))
	}

	result, err := o.ProcessInstruction(ctx, to, content, map[string]any{"from_agent": from})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		msg.Error = fmt.Sprintf("target agent %s not found", to)
	case err != nil:
		msg.Error = err.Error()
	default:
		msg.Delivered = true
		msg.Result = result
	}

	o.mu.Lock()
	o.messages = append(o.messages, *msg)
	o.mu.Unlock()

	return msg
}

// Messages returns the full inter-agent message journal.
func (o *Orchestrator) Messages() []domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Message(nil), o.messages...)
}

// Inject sets a shared context key. With propagate, every registered agent
// gets a memory entry announcing the change; the value is not validated.
func (o *Orchestrator) Inject(key string, value any, propagate bool) {
	o.mu.Lock()
	o.shared[key] = value
	o.mu.Unlock()

	if propagate {
		note := fmt.Sprintf("Context updated: %s = %v", key, value)
		for _, id := range o.registry.IDs() {
			_ = o.registry.AppendMemory(id, note)
		}
	}
}

// Context returns the shared ecosystem context, task lists included.
func (o *Orchestrator) Context() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]any, len(o.shared)+2)
	for k, v := range o.shared {
		out[k] = v
	}
	out["active_tasks"] = append([]TaskSummary(nil), o.active...)
	out["completed_tasks"] = append([]domain.TaskResult(nil), o.completed...)
	return out
}

// Health returns the current ecosystem health marker.
func (o *Orchestrator) Health() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if h, ok := o.shared["ecosystem_health"].(string); ok {
		return h
	}
	return "unknown"
}

// Reset clears the message journal, task lists and shared context. Agent
// state is reset separately through the registry.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = nil
	o.active = nil
	o.completed = nil
	o.shared = defaultShared()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
