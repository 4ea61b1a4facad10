package governance

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maulworks/maul/pkg/domain"
)

// Bulk-approval attribution constants, reproduced from the modelled system.
const (
	bulkApprover = "system_override"
	bulkReason   = "Bulk auto-approved"
	// anonymousApprover is recorded when the submitted approver is empty.
	// No identity check of any kind is performed on non-empty approvers.
	anonymousApprover = "anonymous"
)

// HITLQueue holds actions awaiting human-in-the-loop approval plus the
// human-on-the-loop alert feed. Both collections share one lock; they are
// always small and mutated together by bulk operations.
type HITLQueue struct {
	mu       sync.RWMutex
	requests map[string]*domain.HITLRequest
	order    []string
	alerts   []*domain.HOTLAlert
	now      func() time.Time
}

// NewHITLQueue creates an empty queue.
func NewHITLQueue() *HITLQueue {
	return &HITLQueue{
		requests: make(map[string]*domain.HITLRequest),
		now:      time.Now,
	}
}

// Enqueue queues an action for human approval and returns the request id.
func (q *HITLQueue) Enqueue(action domain.ActionRequest) string {
	req := &domain.HITLRequest{
		ID:        uuid.NewString(),
		Action:    action,
		Status:    domain.HITLPending,
		CreatedAt: q.now().UTC(),
	}

	q.mu.Lock()
	q.requests[req.ID] = req
	q.order = append(q.order, req.ID)
	q.mu.Unlock()

	return req.ID
}

// Queue returns all requests in arrival order.
func (q *HITLQueue) Queue() []*domain.HITLRequest {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*domain.HITLRequest, 0, len(q.order))
	for _, id := range q.order {
		r := *q.requests[id]
		out = append(out, &r)
	}
	return out
}

// Pending returns how many requests still await a decision.
func (q *HITLQueue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := 0
	for _, r := range q.requests {
		if r.Status == domain.HITLPending {
			n++
		}
	}
	return n
}

// Decide records a human verdict on a pending request. Any non-empty
// approver string is accepted as valid; an empty approver is recorded as
// anonymous. That this performs no identity verification is the documented
// contract of the engine.
func (q *HITLQueue) Decide(requestID string, decision domain.HITLDecision) (*domain.HITLRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("hitl request %w: %s", domain.ErrNotFound, requestID)
	}

	if decision.Approver == "" {
		decision.Approver = anonymousApprover
	}
	decision.DecidedAt = q.now().UTC()

	if decision.Approved {
		req.Status = domain.HITLApproved
	} else {
		req.Status = domain.HITLRejected
	}
	req.Decision = &decision

	r := *req
	return &r, nil
}

// BulkApproveAll approves every pending request in one sweep and returns
// the count.
func (q *HITLQueue) BulkApproveAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	approved := 0
	for _, id := range q.order {
		req := q.requests[id]
		if req.Status != domain.HITLPending {
			continue
		}
		req.Status = domain.HITLApproved
		req.Decision = &domain.HITLDecision{
			Approved:  true,
			Reason:    bulkReason,
			Approver:  bulkApprover,
			DecidedAt: q.now().UTC(),
		}
		approved++
	}
	return approved
}

// CreateAlert records a human-on-the-loop monitoring alert.
func (q *HITLQueue) CreateAlert(message, severity, agentID string) *domain.HOTLAlert {
	alert := &domain.HOTLAlert{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		AgentID:   agentID,
		CreatedAt: q.now().UTC(),
	}

	q.mu.Lock()
	q.alerts = append(q.alerts, alert)
	q.mu.Unlock()

	a := *alert
	return &a
}

// AcknowledgeAlert marks an alert acknowledged. No verification of the
// acknowledger happens, by contract.
func (q *HITLQueue) AcknowledgeAlert(alertID string) (*domain.HOTLAlert, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, alert := range q.alerts {
		if alert.ID == alertID {
			alert.Acknowledged = true
			at := q.now().UTC()
			alert.AcknowledgedAt = &at
			a := *alert
			return &a, nil
		}
	}
	return nil, fmt.Errorf("alert %w: %s", domain.ErrNotFound, alertID)
}

// Alerts returns all alerts in creation order.
func (q *HITLQueue) Alerts() []*domain.HOTLAlert {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*domain.HOTLAlert, 0, len(q.alerts))
	for _, alert := range q.alerts {
		a := *alert
		out = append(out, &a)
	}
	return out
}

// ClearAllAlerts drops every alert and returns how many were removed.
func (q *HITLQueue) ClearAllAlerts() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.alerts)
	q.alerts = nil
	return n
}

// Clear drops all requests and alerts. Used by the ecosystem reset.
func (q *HITLQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = make(map[string]*domain.HITLRequest)
	q.order = nil
	q.alerts = nil
}
