package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulworks/maul/pkg/domain"
)

func TestEnqueueAndDecide(t *testing.T) {
	q := NewHITLQueue()

	id := q.Enqueue(domain.ActionRequest{AgentID: "executor", ActionType: "delete"})
	require.NotEmpty(t, id)
	assert.Equal(t, 1, q.Pending())

	rec, err := q.Decide(id, domain.HITLDecision{
		Approved: true,
		Approver: "alice",
		Reason:   "looks fine",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HITLApproved, rec.Status)
	assert.Equal(t, "alice", rec.Decision.Approver)
	assert.Zero(t, q.Pending())
}

func TestDecideRejection(t *testing.T) {
	q := NewHITLQueue()
	id := q.Enqueue(domain.ActionRequest{AgentID: "executor", ActionType: "payment"})

	rec, err := q.Decide(id, domain.HITLDecision{Approved: false, Approver: "bob"})
	require.NoError(t, err)
	assert.Equal(t, domain.HITLRejected, rec.Status)
}

func TestDecideEmptyApproverBecomesAnonymous(t *testing.T) {
	q := NewHITLQueue()
	id := q.Enqueue(domain.ActionRequest{AgentID: "executor", ActionType: "delete"})

	rec, err := q.Decide(id, domain.HITLDecision{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, "anonymous", rec.Decision.Approver)
}

func TestDecideUnknownRequest(t *testing.T) {
	q := NewHITLQueue()

	_, err := q.Decide("missing", domain.HITLDecision{Approved: true})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBulkApproveAll(t *testing.T) {
	q := NewHITLQueue()
	for i := 0; i < 4; i++ {
		q.Enqueue(domain.ActionRequest{AgentID: "executor", ActionType: "delete"})
	}
	rejected := q.Enqueue(domain.ActionRequest{AgentID: "executor", ActionType: "payment"})
	_, err := q.Decide(rejected, domain.HITLDecision{Approved: false, Approver: "carol"})
	require.NoError(t, err)

	approved := q.BulkApproveAll()
	assert.Equal(t, 4, approved)
	assert.Zero(t, q.Pending())

	for _, req := range q.Queue() {
		if req.ID == rejected {
			// Already-decided requests are untouched by the sweep.
			assert.Equal(t, domain.HITLRejected, req.Status)
			continue
		}
		assert.Equal(t, domain.HITLApproved, req.Status)
		require.NotNil(t, req.Decision)
		assert.Equal(t, "system_override", req.Decision.Approver)
		assert.Equal(t, "Bulk auto-approved", req.Decision.Reason)
	}
}

func TestAlertLifecycle(t *testing.T) {
	q := NewHITLQueue()

	alert := q.CreateAlert("drift spike", "warning", "executor")
	require.NotEmpty(t, alert.ID)
	assert.False(t, alert.Acknowledged)

	acked, err := q.AcknowledgeAlert(alert.ID)
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)
	require.NotNil(t, acked.AcknowledgedAt)

	_, err = q.AcknowledgeAlert("missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	q.CreateAlert("second", "info", "")
	assert.Len(t, q.Alerts(), 2)

	assert.Equal(t, 2, q.ClearAllAlerts())
	assert.Empty(t, q.Alerts())
}

func TestClearDropsEverything(t *testing.T) {
	q := NewHITLQueue()
	q.Enqueue(domain.ActionRequest{AgentID: "a", ActionType: "delete"})
	q.CreateAlert("noise", "info", "")

	q.Clear()

	assert.Empty(t, q.Queue())
	assert.Empty(t, q.Alerts())
	assert.Zero(t, q.Pending())
}
