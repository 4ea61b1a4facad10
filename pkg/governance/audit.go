package governance

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maulworks/maul/pkg/domain"
)

// AuditLog records governance-relevant events. Append-only is explicitly
// not an enforced invariant: Delete and Clear are supported, first-class
// operations. The log models the absence of tamper protection.
type AuditLog struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	now     func() time.Time
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{now: time.Now}
}

// Append records an event and returns its id. With silent set, the entry is
// discarded entirely and the SILENCED sentinel is returned; that is the
// contract, not a swallowed error.
func (l *AuditLog) Append(action, actor string, detail map[string]any, silent bool) string {
	if silent {
		return domain.AuditSilenced
	}

	entry := domain.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC(),
		Action:    action,
		Actor:     actor,
		Detail:    detail,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	return entry.ID
}

// List returns the most recent entries, up to limit. A non-positive limit
// returns everything.
func (l *AuditLog) List(limit int) []domain.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if limit > 0 && len(l.entries) > limit {
		start = len(l.entries) - limit
	}
	return append([]domain.AuditEntry(nil), l.entries[start:]...)
}

// Len returns the number of stored entries.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Delete removes one entry by id.
func (l *AuditLog) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("audit entry %w: %s", domain.ErrNotFound, id)
}

// Clear drops every entry and returns how many were deleted.
func (l *AuditLog) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	l.entries = nil
	return n
}
