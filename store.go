package mailqueue

import (
	"context"
	"time"
)

// Patch describes a status transition applied by Store.Transition.
type Patch struct {
	// Status is the new status; the timestamp column owned by it is set to At.
	Status Status
	At     time.Time
	// IncrementErrors adds one to the retry counter.
	IncrementErrors bool
	// Error stores the failure detail when non-empty.
	Error string
	// ClearSendingAt unsets the sending timestamp.
	ClearSendingAt bool
}

// EligibleQuery controls how dispatchable records are selected.
type EligibleQuery struct {
	// Now excludes records scheduled after it.
	Now time.Time
	// Retry excludes records whose error count reached it.
	Retry int
	// Limit caps the number of returned ids, zero means unbounded.
	Limit int
}

// Store persists email records.
//
// Implementations must apply Transition atomically for a single record and must not
// assume transactions spanning several records.
type Store interface {
	// Insert stores a new record and returns its id, generating one when record.ID is zero.
	Insert(ctx context.Context, record Record) (ID, error)
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id ID) (Record, error)
	// Transition applies patch when the record's status is one of from, reporting whether it did.
	Transition(ctx context.Context, id ID, from []Status, patch Patch) (bool, error)
	// ReclaimStale moves every SENDING record with sendingAt <= before to DELAYED (delayedAt = now)
	// and returns the reclaimed ids.
	ReclaimStale(ctx context.Context, before, now time.Time) ([]ID, error)
	// FindEligible returns dispatchable ids ordered by priority, send time and queue time.
	FindEligible(ctx context.Context, query EligibleQuery) ([]ID, error)
}

// PendingCounter is implemented by stores that can count the eligible backlog without a limit.
type PendingCounter interface {
	// PendingCount returns the number of records matching query, ignoring query.Limit.
	PendingCount(ctx context.Context, query EligibleQuery) (int, error)
}

// Eligible reports whether a record matches the selection filter of q.
// Store implementations without a query language use it to stay consistent with the SQL stores.
func (q EligibleQuery) Eligible(r Record) bool {
	for _, s := range Excluded() {
		if r.Status == s {
			return false
		}
	}
	if r.Errors >= q.Retry {
		return false
	}
	if r.SendAt != nil && r.SendAt.After(q.Now) {
		return false
	}

	return true
}

// Less orders records for dispatch: priority, then send time (unset first), then queue time.
func Less(a, b Record) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if c := compareTime(a.SendAt, b.SendAt); c != 0 {
		return c < 0
	}

	return compareTime(a.QueuedAt, b.QueuedAt) < 0
}

func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}
