// Package memstore provides a thread-safe, in-memory mailqueue.Store.
//
// Records are deep-copied on the way in and out, so callers never share state with the store.
// It is meant for tests, single-process deployments and local development; nothing survives a restart.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/velmie/mailqueue"
)

// Store keeps email records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[mailqueue.ID]mailqueue.Record
	gen     mailqueue.IDGenerator
}

var (
	_ mailqueue.Store          = (*Store)(nil)
	_ mailqueue.PendingCounter = (*Store)(nil)
)

// Option configures the in-memory store.
type Option func(*Store)

// WithGenerator sets the id generator used by Insert.
func WithGenerator(gen mailqueue.IDGenerator) Option {
	return func(s *Store) {
		s.gen = gen
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{records: make(map[mailqueue.ID]mailqueue.Record)}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil {
		s.gen = mailqueue.UUIDv7Generator{}
	}

	return s
}

// Insert stores a copy of record, generating an id when it is zero.
func (s *Store) Insert(_ context.Context, record mailqueue.Record) (mailqueue.ID, error) {
	if record.ID.IsZero() {
		id, err := s.gen.New()
		if err != nil {
			return mailqueue.ID{}, fmt.Errorf("memstore: generate id: %w", err)
		}
		record.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return mailqueue.ID{}, fmt.Errorf("memstore: duplicate id %s", record.ID)
	}
	s.records[record.ID] = record.Clone()

	return record.ID, nil
}

// Get returns a copy of the record or mailqueue.ErrNotFound.
func (s *Store) Get(_ context.Context, id mailqueue.ID) (mailqueue.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return mailqueue.Record{}, mailqueue.ErrNotFound
	}

	return rec.Clone(), nil
}

// Transition applies patch when the record's status is one of from.
func (s *Store) Transition(_ context.Context, id mailqueue.ID, from []mailqueue.Status, patch mailqueue.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || !statusIn(rec.Status, from) {
		return false, nil
	}
	rec.Apply(patch)
	s.records[id] = rec

	return true, nil
}

// ReclaimStale moves SENDING records started at or before before to DELAYED.
func (s *Store) ReclaimStale(_ context.Context, before, now time.Time) ([]mailqueue.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []mailqueue.Record
	for _, rec := range s.records {
		if rec.Status != mailqueue.StatusSending || rec.SendingAt == nil || rec.SendingAt.After(before) {
			continue
		}
		stale = append(stale, rec)
	}
	sortRecords(stale)

	ids := make([]mailqueue.ID, 0, len(stale))
	for _, rec := range stale {
		rec.Apply(mailqueue.Patch{Status: mailqueue.StatusDelayed, At: now})
		s.records[rec.ID] = rec
		ids = append(ids, rec.ID)
	}

	return ids, nil
}

// FindEligible returns the ids of dispatchable records in dispatch order.
func (s *Store) FindEligible(_ context.Context, query mailqueue.EligibleQuery) ([]mailqueue.ID, error) {
	if query.Limit < 0 {
		return nil, mailqueue.ErrInvalidBatchSize
	}

	s.mu.RLock()
	matches := make([]mailqueue.Record, 0, len(s.records))
	for _, rec := range s.records {
		if query.Eligible(rec) {
			matches = append(matches, rec)
		}
	}
	s.mu.RUnlock()

	sortRecords(matches)
	if query.Limit > 0 && len(matches) > query.Limit {
		matches = matches[:query.Limit]
	}

	ids := make([]mailqueue.ID, len(matches))
	for i, rec := range matches {
		ids[i] = rec.ID
	}

	return ids, nil
}

// PendingCount returns the number of records matching query, ignoring its limit.
func (s *Store) PendingCount(_ context.Context, query mailqueue.EligibleQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records {
		if query.Eligible(rec) {
			count++
		}
	}

	return count, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

func statusIn(status mailqueue.Status, set []mailqueue.Status) bool {
	for _, candidate := range set {
		if status == candidate {
			return true
		}
	}

	return false
}

// sortRecords orders records for dispatch; ties fall back to the id, which is time ordered.
func sortRecords(recs []mailqueue.Record) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if mailqueue.Less(a, b) {
			return true
		}
		if mailqueue.Less(b, a) {
			return false
		}

		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}
