package mailqueue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeStore struct {
	mu      sync.Mutex
	records map[ID]Record
	seq     byte

	insertErr     error
	findErr       error
	transitionErr error
	findCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[ID]Record)}
}

func (s *fakeStore) Insert(_ context.Context, record Record) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return ID{}, s.insertErr
	}
	if record.ID.IsZero() {
		s.seq++
		record.ID = ID{s.seq}
	}
	s.records[record.ID] = record.Clone()

	return record.ID, nil
}

func (s *fakeStore) Get(_ context.Context, id ID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}

	return rec.Clone(), nil
}

func (s *fakeStore) Transition(_ context.Context, id ID, from []Status, patch Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil {
		return false, s.transitionErr
	}
	rec, ok := s.records[id]
	if !ok || !rec.Status.in(from) {
		return false, nil
	}
	rec.Apply(patch)
	s.records[id] = rec

	return true, nil
}

func (s *fakeStore) ReclaimStale(_ context.Context, before, now time.Time) ([]ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []ID
	for id, rec := range s.records {
		if rec.Status != StatusSending || rec.SendingAt == nil || rec.SendingAt.After(before) {
			continue
		}
		rec.Apply(Patch{Status: StatusDelayed, At: now})
		s.records[id] = rec
		ids = append(ids, id)
	}

	return ids, nil
}

func (s *fakeStore) FindEligible(_ context.Context, q EligibleQuery) ([]ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	var recs []Record
	for _, rec := range s.records {
		if q.Eligible(rec) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return Less(recs[i], recs[j]) })
	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}
	ids := make([]ID, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}

	return ids, nil
}

func (s *fakeStore) PendingCount(_ context.Context, q EligibleQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if q.Eligible(rec) {
			n++
		}
	}

	return n, nil
}

func (s *fakeStore) set(id ID, fn func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[id]
	fn(&rec)
	s.records[id] = rec
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []*Message
	err  error
	fn   func(ctx context.Context, msg *Message) error
}

func (t *recordingTransport) Send(ctx context.Context, msg *Message) error {
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	fn, err := t.fn, t.err
	t.mu.Unlock()
	if fn != nil {
		return fn(ctx, msg)
	}

	return err
}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.sent)
}

type captureMetrics struct {
	mu         sync.Mutex
	queued     int
	sent       int
	failed     int
	delayed    int
	read       int
	batch      int
	pending    int
	dispatches int
}

func (m *captureMetrics) ObserveDispatch(time.Duration) {
	m.mu.Lock()
	m.dispatches++
	m.mu.Unlock()
}

func (m *captureMetrics) AddQueued(n int) {
	m.mu.Lock()
	m.queued += n
	m.mu.Unlock()
}

func (m *captureMetrics) AddSent(n int) {
	m.mu.Lock()
	m.sent += n
	m.mu.Unlock()
}

func (m *captureMetrics) AddFailed(n int) {
	m.mu.Lock()
	m.failed += n
	m.mu.Unlock()
}

func (m *captureMetrics) AddDelayed(n int) {
	m.mu.Lock()
	m.delayed += n
	m.mu.Unlock()
}

func (m *captureMetrics) AddRead(n int) {
	m.mu.Lock()
	m.read += n
	m.mu.Unlock()
}

func (m *captureMetrics) SetBatch(n int) {
	m.mu.Lock()
	m.batch = n
	m.mu.Unlock()
}

func (m *captureMetrics) SetPending(n int) {
	m.mu.Lock()
	m.pending = n
	m.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) subscribeAll(h *Hub) {
	for _, kind := range Kinds() {
		h.Subscribe(kind, func(_ context.Context, ev Event) error {
			l.mu.Lock()
			l.events = append(l.events, ev)
			l.mu.Unlock()

			return nil
		})
	}
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}

	return out
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}

	return n
}

var errBoom = errors.New("boom")

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

const testBaseURL = "https://mail.example.com"

func validEmail() Email {
	return Email{
		From:    "sender@example.com",
		To:      Addresses{"rcpt@example.com"},
		Subject: "hello",
		HTML:    `<p>Visit <a href="https://example.com/page">us</a></p>`,
	}
}

func newTestMailer(store Store, transport Transport, opts ...Option) *Mailer {
	opts = append([]Option{WithClock(fixedClock{now: testNow}), WithBaseURL(testBaseURL)}, opts...)
	m, err := New(store, transport, opts...)
	if err != nil {
		panic(err)
	}

	return m
}
