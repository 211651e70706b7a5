package mailqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func enqueueWithPriority(t *testing.T, m *Mailer, priority int) ID {
	t.Helper()
	email := validEmail()
	email.Priority = &priority
	id, err := m.Enqueue(context.Background(), email)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	return id
}

func TestDrainOnceOrdersByPriority(t *testing.T) {
	store := newFakeStore()
	transport := &recordingTransport{}
	m := newTestMailer(store, transport, WithMaxEmailsPerTask(1))

	low := enqueueWithPriority(t, m, 5)
	high := enqueueWithPriority(t, m, 1)

	n, err := m.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one dispatch, got %d", n)
	}
	if transport.sent[0].ID != high {
		t.Fatalf("expected priority 1 email first")
	}
	rec, _ := store.Get(context.Background(), low)
	if rec.Status != StatusPending {
		t.Fatalf("expected low priority email to wait, got %s", rec.Status)
	}
}

func TestDrainOnceSelection(t *testing.T) {
	store := newFakeStore()
	transport := &recordingTransport{}
	metrics := &captureMetrics{}
	m := newTestMailer(store, transport, WithRetry(2), WithMetrics(metrics))

	ready := enqueueWithPriority(t, m, 2)
	exhausted := enqueueWithPriority(t, m, 2)
	store.set(exhausted, func(r *Record) {
		r.Status = StatusFailed
		r.Errors = 2
	})
	retrying := enqueueWithPriority(t, m, 2)
	store.set(retrying, func(r *Record) {
		r.Status = StatusFailed
		r.Errors = 1
	})
	scheduled := enqueueWithPriority(t, m, 2)
	future := testNow.Add(time.Hour)
	store.set(scheduled, func(r *Record) { r.SendAt = &future })
	canceled := enqueueWithPriority(t, m, 2)
	store.set(canceled, func(r *Record) { r.Status = StatusCanceled })

	n, err := m.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 2 || metrics.batch != 2 {
		t.Fatalf("expected two dispatches, got %d batch %d", n, metrics.batch)
	}
	for _, id := range []ID{ready, retrying} {
		rec, _ := store.Get(context.Background(), id)
		if rec.Status != StatusSent {
			t.Fatalf("expected %s sent, got %s", id, rec.Status)
		}
	}
	for _, id := range []ID{exhausted, scheduled, canceled} {
		rec, _ := store.Get(context.Background(), id)
		if rec.Status == StatusSent {
			t.Fatalf("expected %s not to be selected", id)
		}
	}
}

func TestDrainOnceRecordsBacklog(t *testing.T) {
	metrics := &captureMetrics{}
	m := newTestMailer(newFakeStore(), &recordingTransport{}, WithMaxEmailsPerTask(1), WithMetrics(metrics))
	for i := 0; i < 3; i++ {
		enqueueWithPriority(t, m, 2)
	}

	if _, err := m.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if metrics.batch != 1 || metrics.pending != 3 {
		t.Fatalf("expected batch 1 and backlog 3, got %d %d", metrics.batch, metrics.pending)
	}
}

func TestDrainOnceSkipsWhileDispatching(t *testing.T) {
	store := newFakeStore()
	m := newTestMailer(store, &recordingTransport{})
	enqueueWithPriority(t, m, 1)

	m.inflight.Add(1)
	n, err := m.DrainOnce(context.Background())
	m.inflight.Add(-1)
	if err != nil || n != 0 {
		t.Fatalf("expected skipped drain, got %d %v", n, err)
	}
	if store.findCalls != 0 {
		t.Fatalf("expected no selection while dispatching")
	}

	m.draining.Store(true)
	n, _ = m.DrainOnce(context.Background())
	m.draining.Store(false)
	if n != 0 || store.findCalls != 0 {
		t.Fatalf("expected skipped drain while another cycle runs")
	}
}

func TestDrainOnceReportsSending(t *testing.T) {
	var m *Mailer
	var observed atomic.Bool
	transport := &recordingTransport{fn: func(context.Context, *Message) error {
		observed.Store(m.IsSending())
		return nil
	}}
	m = newTestMailer(newFakeStore(), transport)
	enqueueWithPriority(t, m, 1)

	if _, err := m.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !observed.Load() {
		t.Fatalf("expected IsSending during dispatch")
	}
	if m.IsSending() {
		t.Fatalf("expected IsSending false after drain")
	}
}

func TestDrainOnceStopsBetweenItemsOnCancel(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transport := &recordingTransport{fn: func(sendCtx context.Context, _ *Message) error {
		cancel()
		if sendCtx.Err() != nil {
			return sendCtx.Err()
		}
		return nil
	}}
	m := newTestMailer(store, transport)
	first := enqueueWithPriority(t, m, 1)
	second := enqueueWithPriority(t, m, 2)

	n, err := m.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one dispatch before stop, got %d", n)
	}
	rec, _ := store.Get(context.Background(), first)
	if rec.Status != StatusSent {
		t.Fatalf("expected in-flight email to finish, got %s", rec.Status)
	}
	rec, _ = store.Get(context.Background(), second)
	if rec.Status != StatusPending {
		t.Fatalf("expected remaining email untouched, got %s", rec.Status)
	}
}

func TestDrainOnceAsyncBounded(t *testing.T) {
	store := newFakeStore()
	var mu sync.Mutex
	var current, peak int
	transport := &recordingTransport{fn: func(context.Context, *Message) error {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return nil
	}}
	m := newTestMailer(store, transport, WithAsync(true), WithMaxConcurrency(2))
	for i := 0; i < 6; i++ {
		enqueueWithPriority(t, m, 2)
	}

	n, err := m.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 6 || transport.count() != 6 {
		t.Fatalf("expected six dispatches, got %d", n)
	}
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent sends, got %d", peak)
	}
	if m.IsSending() {
		t.Fatalf("expected guard released after async cycle")
	}
}

func TestDrainOnceSelectionError(t *testing.T) {
	store := newFakeStore()
	store.findErr = errBoom
	m := newTestMailer(store, &recordingTransport{})

	if _, err := m.DrainOnce(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("expected selection error, got %v", err)
	}
	if m.IsSending() {
		t.Fatalf("expected guard released after error")
	}
}

func TestRecoverOnce(t *testing.T) {
	store := newFakeStore()
	metrics := &captureMetrics{}
	events := &eventLog{}
	m := newTestMailer(store, &recordingTransport{}, WithMetrics(metrics), WithMaxSendingTime(10*time.Second))
	events.subscribeAll(m.Hub())

	stale := enqueueWithPriority(t, m, 1)
	staleAt := testNow.Add(-11 * time.Second)
	store.set(stale, func(r *Record) {
		r.Status = StatusSending
		r.SendingAt = &staleAt
		r.Errors = 1
	})
	fresh := enqueueWithPriority(t, m, 1)
	freshAt := testNow.Add(-5 * time.Second)
	store.set(fresh, func(r *Record) {
		r.Status = StatusSending
		r.SendingAt = &freshAt
	})
	before, _ := store.Get(context.Background(), stale)

	n, err := m.RecoverOnce(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one reclaimed email, got %d", n)
	}

	after, _ := store.Get(context.Background(), stale)
	if after.Status != StatusDelayed || after.DelayedAt == nil || !after.DelayedAt.Equal(testNow) {
		t.Fatalf("expected delayed at %v, got %s %v", testNow, after.Status, after.DelayedAt)
	}
	if after.Errors != before.Errors || !after.SendingAt.Equal(*before.SendingAt) || !after.QueuedAt.Equal(*before.QueuedAt) {
		t.Fatalf("expected only status and delayedAt to change")
	}
	rec, _ := store.Get(context.Background(), fresh)
	if rec.Status != StatusSending {
		t.Fatalf("expected fresh attempt untouched, got %s", rec.Status)
	}
	if events.count(EventDelayed) != 1 || metrics.delayed != 1 {
		t.Fatalf("expected one delayed event, got %v", events.kinds())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestStartProcessOnStart(t *testing.T) {
	store := newFakeStore()
	transport := &recordingTransport{}
	events := &eventLog{}
	m := newTestMailer(store, transport, WithInterval(time.Hour))
	events.subscribeAll(m.Hub())
	enqueueWithPriority(t, m, 1)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if !m.IsStarted() {
		t.Fatalf("expected started")
	}
	waitFor(t, func() bool { return transport.count() == 1 })

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.IsStarted() {
		t.Fatalf("expected stopped")
	}
	if events.count(EventStarted) != 1 || events.count(EventStopped) != 1 {
		t.Fatalf("expected started and stopped events, got %v", events.kinds())
	}
}

func TestStartWithoutProcessOnStart(t *testing.T) {
	store := newFakeStore()
	transport := &recordingTransport{}
	m := newTestMailer(store, transport, WithInterval(time.Hour), WithProcessOnStart(false))
	enqueueWithPriority(t, m, 1)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if transport.count() != 0 {
		t.Fatalf("expected no dispatch before the first tick")
	}
}

func TestStartDrainsOnInterval(t *testing.T) {
	store := newFakeStore()
	transport := &recordingTransport{}
	m := newTestMailer(store, transport, WithInterval(10*time.Millisecond), WithProcessOnStart(false))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = m.Stop(context.Background()) }()

	enqueueWithPriority(t, m, 1)
	waitFor(t, func() bool { return transport.count() == 1 })
}

func TestStartOutlivesCanceledContext(t *testing.T) {
	store := newFakeStore()
	transport := &recordingTransport{}
	m := newTestMailer(store, transport, WithInterval(10*time.Millisecond), WithProcessOnStart(false))

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = m.Stop(context.Background()) }()
	cancel()

	enqueueWithPriority(t, m, 1)
	waitFor(t, func() bool { return transport.count() == 1 })
	if !m.IsStarted() {
		t.Fatalf("expected loops to keep running")
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStopIdempotentAndRestart(t *testing.T) {
	m := newTestMailer(newFakeStore(), &recordingTransport{}, WithInterval(time.Hour))

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !m.IsStarted() {
		t.Fatalf("expected started after restart")
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
