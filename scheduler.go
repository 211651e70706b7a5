package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type schedulerRun struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start launches the recovery and drain loops. With ProcessOnStart a drain cycle runs
// before the first tick. Start returns ErrAlreadyStarted when the loops are running.
// The loops keep ctx's values but not its cancellation; only Stop ends them.
func (m *Mailer) Start(ctx context.Context) error {
	m.runMu.Lock()
	if m.run != nil {
		m.runMu.Unlock()

		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &schedulerRun{cancel: cancel}
	m.run = run
	run.wg.Add(2)
	go m.loop(loopCtx, &run.wg, m.cfg.MaxSendingTime, m.recoverTick, false)
	go m.loop(loopCtx, &run.wg, m.cfg.Interval, m.drainTick, m.cfg.ProcessOnStart)
	m.runMu.Unlock()

	m.cfg.Logger.Info("mailqueue started",
		"interval", m.cfg.Interval,
		"max_sending_time", m.cfg.MaxSendingTime,
		"retry", m.cfg.Retry,
		"async", m.cfg.Async,
	)

	return m.emit(ctx, Event{Kind: EventStarted})
}

// Stop cancels both loops and waits for them to return. A dispatch in progress is
// allowed to finish; the remaining records of a sequential batch are left for later cycles.
func (m *Mailer) Stop(ctx context.Context) error {
	m.runMu.Lock()
	run := m.run
	m.run = nil
	m.runMu.Unlock()

	if run == nil {
		return nil
	}
	run.cancel()
	run.wg.Wait()
	m.cfg.Logger.Info("mailqueue stopped")

	return m.emit(ctx, Event{Kind: EventStopped})
}

// Restart stops and starts the loops.
func (m *Mailer) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}

	return m.Start(ctx)
}

// IsStarted reports whether the loops are running.
func (m *Mailer) IsStarted() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	return m.run != nil
}

// IsSending reports whether a drain cycle or a dispatch is in progress.
func (m *Mailer) IsSending() bool {
	return m.draining.Load() || m.inflight.Load() > 0
}

// DrainOnce selects one snapshot of eligible emails and dispatches them.
// It returns the number of dispatched emails, or zero without selecting anything
// when a dispatch is already in progress.
func (m *Mailer) DrainOnce(ctx context.Context) (int, error) {
	if m.inflight.Load() > 0 || !m.draining.CompareAndSwap(false, true) {
		m.cfg.Logger.Debug("mailqueue drain skipped, dispatch in progress")

		return 0, nil
	}
	defer m.draining.Store(false)

	query := EligibleQuery{
		Now:   m.cfg.Clock.Now(),
		Retry: m.cfg.Retry,
		Limit: m.cfg.MaxEmailsPerTask,
	}
	ids, err := m.store.FindEligible(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("mailqueue: select eligible: %w", err)
	}
	m.cfg.Metrics.SetBatch(len(ids))
	m.recordPending(ctx, query)
	if len(ids) == 0 {
		return 0, nil
	}

	// Dispatches outlive Stop; only the loop between them observes cancellation.
	sendCtx := context.WithoutCancel(ctx)
	if m.cfg.Async {
		return m.drainAsync(ctx, sendCtx, ids), nil
	}

	count := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		count++
		m.dispatchLogged(sendCtx, id)
	}

	return count, nil
}

func (m *Mailer) drainAsync(ctx, sendCtx context.Context, ids []ID) int {
	var g errgroup.Group
	if m.cfg.MaxConcurrency > 0 {
		g.SetLimit(m.cfg.MaxConcurrency)
	}

	count := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		count++
		id := id
		g.Go(func() error {
			m.dispatchLogged(sendCtx, id)

			return nil
		})
	}
	_ = g.Wait()

	return count
}

func (m *Mailer) recordPending(ctx context.Context, query EligibleQuery) {
	counter, ok := m.store.(PendingCounter)
	if !ok {
		return
	}
	count, err := counter.PendingCount(ctx, query)
	if err != nil {
		m.cfg.Logger.Warn("mailqueue pending count failed", "err", err)

		return
	}
	m.cfg.Metrics.SetPending(count)
}

func (m *Mailer) dispatchLogged(ctx context.Context, id ID) {
	err := m.dispatch(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, ErrStateConflict), errors.Is(err, ErrNotFound):
		m.cfg.Logger.Debug("mailqueue dispatch skipped", "id", id, "err", err)
	default:
		m.cfg.Logger.Error("mailqueue dispatch error", "id", id, "err", err)
	}
}

// RecoverOnce moves emails stuck in SENDING for longer than MaxSendingTime to DELAYED
// and emits EventDelayed for each of them.
func (m *Mailer) RecoverOnce(ctx context.Context) (int, error) {
	now := m.cfg.Clock.Now()
	ids, err := m.store.ReclaimStale(ctx, now.Add(-m.cfg.MaxSendingTime), now)
	if err != nil {
		return 0, fmt.Errorf("mailqueue: reclaim stale: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	m.cfg.Metrics.AddDelayed(len(ids))
	m.cfg.Logger.Warn("mailqueue reclaimed stuck emails", "count", len(ids))

	var errs []error
	for _, id := range ids {
		if err := m.emit(ctx, Event{Kind: EventDelayed, ID: id}); err != nil {
			errs = append(errs, err)
		}
	}

	return len(ids), errors.Join(errs...)
}

func (m *Mailer) loop(ctx context.Context, wg *sync.WaitGroup, every time.Duration, tick func(context.Context), immediate bool) {
	defer wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	if immediate {
		tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (m *Mailer) drainTick(ctx context.Context) {
	if _, err := m.DrainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.cfg.Logger.Error("mailqueue drain failed", "err", err)
	}
}

func (m *Mailer) recoverTick(ctx context.Context) {
	if _, err := m.RecoverOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.cfg.Logger.Error("mailqueue recovery failed", "err", err)
	}
}
