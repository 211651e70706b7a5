package mailqueue

import "time"

// Metrics captures mailer telemetry.
type Metrics interface {
	// ObserveDispatch records the duration of a single delivery attempt.
	ObserveDispatch(duration time.Duration)
	// AddQueued increments the count of enqueued emails.
	AddQueued(count int)
	// AddSent increments the count of delivered emails.
	AddSent(count int)
	// AddFailed increments the count of failed attempts.
	AddFailed(count int)
	// AddDelayed increments the count of reclaimed attempts.
	AddDelayed(count int)
	// AddRead increments the count of emails marked read.
	AddRead(count int)
	// SetBatch records the size of the last drain snapshot.
	SetBatch(count int)
	// SetPending records the eligible backlog when the store can count it.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveDispatch implements Metrics.
func (NopMetrics) ObserveDispatch(time.Duration) {}

// AddQueued implements Metrics.
func (NopMetrics) AddQueued(int) {}

// AddSent implements Metrics.
func (NopMetrics) AddSent(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

// AddDelayed implements Metrics.
func (NopMetrics) AddDelayed(int) {}

// AddRead implements Metrics.
func (NopMetrics) AddRead(int) {}

// SetBatch implements Metrics.
func (NopMetrics) SetBatch(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
