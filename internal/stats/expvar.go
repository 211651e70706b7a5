// Package stats publishes mailqueue counters through expvar.
package stats

import (
	"expvar"
	"time"

	"github.com/velmie/mailqueue"
)

// Metrics implements mailqueue.Metrics on an expvar.Map.
type Metrics struct {
	vars    *expvar.Map
	batch   *expvar.Int
	pending *expvar.Int
}

var _ mailqueue.Metrics = (*Metrics)(nil)

// New creates unpublished metrics; call Publish to expose them on /debug/vars.
func New() *Metrics {
	m := &Metrics{
		vars:    new(expvar.Map).Init(),
		batch:   new(expvar.Int),
		pending: new(expvar.Int),
	}
	m.vars.Set("batch", m.batch)
	m.vars.Set("pending", m.pending)

	return m
}

// Publish registers the map under name. expvar panics if name is already taken.
func (m *Metrics) Publish(name string) {
	expvar.Publish(name, m.vars)
}

// Get returns the variable stored under key, or nil.
func (m *Metrics) Get(key string) expvar.Var {
	return m.vars.Get(key)
}

// ObserveDispatch implements mailqueue.Metrics.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	m.vars.Add("dispatches", 1)
	m.vars.AddFloat("dispatch_seconds", d.Seconds())
}

// AddQueued implements mailqueue.Metrics.
func (m *Metrics) AddQueued(n int) { m.vars.Add("queued", int64(n)) }

// AddSent implements mailqueue.Metrics.
func (m *Metrics) AddSent(n int) { m.vars.Add("sent", int64(n)) }

// AddFailed implements mailqueue.Metrics.
func (m *Metrics) AddFailed(n int) { m.vars.Add("failed", int64(n)) }

// AddDelayed implements mailqueue.Metrics.
func (m *Metrics) AddDelayed(n int) { m.vars.Add("delayed", int64(n)) }

// AddRead implements mailqueue.Metrics.
func (m *Metrics) AddRead(n int) { m.vars.Add("read", int64(n)) }

// SetBatch implements mailqueue.Metrics.
func (m *Metrics) SetBatch(n int) { m.batch.Set(int64(n)) }

// SetPending implements mailqueue.Metrics.
func (m *Metrics) SetPending(n int) { m.pending.Set(int64(n)) }
