package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Mailer queues emails, dispatches them through a Transport and tracks their state.
type Mailer struct {
	store     Store
	transport Transport
	cfg       Config

	// draining is set while a drain cycle owns the batch.
	draining atomic.Bool
	// inflight counts dispatches in progress, including direct Dispatch calls.
	inflight atomic.Int64

	runMu sync.Mutex
	run   *schedulerRun
}

// New constructs a Mailer with defaults and optional settings.
func New(store Store, transport Transport, opts ...Option) (*Mailer, error) {
	if store == nil {
		panic("mailqueue: nil Store")
	}
	if transport == nil {
		panic("mailqueue: nil Transport")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Mailer{
		store:     store,
		transport: transport,
		cfg:       cfg,
	}, nil
}

// Hub returns the event hub used by the mailer.
func (m *Mailer) Hub() *Hub {
	return m.cfg.Hub
}

// Config returns the effective configuration.
func (m *Mailer) Config() Config {
	return m.cfg
}

// Get returns the stored record for id.
func (m *Mailer) Get(ctx context.Context, id ID) (Record, error) {
	return m.load(ctx, id)
}

func (m *Mailer) load(ctx context.Context, id ID) (Record, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		return Record{}, fmt.Errorf("mailqueue: load %s: %w", id, err)
	}

	return rec, nil
}

func (m *Mailer) emit(ctx context.Context, ev Event) error {
	if err := m.cfg.Hub.Emit(ctx, ev); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscriber, ev.Kind, err)
	}

	return nil
}
