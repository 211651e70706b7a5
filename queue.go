package mailqueue

import (
	"context"
	"fmt"
)

// Enqueue validates the email, applies the configured defaults and stores it as PENDING.
func (m *Mailer) Enqueue(ctx context.Context, email Email) (ID, error) {
	email = email.withDefaults(m.cfg)
	if err := email.Validate(); err != nil {
		return ID{}, err
	}

	id, err := m.store.Insert(ctx, newRecord(email, m.cfg.Clock.Now()))
	if err != nil {
		return ID{}, fmt.Errorf("mailqueue: insert: %w", err)
	}
	m.cfg.Metrics.AddQueued(1)
	m.cfg.Logger.Debug("mailqueue email queued", "id", id, "priority", *email.Priority)

	return id, m.emit(ctx, Event{Kind: EventQueued, ID: id})
}

// Send enqueues the email and dispatches it immediately.
func (m *Mailer) Send(ctx context.Context, email Email) (ID, error) {
	id, err := m.Enqueue(ctx, email)
	if err != nil {
		return id, err
	}

	return id, m.Dispatch(ctx, id)
}

// Cancel moves a PENDING, DELAYED or FAILED email to CANCELED.
// It reports false when the current status cannot be canceled and ErrNotFound for unknown ids.
func (m *Mailer) Cancel(ctx context.Context, id ID) (bool, error) {
	ok, err := m.store.Transition(ctx, id, cancelable, Patch{Status: StatusCanceled, At: m.cfg.Clock.Now()})
	if err != nil {
		return false, fmt.Errorf("mailqueue: cancel %s: %w", id, err)
	}
	if ok {
		m.cfg.Logger.Info("mailqueue email canceled", "id", id)

		return true, nil
	}
	if _, err := m.load(ctx, id); err != nil {
		return false, err
	}

	return false, nil
}
