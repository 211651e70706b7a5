package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

const maxErrorLen = 1024

// Dispatch performs one delivery attempt for the email.
//
// It returns ErrNotFound for unknown ids and a *StateError when the email is SENDING,
// SENT, READ or CANCELED. Transport failures are not returned: they are stored as
// FAILED and reported through EventFailed and EventError.
func (m *Mailer) Dispatch(ctx context.Context, id ID) error {
	return m.dispatch(ctx, id)
}

func (m *Mailer) dispatch(ctx context.Context, id ID) error {
	rec, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Status.Dispatchable() {
		return &StateError{ID: id, Status: rec.Status}
	}

	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	start := time.Now()
	defer func() {
		m.cfg.Metrics.ObserveDispatch(time.Since(start))
	}()

	msg := rec.Message()
	if err := m.cfg.Hub.Emit(ctx, Event{Kind: EventSend, ID: id, Message: msg}); err != nil {
		return m.fail(ctx, id, dispatchable, fmt.Errorf("%w: %s: %w", ErrSubscriber, EventSend, err))
	}
	DecorateForTracking(msg, m.linkFor(id))

	ok, err := m.store.Transition(ctx, id, dispatchable, Patch{Status: StatusSending, At: m.cfg.Clock.Now()})
	if err != nil {
		return fmt.Errorf("mailqueue: mark sending %s: %w", id, err)
	}
	if !ok {
		return m.conflict(ctx, id)
	}

	if err := m.transport.Send(ctx, msg); err != nil {
		return m.fail(ctx, id, inFlight, err)
	}

	return m.succeed(ctx, id)
}

func (m *Mailer) succeed(ctx context.Context, id ID) error {
	ok, err := m.store.Transition(ctx, id, inFlight, Patch{
		Status:         StatusSent,
		At:             m.cfg.Clock.Now(),
		ClearSendingAt: true,
	})
	if err != nil {
		return fmt.Errorf("mailqueue: mark sent %s: %w", id, err)
	}
	if !ok {
		m.cfg.Logger.Warn("mailqueue sent email changed status during send", "id", id)

		return nil
	}
	m.cfg.Metrics.AddSent(1)
	m.cfg.Logger.Info("mailqueue email sent", "id", id)

	return m.emit(ctx, Event{Kind: EventSent, ID: id})
}

func (m *Mailer) fail(ctx context.Context, id ID, from []Status, cause error) error {
	terr := &TransportError{ID: id, Err: cause}
	ok, err := m.store.Transition(ctx, id, from, Patch{
		Status:          StatusFailed,
		At:              m.cfg.Clock.Now(),
		IncrementErrors: true,
		Error:           errorDetail(cause),
	})
	if err != nil {
		return errors.Join(terr, fmt.Errorf("mailqueue: mark failed %s: %w", id, err))
	}
	if !ok {
		m.cfg.Logger.Warn("mailqueue failed email changed status during send", "id", id, "err", cause)

		return nil
	}
	m.cfg.Metrics.AddFailed(1)
	m.cfg.Logger.Warn("mailqueue send failed", "id", id, "err", cause)

	if err := m.emit(ctx, Event{Kind: EventFailed, ID: id, Err: terr}); err != nil {
		return err
	}

	return m.emit(ctx, Event{Kind: EventError, ID: id, Err: terr})
}

func (m *Mailer) conflict(ctx context.Context, id ID) error {
	rec, err := m.load(ctx, id)
	if err != nil {
		return err
	}

	return &StateError{ID: id, Status: rec.Status}
}

func errorDetail(err error) string {
	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	return string([]rune(msg)[:maxErrorLen])
}
