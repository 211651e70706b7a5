package mailqueue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
)

const signatureLength = 16

// ReadPath returns the tracking path that marks the email read and optionally redirects.
func (m *Mailer) ReadPath(id ID, redirect string) string {
	q := url.Values{}
	q.Set("emailId", id.String())
	if redirect != "" {
		q.Set("redirect", redirect)
	}
	if len(m.cfg.SigningKey) > 0 {
		q.Set("sig", m.sign(id, redirect))
	}

	return "/" + m.cfg.WebHook + "/read?" + q.Encode()
}

// ReadURL returns ReadPath prefixed with the configured base URL.
func (m *Mailer) ReadURL(id ID, redirect string) string {
	return m.cfg.BaseURL + m.ReadPath(id, redirect)
}

// WebHook returns the configured tracking path prefix without slashes.
func (m *Mailer) WebHook() string {
	return m.cfg.WebHook
}

// VerifySignature reports whether sig authenticates id and redirect.
// It always succeeds when no signing key is configured.
func (m *Mailer) VerifySignature(id ID, redirect, sig string) bool {
	if len(m.cfg.SigningKey) == 0 {
		return true
	}

	return hmac.Equal([]byte(m.sign(id, redirect)), []byte(sig))
}

func (m *Mailer) sign(id ID, redirect string) string {
	h := hmac.New(sha256.New, m.cfg.SigningKey)
	h.Write([]byte(id.String() + "|" + redirect))

	return hex.EncodeToString(h.Sum(nil))[:signatureLength]
}

func (m *Mailer) linkFor(id ID) LinkFunc {
	return func(redirect string) string {
		return m.ReadURL(id, redirect)
	}
}

// MarkRead moves a SENT email to READ and emits EventRead.
// It reports false when the email is unknown or not in SENT, so repeated requests are no-ops.
func (m *Mailer) MarkRead(ctx context.Context, id ID) (bool, error) {
	ok, err := m.store.Transition(ctx, id, readable, Patch{Status: StatusRead, At: m.cfg.Clock.Now()})
	if err != nil {
		return false, fmt.Errorf("mailqueue: mark read %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}
	m.cfg.Metrics.AddRead(1)
	m.cfg.Logger.Debug("mailqueue email read", "id", id)

	return true, m.emit(ctx, Event{Kind: EventRead, ID: id})
}

// IsSent reports whether the email was delivered.
func (m *Mailer) IsSent(ctx context.Context, id ID) (bool, error) {
	rec, err := m.load(ctx, id)
	if err != nil {
		return false, err
	}

	return rec.Status == StatusSent || rec.SentAt != nil, nil
}

// IsRead reports whether the email was opened or one of its links followed.
func (m *Mailer) IsRead(ctx context.Context, id ID) (bool, error) {
	rec, err := m.load(ctx, id)
	if err != nil {
		return false, err
	}

	return rec.Status == StatusRead || rec.ReadAt != nil, nil
}
