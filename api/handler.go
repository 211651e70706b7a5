// Package api exposes the queue over a small JSON HTTP API.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/velmie/mailqueue"
)

const maxBodyBytes = 10 << 20

// Queue is implemented by *mailqueue.Mailer.
type Queue interface {
	Enqueue(ctx context.Context, email mailqueue.Email) (mailqueue.ID, error)
	Get(ctx context.Context, id mailqueue.ID) (mailqueue.Record, error)
	Cancel(ctx context.Context, id mailqueue.ID) (bool, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(h *Handler) {
		h.token = token
	}
}

// WithAllowedOrigins enables CORS for browser clients on the listed origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) {
		h.origins = append(h.origins, origins...)
	}
}

// WithLogger sets the logger for internal errors.
func WithLogger(logger mailqueue.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handler holds the API state.
type Handler struct {
	queue   Queue
	token   string
	origins []string
	logger  mailqueue.Logger
}

// NewHandler creates the API handler.
func NewHandler(queue Queue, opts ...Option) *Handler {
	h := &Handler{queue: queue, logger: mailqueue.NopLogger{}}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Routes mounts the /emails routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/emails", func(r chi.Router) {
		// Preflight requests carry no credentials, so CORS runs before the token check.
		if len(h.origins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: h.origins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
				MaxAge:         300,
			}))
		}
		if h.token != "" {
			r.Use(h.bearerAuth)
		}
		r.Post("/", h.CreateEmail)
		r.Get("/{id}", h.GetEmail)
		r.Post("/{id}/cancel", h.CancelEmail)
	})
}

func (h *Handler) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			h.fail(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateEmail handles POST /emails.
func (h *Handler) CreateEmail(w http.ResponseWriter, r *http.Request) {
	var email mailqueue.Email
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&email); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := h.queue.Enqueue(r.Context(), email)
	switch {
	case errors.Is(err, mailqueue.ErrValidation):
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, mailqueue.ErrSubscriber):
		// stored already, only a queued subscriber failed
		h.logger.Warn("mailqueue api queued subscriber failed", "id", id, "err", err)
	case err != nil:
		h.internalError(w, "enqueue", err)
		return
	}

	h.success(w, http.StatusCreated, "email queued", map[string]string{"id": id.String()})
}

// GetEmail handles GET /emails/{id}.
func (h *Handler) GetEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	rec, err := h.queue.Get(r.Context(), id)
	switch {
	case errors.Is(err, mailqueue.ErrNotFound):
		h.fail(w, http.StatusNotFound, "email not found")
		return
	case err != nil:
		h.internalError(w, "get", err)
		return
	}

	h.success(w, http.StatusOK, "email found", newEmailView(rec))
}

// CancelEmail handles POST /emails/{id}/cancel.
func (h *Handler) CancelEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	canceled, err := h.queue.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, mailqueue.ErrNotFound):
		h.fail(w, http.StatusNotFound, "email not found")
		return
	case err != nil:
		h.internalError(w, "cancel", err)
		return
	case !canceled:
		h.fail(w, http.StatusConflict, "email can no longer be canceled")
		return
	}

	h.success(w, http.StatusOK, "email canceled", map[string]string{"id": id.String()})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (mailqueue.ID, bool) {
	id, err := mailqueue.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, http.StatusBadRequest, err.Error())
		return mailqueue.ID{}, false
	}

	return id, true
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("mailqueue api "+op+" failed", "err", err)
	h.fail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

type emailView struct {
	ID          mailqueue.ID      `json:"id"`
	Status      mailqueue.Status  `json:"status"`
	From        string            `json:"from"`
	To          []string          `json:"to,omitempty"`
	Cc          []string          `json:"cc,omitempty"`
	Bcc         []string          `json:"bcc,omitempty"`
	Subject     string            `json:"subject"`
	Priority    int               `json:"priority"`
	Errors      int               `json:"errors"`
	LastError   string            `json:"lastError,omitempty"`
	Attachments int               `json:"attachments"`
	Headers     map[string]string `json:"headers,omitempty"`
	SendAt      *time.Time        `json:"sendAt,omitempty"`
	QueuedAt    *time.Time        `json:"queuedAt,omitempty"`
	SendingAt   *time.Time        `json:"sendingAt,omitempty"`
	SentAt      *time.Time        `json:"sentAt,omitempty"`
	DelayedAt   *time.Time        `json:"delayedAt,omitempty"`
	FailedAt    *time.Time        `json:"failedAt,omitempty"`
	CanceledAt  *time.Time        `json:"canceledAt,omitempty"`
	ReadAt      *time.Time        `json:"readAt,omitempty"`
}

func newEmailView(rec mailqueue.Record) emailView {
	return emailView{
		ID:          rec.ID,
		Status:      rec.Status,
		From:        rec.From,
		To:          rec.To,
		Cc:          rec.Cc,
		Bcc:         rec.Bcc,
		Subject:     rec.Subject,
		Priority:    rec.Priority,
		Errors:      rec.Errors,
		LastError:   rec.Error,
		Attachments: len(rec.Attachments),
		Headers:     rec.Headers,
		SendAt:      rec.SendAt,
		QueuedAt:    rec.QueuedAt,
		SendingAt:   rec.SendingAt,
		SentAt:      rec.SentAt,
		DelayedAt:   rec.DelayedAt,
		FailedAt:    rec.FailedAt,
		CanceledAt:  rec.CanceledAt,
		ReadAt:      rec.ReadAt,
	}
}
