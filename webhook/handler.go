// Package webhook serves the read-tracking endpoint that tracking pixels and rewritten links point at.
package webhook

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/velmie/mailqueue"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Tracker is implemented by *mailqueue.Mailer.
type Tracker interface {
	WebHook() string
	VerifySignature(id mailqueue.ID, redirect, sig string) bool
	MarkRead(ctx context.Context, id mailqueue.ID) (bool, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger for rejected requests and store errors.
func WithLogger(logger mailqueue.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handler marks emails read and answers with a redirect or a pixel.
type Handler struct {
	tracker Tracker
	logger  mailqueue.Logger
}

// New creates a handler for tracker.
func New(tracker Tracker, opts ...Option) *Handler {
	h := &Handler{tracker: tracker, logger: mailqueue.NopLogger{}}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ReadPattern returns the route of the read endpoint, "/<webHook>/read".
func (h *Handler) ReadPattern() string {
	return "/" + h.tracker.WebHook() + "/read"
}

// Routes returns a router serving only the read endpoint.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get(h.ReadPattern(), h.HandleRead)

	return r
}

// Middleware serves read requests that carry an emailId and passes everything else to next.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get(h.ReadPattern(), func(w http.ResponseWriter, req *http.Request) {
		if !req.URL.Query().Has("emailId") {
			next.ServeHTTP(w, req)
			return
		}
		h.HandleRead(w, req)
	})
	r.NotFound(next.ServeHTTP)
	r.MethodNotAllowed(next.ServeHTTP)

	return r
}

// HandleRead marks the email read, then redirects to the redirect parameter or serves the pixel.
// Requests whose signature does not verify are rejected without touching the email.
func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := mailqueue.ParseID(q.Get("emailId"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	redirect := q.Get("redirect")
	if !h.tracker.VerifySignature(id, redirect, q.Get("sig")) {
		h.logger.Warn("mailqueue webhook signature mismatch", "id", id, "remote", r.RemoteAddr)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	if redirect != "" && !validTarget(redirect) {
		http.Error(w, "invalid redirect", http.StatusBadRequest)
		return
	}

	if _, err := h.tracker.MarkRead(r.Context(), id); err != nil {
		h.logger.Error("mailqueue webhook mark read failed", "id", id, "err", err)
	}

	if redirect != "" {
		http.Redirect(w, r, redirect, http.StatusMovedPermanently)
		return
	}
	servePixel(w)
}

func validTarget(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	_, _ = w.Write(pixelGIF)
}
