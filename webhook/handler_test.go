package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/mailqueue"
	"github.com/velmie/mailqueue/memstore"
)

type fakeTracker struct {
	valid  bool
	err    error
	marked []mailqueue.ID
}

func (f *fakeTracker) WebHook() string { return "mailer" }

func (f *fakeTracker) VerifySignature(mailqueue.ID, string, string) bool { return f.valid }

func (f *fakeTracker) MarkRead(_ context.Context, id mailqueue.ID) (bool, error) {
	f.marked = append(f.marked, id)
	return f.err == nil, f.err
}

var testID = mailqueue.ID{0x01, 0x8f}

func readURL(id mailqueue.ID, redirect string) string {
	q := url.Values{}
	q.Set("emailId", id.String())
	if redirect != "" {
		q.Set("redirect", redirect)
	}
	return "/mailer/read?" + q.Encode()
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleReadServesPixel(t *testing.T) {
	tracker := &fakeTracker{valid: true}
	rec := serve(New(tracker).Routes(), readURL(testID, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
	assert.Equal(t, []mailqueue.ID{testID}, tracker.marked)
}

func TestHandleReadRedirects(t *testing.T) {
	tracker := &fakeTracker{valid: true}
	rec := serve(New(tracker).Routes(), readURL(testID, "https://example.com/a?b=1"))

	require.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/a?b=1", rec.Header().Get("Location"))
	assert.Len(t, tracker.marked, 1)
}

func TestHandleReadStoreErrorStillResponds(t *testing.T) {
	tracker := &fakeTracker{valid: true, err: errors.New("db down")}
	rec := serve(New(tracker).Routes(), readURL(testID, ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadRejects(t *testing.T) {
	cases := []struct {
		name   string
		valid  bool
		target string
		code   int
	}{
		{"bad id", true, "/mailer/read?emailId=nope", http.StatusNotFound},
		{"bad signature", false, readURL(testID, ""), http.StatusForbidden},
		{"relative redirect", true, readURL(testID, "/internal"), http.StatusBadRequest},
		{"javascript redirect", true, readURL(testID, "javascript:alert(1)"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := &fakeTracker{valid: tc.valid}
			rec := serve(New(tracker).Routes(), tc.target)
			assert.Equal(t, tc.code, rec.Code)
			assert.Empty(t, tracker.marked)
		})
	}
}

func TestMiddlewarePassesThrough(t *testing.T) {
	tracker := &fakeTracker{valid: true}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := New(tracker).Middleware(next)

	assert.Equal(t, http.StatusTeapot, serve(h, "/other").Code)
	assert.Equal(t, http.StatusTeapot, serve(h, "/mailer/read").Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, readURL(testID, ""), nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, tracker.marked)

	assert.Equal(t, http.StatusOK, serve(h, readURL(testID, "")).Code)
	assert.Len(t, tracker.marked, 1)
}

func TestSignedReadFlow(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	transport := mailqueue.TransportFunc(func(context.Context, *mailqueue.Message) error { return nil })
	m, err := mailqueue.New(store, transport,
		mailqueue.WithBaseURL("https://mail.example.com"),
		mailqueue.WithSigningKey([]byte("secret")),
	)
	require.NoError(t, err)

	id, err := m.Send(ctx, mailqueue.Email{
		From: "sender@example.com",
		To:   mailqueue.Addresses{"rcpt@example.com"},
		HTML: "<p>hi</p>",
	})
	require.NoError(t, err)

	read := 0
	m.Hub().Subscribe(mailqueue.EventRead, func(context.Context, mailqueue.Event) error {
		read++
		return nil
	})
	h := New(m).Routes()

	tampered := m.ReadPath(id, "https://example.com") + "x"
	assert.Equal(t, http.StatusForbidden, serve(h, tampered).Code)

	target := m.ReadPath(id, "https://example.com/landing")
	rec := serve(h, target)
	require.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/landing", rec.Header().Get("Location"))

	rec = serve(h, target)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, 1, read)

	isRead, err := m.IsRead(ctx, id)
	require.NoError(t, err)
	assert.True(t, isRead)
}
