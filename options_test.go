package mailqueue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	m := newTestMailer(newFakeStore(), &recordingTransport{})
	cfg := m.Config()

	if cfg.Interval != time.Minute {
		t.Fatalf("expected 1m interval, got %v", cfg.Interval)
	}
	if cfg.MaxSendingTime != 10*time.Second {
		t.Fatalf("expected 10s max sending time, got %v", cfg.MaxSendingTime)
	}
	if cfg.Priority != 2 || cfg.Retry != 1 {
		t.Fatalf("expected priority 2 retry 1, got %d %d", cfg.Priority, cfg.Retry)
	}
	if !cfg.ProcessOnStart || cfg.Async {
		t.Fatalf("expected process on start and sequential dispatch")
	}
	if cfg.WebHook != "mailer" {
		t.Fatalf("expected mailer webhook, got %s", cfg.WebHook)
	}
}

func TestConfigExplicitZeroes(t *testing.T) {
	m := newTestMailer(newFakeStore(), &recordingTransport{},
		WithPriority(0),
		WithRetry(0),
		WithProcessOnStart(false),
	)
	cfg := m.Config()
	if cfg.Priority != 0 || cfg.Retry != 0 || cfg.ProcessOnStart {
		t.Fatalf("expected explicit zero values to be kept, got %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []Option{
		WithMaxEmailsPerTask(-1),
		WithMaxConcurrency(-1),
		WithPriority(-1),
		WithRetry(-2),
	}
	for _, opt := range cases {
		if _, err := New(newFakeStore(), &recordingTransport{}, WithBaseURL(testBaseURL), opt); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
	}
}

func TestConfigRequiresAbsoluteBaseURL(t *testing.T) {
	for _, base := range []string{"", "/mailer", "mail.example.com", "ftp://mail.example.com", "https://"} {
		if _, err := New(newFakeStore(), &recordingTransport{}, WithBaseURL(base)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("base %q: expected ErrInvalidConfig, got %v", base, err)
		}
	}
	if _, err := New(newFakeStore(), &recordingTransport{}, WithBaseURL("http://localhost:8080")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSentLinksAreAbsolute(t *testing.T) {
	transport := &recordingTransport{}
	m := newTestMailer(newFakeStore(), transport)

	email := validEmail()
	email.HTML = `<a href="https://a.example/x">x</a>`
	if _, err := m.Send(context.Background(), email); err != nil {
		t.Fatalf("send: %v", err)
	}
	if transport.count() != 1 {
		t.Fatalf("expected one message, got %d", transport.count())
	}
	html := transport.sent[0].HTML
	if strings.Count(html, testBaseURL+"/mailer/read?") != 2 {
		t.Fatalf("expected absolute link and pixel, got %s", html)
	}
	if strings.Contains(html, `"/mailer/read`) {
		t.Fatalf("found relative tracking url in %s", html)
	}
}
