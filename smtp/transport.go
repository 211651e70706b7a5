// Package smtp delivers mailqueue messages through an SMTP relay using gomail.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/velmie/mailqueue"
	"github.com/velmie/mailqueue/internal/mimemsg"
)

// ErrHostRequired is returned when the relay host is empty.
var ErrHostRequired = errors.New("mailqueue smtp: host is required")

// Dialer opens a connection per call and sends the messages. *gomail.Dialer implements it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config describes the SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL forces implicit TLS; port 465 enables it automatically.
	SSL bool
	// InsecureSkipVerify disables certificate verification for STARTTLS and SSL.
	InsecureSkipVerify bool
	// LocalName is sent with HELO, gomail defaults to "localhost".
	LocalName string
}

// Transport implements mailqueue.Transport.
type Transport struct {
	dialer Dialer
}

var _ mailqueue.Transport = (*Transport)(nil)

// New builds a transport dialing the relay described by cfg.
func New(cfg Config) (*Transport, error) {
	if cfg.Host == "" {
		return nil, ErrHostRequired
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = d.SSL || cfg.SSL
	d.LocalName = cfg.LocalName
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test relays
	}

	return NewWithDialer(d), nil
}

// NewWithDialer builds a transport on a custom dialer.
func NewWithDialer(d Dialer) *Transport {
	return &Transport{dialer: d}
}

// Send renders msg and hands it to the relay. gomail has no context support,
// so ctx is only checked before dialing.
func (t *Transport) Send(ctx context.Context, msg *mailqueue.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := mimemsg.Build(msg)
	if err != nil {
		return err
	}
	if err := t.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mailqueue smtp: send %s: %w", msg.ID, err)
	}

	return nil
}
