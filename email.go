package mailqueue

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"time"
)

// Addresses is an ordered list of RFC 5322 addresses.
// In JSON it accepts either a single string or an array of strings.
type Addresses []string

// UnmarshalJSON implements json.Unmarshaler.
func (a *Addresses) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*a = nil
		} else {
			*a = Addresses{single}
		}

		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%w: address must be a string or an array of strings", ErrInvalidAddress)
	}
	*a = list

	return nil
}

// Attachment is a file sent along with the email.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Content     []byte `json:"content"`
}

// Email describes a new message to be queued.
type Email struct {
	// From is optional when the mailer has a default sender.
	From    string    `json:"from,omitempty"`
	To      Addresses `json:"to,omitempty"`
	Cc      Addresses `json:"cc,omitempty"`
	Bcc     Addresses `json:"bcc,omitempty"`
	ReplyTo Addresses `json:"replyTo,omitempty"`
	Subject string    `json:"subject,omitempty"`
	// Text and HTML are the pristine bodies, at least one is required.
	Text        string            `json:"text,omitempty"`
	HTML        string            `json:"html,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	// Priority is nil to use the configured default, lower is more urgent.
	Priority *int `json:"priority,omitempty"`
	// SendAt postpones the first attempt until the given time.
	SendAt *time.Time `json:"sendAt,omitempty"`
}

// Validate checks required fields and address syntax.
func (e Email) Validate() error {
	if e.From == "" {
		return ErrFromRequired
	}
	if len(e.To) == 0 && len(e.Cc) == 0 && len(e.Bcc) == 0 {
		return ErrNoRecipient
	}
	if e.Text == "" && e.HTML == "" {
		return ErrNoContent
	}
	if e.Priority != nil && *e.Priority < 0 {
		return ErrInvalidPriority
	}

	if _, err := mail.ParseAddress(e.From); err != nil {
		return fmt.Errorf("%w: from %q", ErrInvalidAddress, e.From)
	}
	for _, list := range []Addresses{e.To, e.Cc, e.Bcc, e.ReplyTo} {
		for _, addr := range list {
			if _, err := mail.ParseAddress(addr); err != nil {
				return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
			}
		}
	}

	return nil
}

func (e Email) withDefaults(cfg Config) Email {
	if e.From == "" {
		e.From = cfg.From
	}
	if e.Bcc == nil {
		e.Bcc = cfg.Bcc
	}
	if e.Cc == nil {
		e.Cc = cfg.Cc
	}
	if e.ReplyTo == nil {
		e.ReplyTo = cfg.ReplyTo
	}
	if e.Headers == nil && len(cfg.Headers) > 0 {
		e.Headers = make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			e.Headers[k] = v
		}
	}
	if e.Priority == nil {
		priority := cfg.Priority
		e.Priority = &priority
	}

	return e
}
