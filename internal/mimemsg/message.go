// Package mimemsg renders a mailqueue message as a MIME document.
package mimemsg

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"sort"

	"gopkg.in/gomail.v2"

	"github.com/velmie/mailqueue"
)

// Build converts msg into a gomail message. Bcc recipients are set on the message
// but gomail leaves them out of the rendered headers.
func Build(msg *mailqueue.Message) (*gomail.Message, error) {
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))

	if err := setAddresses(m, "From", []string{msg.From}); err != nil {
		return nil, err
	}
	for _, h := range []struct {
		field string
		list  []string
	}{
		{"To", msg.To},
		{"Cc", msg.Cc},
		{"Bcc", msg.Bcc},
		{"Reply-To", msg.ReplyTo},
	} {
		if err := setAddresses(m, h.field, h.list); err != nil {
			return nil, err
		}
	}
	m.SetHeader("Subject", msg.Subject)

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetHeader(k, msg.Headers[k])
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	for _, a := range msg.Attachments {
		content := a.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {a.ContentType},
			}))
		}
		m.Attach(a.Filename, settings...)
	}

	return m, nil
}

// Render returns the RFC 5322 bytes of msg.
func Render(msg *mailqueue.Message) ([]byte, error) {
	m, err := Build(msg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", msg.ID, err)
	}

	return buf.Bytes(), nil
}

// Recipients returns the envelope recipients in To, Cc, Bcc order.
func Recipients(msg *mailqueue.Message) []string {
	out := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
	out = append(out, msg.To...)
	out = append(out, msg.Cc...)

	return append(out, msg.Bcc...)
}

func setAddresses(m *gomail.Message, field string, list []string) error {
	if len(list) == 0 {
		return nil
	}

	formatted := make([]string, 0, len(list))
	for _, raw := range list {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("%w: %s %q", mailqueue.ErrInvalidAddress, field, raw)
		}
		formatted = append(formatted, m.FormatAddress(addr.Address, addr.Name))
	}
	m.SetHeader(field, formatted...)

	return nil
}
