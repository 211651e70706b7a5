package mailqueue

import "time"

// Record is a stored email together with its delivery state.
type Record struct {
	ID          ID
	From        string
	To          Addresses
	Cc          Addresses
	Bcc         Addresses
	ReplyTo     Addresses
	Subject     string
	Text        string
	HTML        string
	Headers     map[string]string
	Attachments []Attachment
	Priority    int
	Status      Status
	Errors      int
	Error       string
	SendAt      *time.Time
	QueuedAt    *time.Time
	SendingAt   *time.Time
	SentAt      *time.Time
	DelayedAt   *time.Time
	FailedAt    *time.Time
	CanceledAt  *time.Time
	ReadAt      *time.Time
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.To = cloneAddresses(r.To)
	out.Cc = cloneAddresses(r.Cc)
	out.Bcc = cloneAddresses(r.Bcc)
	out.ReplyTo = cloneAddresses(r.ReplyTo)
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	if r.Attachments != nil {
		out.Attachments = make([]Attachment, len(r.Attachments))
		for i, a := range r.Attachments {
			a.Content = append([]byte(nil), a.Content...)
			out.Attachments[i] = a
		}
	}
	out.SendAt = cloneTime(r.SendAt)
	out.QueuedAt = cloneTime(r.QueuedAt)
	out.SendingAt = cloneTime(r.SendingAt)
	out.SentAt = cloneTime(r.SentAt)
	out.DelayedAt = cloneTime(r.DelayedAt)
	out.FailedAt = cloneTime(r.FailedAt)
	out.CanceledAt = cloneTime(r.CanceledAt)
	out.ReadAt = cloneTime(r.ReadAt)

	return out
}

// Apply sets the fields described by p on the record.
func (r *Record) Apply(p Patch) {
	r.Status = p.Status
	at := p.At
	switch p.Status {
	case StatusSending:
		r.SendingAt = &at
	case StatusSent:
		r.SentAt = &at
	case StatusDelayed:
		r.DelayedAt = &at
	case StatusFailed:
		r.FailedAt = &at
	case StatusCanceled:
		r.CanceledAt = &at
	case StatusRead:
		r.ReadAt = &at
	}
	if p.IncrementErrors {
		r.Errors++
	}
	if p.Error != "" {
		r.Error = p.Error
	}
	if p.ClearSendingAt {
		r.SendingAt = nil
	}
}

// Message is the decorated copy of a record handed to a Transport.
type Message struct {
	ID          ID
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     []string
	Subject     string
	Text        string
	HTML        string
	Headers     map[string]string
	Attachments []Attachment
}

// Message builds a transport message from the pristine stored content.
func (r Record) Message() *Message {
	c := r.Clone()

	return &Message{
		ID:          c.ID,
		From:        c.From,
		To:          c.To,
		Cc:          c.Cc,
		Bcc:         c.Bcc,
		ReplyTo:     c.ReplyTo,
		Subject:     c.Subject,
		Text:        c.Text,
		HTML:        c.HTML,
		Headers:     c.Headers,
		Attachments: c.Attachments,
	}
}

func newRecord(e Email, now time.Time) Record {
	queuedAt := now
	rec := Record{
		From:        e.From,
		To:          e.To,
		Cc:          e.Cc,
		Bcc:         e.Bcc,
		ReplyTo:     e.ReplyTo,
		Subject:     e.Subject,
		Text:        e.Text,
		HTML:        e.HTML,
		Headers:     e.Headers,
		Attachments: e.Attachments,
		Status:      StatusPending,
		QueuedAt:    &queuedAt,
		SendAt:      e.SendAt,
	}
	if e.Priority != nil {
		rec.Priority = *e.Priority
	}

	return rec.Clone()
}

func cloneAddresses(a Addresses) Addresses {
	if a == nil {
		return nil
	}

	return append(Addresses(nil), a...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t

	return &v
}
