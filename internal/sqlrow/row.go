// Package sqlrow maps mailqueue records to the column layout shared by the SQL stores.
package sqlrow

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/velmie/mailqueue"
)

// MaxErrorLen matches the width of the last_error column.
const MaxErrorLen = 1024

// Columns lists the record columns in the order used by Args and Scan.
var Columns = []string{
	"id",
	"from_address",
	"to_addresses",
	"cc_addresses",
	"bcc_addresses",
	"reply_to",
	"subject",
	"text_body",
	"html_body",
	"headers",
	"attachments",
	"priority",
	"status",
	"errors",
	"last_error",
	"send_at",
	"queued_at",
	"sending_at",
	"sent_at",
	"delayed_at",
	"failed_at",
	"canceled_at",
	"read_at",
}

var timestampColumns = map[mailqueue.Status]string{
	mailqueue.StatusPending:  "queued_at",
	mailqueue.StatusSending:  "sending_at",
	mailqueue.StatusSent:     "sent_at",
	mailqueue.StatusDelayed:  "delayed_at",
	mailqueue.StatusFailed:   "failed_at",
	mailqueue.StatusCanceled: "canceled_at",
	mailqueue.StatusRead:     "read_at",
}

// TimestampColumn returns the column stamped when a record enters status.
func TimestampColumn(status mailqueue.Status) (string, bool) {
	col, ok := timestampColumns[status]

	return col, ok
}

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Args returns the values of rec in Columns order.
func Args(rec mailqueue.Record) ([]any, error) {
	to, err := jsonValue(rec.To)
	if err != nil {
		return nil, err
	}
	cc, err := jsonValue(rec.Cc)
	if err != nil {
		return nil, err
	}
	bcc, err := jsonValue(rec.Bcc)
	if err != nil {
		return nil, err
	}
	replyTo, err := jsonValue(rec.ReplyTo)
	if err != nil {
		return nil, err
	}
	var headers any
	if len(rec.Headers) > 0 {
		if headers, err = marshal(rec.Headers); err != nil {
			return nil, err
		}
	}
	var attachments any
	if len(rec.Attachments) > 0 {
		if attachments, err = marshal(rec.Attachments); err != nil {
			return nil, err
		}
	}

	return []any{
		rec.ID,
		rec.From,
		to,
		cc,
		bcc,
		replyTo,
		rec.Subject,
		nullString(rec.Text),
		nullString(rec.HTML),
		headers,
		attachments,
		rec.Priority,
		string(rec.Status),
		rec.Errors,
		nullString(Truncate(rec.Error)),
		nullTime(rec.SendAt),
		nullTime(rec.QueuedAt),
		nullTime(rec.SendingAt),
		nullTime(rec.SentAt),
		nullTime(rec.DelayedAt),
		nullTime(rec.FailedAt),
		nullTime(rec.CanceledAt),
		nullTime(rec.ReadAt),
	}, nil
}

// Scan reads one row selected with Columns.
func Scan(row Scanner) (mailqueue.Record, error) {
	var (
		rec                         mailqueue.Record
		to, cc, bcc, replyTo        []byte
		headers, attachments        []byte
		text, html, lastError       sql.NullString
		status                      string
		sendAt, queuedAt, sendingAt sql.NullTime
		sentAt, delayedAt, failedAt sql.NullTime
		canceledAt, readAt          sql.NullTime
	)
	if err := row.Scan(
		&rec.ID,
		&rec.From,
		&to,
		&cc,
		&bcc,
		&replyTo,
		&rec.Subject,
		&text,
		&html,
		&headers,
		&attachments,
		&rec.Priority,
		&status,
		&rec.Errors,
		&lastError,
		&sendAt,
		&queuedAt,
		&sendingAt,
		&sentAt,
		&delayedAt,
		&failedAt,
		&canceledAt,
		&readAt,
	); err != nil {
		return mailqueue.Record{}, err
	}

	for _, field := range []struct {
		raw  []byte
		dest any
	}{
		{to, &rec.To},
		{cc, &rec.Cc},
		{bcc, &rec.Bcc},
		{replyTo, &rec.ReplyTo},
		{headers, &rec.Headers},
		{attachments, &rec.Attachments},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return mailqueue.Record{}, fmt.Errorf("decode %s: %w", rec.ID, err)
		}
	}

	rec.Text = text.String
	rec.HTML = html.String
	rec.Error = lastError.String
	rec.Status = mailqueue.Status(status)
	rec.SendAt = timePtr(sendAt)
	rec.QueuedAt = timePtr(queuedAt)
	rec.SendingAt = timePtr(sendingAt)
	rec.SentAt = timePtr(sentAt)
	rec.DelayedAt = timePtr(delayedAt)
	rec.FailedAt = timePtr(failedAt)
	rec.CanceledAt = timePtr(canceledAt)
	rec.ReadAt = timePtr(readAt)

	return rec, nil
}

// Truncate cuts msg to MaxErrorLen runes.
func Truncate(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorLen {
		return msg
	}

	return string(runes[:MaxErrorLen])
}

// StatusArgs converts statuses to driver values.
func StatusArgs(statuses []mailqueue.Status) []any {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}

	return args
}

func jsonValue(list mailqueue.Addresses) (any, error) {
	if len(list) == 0 {
		return nil, nil
	}

	return marshal(list)
}

// marshal returns JSON text; drivers bind strings to JSON columns without a bytea escape.
func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode column: %w", err)
	}

	return string(data), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()

	return &v
}
