package mimemsg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/mailqueue"
)

func TestRenderAlternativeWithAttachment(t *testing.T) {
	raw, err := Render(&mailqueue.Message{
		From:    "Sender <sender@example.com>",
		To:      []string{"a@example.com"},
		Cc:      []string{"c@example.com"},
		Bcc:     []string{"hidden@example.com"},
		ReplyTo: []string{"reply@example.com"},
		Subject: "Spring sale",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
		Headers: map[string]string{"X-Campaign": "spring"},
		Attachments: []mailqueue.Attachment{
			{Filename: "report.csv", ContentType: "text/csv", Content: []byte("a,b\n1,2\n")},
		},
	})
	require.NoError(t, err)

	out := string(raw)
	assert.Contains(t, out, `From: "Sender" <sender@example.com>`)
	assert.Contains(t, out, "To: a@example.com")
	assert.Contains(t, out, "Cc: c@example.com")
	assert.Contains(t, out, "Reply-To: reply@example.com")
	assert.Contains(t, out, "Subject: Spring sale")
	assert.Contains(t, out, "X-Campaign: spring")
	assert.Contains(t, out, "multipart/alternative")
	assert.Contains(t, out, "plain body")
	assert.Contains(t, out, "<p>html body</p>")
	assert.Contains(t, out, `filename="report.csv"`)
	assert.Contains(t, out, "text/csv")
	assert.NotContains(t, out, "hidden@example.com")
}

func TestRenderSingleBody(t *testing.T) {
	raw, err := Render(&mailqueue.Message{
		From: "sender@example.com",
		To:   []string{"a@example.com"},
		HTML: "<b>only html</b>",
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Content-Type: text/html")
	assert.False(t, strings.Contains(string(raw), "multipart/alternative"))
}

func TestBuildRejectsInvalidAddress(t *testing.T) {
	_, err := Build(&mailqueue.Message{From: "sender@example.com", To: []string{"not an address"}, Text: "x"})
	require.ErrorIs(t, err, mailqueue.ErrInvalidAddress)
}

func TestRecipients(t *testing.T) {
	got := Recipients(&mailqueue.Message{
		To:  []string{"a@example.com"},
		Cc:  []string{"b@example.com"},
		Bcc: []string{"c@example.com"},
	})
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, got)
}
