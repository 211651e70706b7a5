package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/mailqueue"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}

	return &sesv2.SendEmailOutput{MessageId: aws.String("0100018e-abc")}, nil
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrClientRequired)
}

func TestSendRawMessage(t *testing.T) {
	client := &fakeSES{}
	tr, err := New(client, WithConfigurationSet("tracking"))
	require.NoError(t, err)

	id := mailqueue.ID{0x01}
	err = tr.Send(context.Background(), &mailqueue.Message{
		ID:      id,
		From:    "sender@example.com",
		To:      []string{"a@example.com"},
		Bcc:     []string{"hidden@example.com"},
		Subject: "hi",
		HTML:    "<p>hello</p>",
	})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "sender@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"a@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"hidden@example.com"}, in.Destination.BccAddresses)
	assert.Equal(t, "tracking", aws.ToString(in.ConfigurationSetName))
	require.Len(t, in.EmailTags, 1)
	assert.Equal(t, id.String(), aws.ToString(in.EmailTags[0].Value))

	require.NotNil(t, in.Content.Raw)
	raw := string(in.Content.Raw.Data)
	assert.Contains(t, raw, "Subject: hi")
	assert.Contains(t, raw, "<p>hello</p>")
	assert.NotContains(t, raw, "hidden@example.com")
}

func TestSendWrapsAPIError(t *testing.T) {
	apiErr := errors.New("MessageRejected: Email address is not verified")
	tr, err := New(&fakeSES{err: apiErr})
	require.NoError(t, err)

	err = tr.Send(context.Background(), &mailqueue.Message{
		From: "sender@example.com",
		To:   []string{"a@example.com"},
		Text: "x",
	})
	require.ErrorIs(t, err, apiErr)
}
