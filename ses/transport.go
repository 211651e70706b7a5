// Package ses delivers mailqueue messages as raw MIME through the Amazon SES v2 API.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/velmie/mailqueue"
	"github.com/velmie/mailqueue/internal/mimemsg"
)

const (
	defaultRegion = "us-east-1"
	emailIDTag    = "email_id"
)

// ErrClientRequired is returned when a nil client is provided.
var ErrClientRequired = errors.New("mailqueue ses: client is required")

// API is the subset of *sesv2.Client used by the transport.
type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Config selects the region and credentials of the SES client.
type Config struct {
	Region string
	// AccessKeyID and SecretAccessKey are optional; the default credential chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient loads the AWS configuration and returns an SES v2 client.
func NewClient(ctx context.Context, cfg Config) (*sesv2.Client, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("mailqueue ses: load aws config: %w", err)
	}

	return sesv2.NewFromConfig(awsCfg), nil
}

// Option configures the transport.
type Option func(*Transport)

// WithConfigurationSet sends every message through the named configuration set.
func WithConfigurationSet(name string) Option {
	return func(t *Transport) {
		t.configurationSet = name
	}
}

// WithLogger sets the logger used for accepted messages.
func WithLogger(logger mailqueue.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transport implements mailqueue.Transport.
type Transport struct {
	client           API
	configurationSet string
	logger           mailqueue.Logger
}

var _ mailqueue.Transport = (*Transport)(nil)

// New builds a transport on client.
func New(client API, opts ...Option) (*Transport, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	t := &Transport{client: client, logger: mailqueue.NopLogger{}}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Send renders msg as raw MIME and submits it with every recipient, Bcc included, on the envelope.
func (t *Transport) Send(ctx context.Context, msg *mailqueue.Message) error {
	raw, err := mimemsg.Render(msg)
	if err != nil {
		return err
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String(emailIDTag), Value: aws.String(msg.ID.String())},
		},
	}
	if t.configurationSet != "" {
		in.ConfigurationSetName = aws.String(t.configurationSet)
	}

	out, err := t.client.SendEmail(ctx, in)
	if err != nil {
		return fmt.Errorf("mailqueue ses: send %s: %w", msg.ID, err)
	}
	t.logger.Debug("mailqueue ses accepted", "id", msg.ID, "message_id", aws.ToString(out.MessageId))

	return nil
}
