// Package redisevents republishes mailqueue lifecycle events on a Redis pub/sub channel.
package redisevents

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velmie/mailqueue"
)

const defaultChannel = "mailqueue:events"

// ErrClientRequired is returned when a nil client is provided.
var ErrClientRequired = errors.New("mailqueue redisevents: client is required")

// Publisher is the subset of redis.Cmdable used by the bridge.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Payload is the JSON document published for every event.
type Payload struct {
	Kind  mailqueue.EventKind `json:"kind"`
	ID    string              `json:"id,omitempty"`
	Error string              `json:"error,omitempty"`
	At    time.Time           `json:"at"`
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) Option {
	return func(b *Bridge) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithClock sets the clock used for Payload.At.
func WithClock(clock mailqueue.Clock) Option {
	return func(b *Bridge) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithLogger sets the logger for publish failures.
func WithLogger(logger mailqueue.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithStrict makes publish failures propagate to the emitter instead of being logged.
func WithStrict(strict bool) Option {
	return func(b *Bridge) {
		b.strict = strict
	}
}

// Bridge forwards hub events to Redis.
type Bridge struct {
	client  Publisher
	channel string
	clock   mailqueue.Clock
	logger  mailqueue.Logger
	strict  bool
}

// New creates a bridge publishing through client.
func New(client Publisher, opts ...Option) (*Bridge, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	b := &Bridge{
		client:  client,
		channel: defaultChannel,
		clock:   mailqueue.SystemClock{},
		logger:  mailqueue.NopLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Channel returns the channel events are published on.
func (b *Bridge) Channel() string {
	return b.channel
}

// Attach subscribes the bridge to every event kind of hub.
func (b *Bridge) Attach(hub *mailqueue.Hub) {
	for _, kind := range mailqueue.Kinds() {
		hub.Subscribe(kind, b.Handle)
	}
}

// Handle publishes ev. Failures are logged unless the bridge is strict.
func (b *Bridge) Handle(ctx context.Context, ev mailqueue.Event) error {
	payload := Payload{Kind: ev.Kind, At: b.clock.Now().UTC()}
	if !ev.ID.IsZero() {
		payload.ID = ev.ID.String()
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		if b.strict {
			return err
		}
		b.logger.Warn("mailqueue redis publish failed", "kind", ev.Kind, "id", ev.ID, "err", err)
	}

	return nil
}
