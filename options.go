package mailqueue

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultInterval       = time.Minute
	defaultMaxSendingTime = 10 * time.Second
	defaultPriority       = 2
	defaultRetry          = 1
	defaultWebHook        = "mailer"
)

// Config defines how the Mailer queues, schedules and tracks emails.
type Config struct {
	// From, Bcc, Cc, ReplyTo and Headers are applied to emails that leave them unset.
	From    string
	Bcc     Addresses
	Cc      Addresses
	ReplyTo Addresses
	Headers map[string]string
	// Async dispatches the records of a drain cycle concurrently.
	Async bool
	// MaxConcurrency caps concurrent dispatches when Async is set, zero means unbounded.
	MaxConcurrency int
	// Interval is the drain period.
	Interval time.Duration
	// MaxEmailsPerTask caps the drain snapshot, zero means unbounded.
	MaxEmailsPerTask int
	// MaxSendingTime is how long an attempt may stay SENDING before recovery reclaims it.
	// It is also the recovery period.
	MaxSendingTime time.Duration
	// Priority is the default priority.
	Priority int
	// ProcessOnStart runs one drain cycle when the scheduler starts.
	ProcessOnStart bool
	// Retry is the error count at which an email stops being selected.
	Retry int
	// WebHook is the path prefix of the tracking endpoint.
	WebHook string
	// BaseURL is the absolute http(s) root prepended to tracking paths. It is required.
	BaseURL string
	// SigningKey enables signed tracking URLs when non-empty.
	SigningKey []byte
	Clock      Clock
	Logger     Logger
	Metrics    Metrics
	Hub        *Hub

	processOnStartSet bool
	retrySet          bool
	prioritySet       bool
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.MaxSendingTime <= 0 {
		c.MaxSendingTime = defaultMaxSendingTime
	}
	if !c.prioritySet {
		c.Priority = defaultPriority
	}
	if !c.retrySet {
		c.Retry = defaultRetry
	}
	if !c.processOnStartSet {
		c.ProcessOnStart = true
	}
	if c.WebHook == "" {
		c.WebHook = defaultWebHook
	}
	c.WebHook = strings.Trim(c.WebHook, "/")
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Hub == nil {
		c.Hub = NewHub()
	}

	return c
}

func (c Config) validate() error {
	switch {
	case c.MaxEmailsPerTask < 0:
		return fmt.Errorf("%w: max emails per task must be non-negative", ErrInvalidConfig)
	case c.MaxConcurrency < 0:
		return fmt.Errorf("%w: max concurrency must be non-negative", ErrInvalidConfig)
	case c.Priority < 0:
		return fmt.Errorf("%w: priority must be non-negative", ErrInvalidConfig)
	case c.Retry < 0:
		return fmt.Errorf("%w: retry must be non-negative", ErrInvalidConfig)
	case !absoluteHTTP(c.BaseURL):
		return fmt.Errorf("%w: base url %q must be an absolute http(s) url", ErrInvalidConfig, c.BaseURL)
	}

	return nil
}

// absoluteHTTP reports whether raw is an http or https URL with a host.
func absoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Option configures Mailer behavior.
type Option func(*Config)

// WithFrom sets the default sender.
func WithFrom(from string) Option {
	return func(c *Config) {
		c.From = from
	}
}

// WithBcc sets the default Bcc addresses.
func WithBcc(addrs ...string) Option {
	return func(c *Config) {
		c.Bcc = addrs
	}
}

// WithCc sets the default Cc addresses.
func WithCc(addrs ...string) Option {
	return func(c *Config) {
		c.Cc = addrs
	}
}

// WithReplyTo sets the default Reply-To addresses.
func WithReplyTo(addrs ...string) Option {
	return func(c *Config) {
		c.ReplyTo = addrs
	}
}

// WithHeaders sets the default headers.
func WithHeaders(headers map[string]string) Option {
	return func(c *Config) {
		c.Headers = headers
	}
}

// WithAsync enables concurrent dispatch within a drain cycle.
func WithAsync(enabled bool) Option {
	return func(c *Config) {
		c.Async = enabled
	}
}

// WithMaxConcurrency caps concurrent dispatches when async is enabled.
func WithMaxConcurrency(n int) Option {
	return func(c *Config) {
		c.MaxConcurrency = n
	}
}

// WithInterval sets the drain period.
func WithInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.Interval = interval
	}
}

// WithMaxEmailsPerTask caps the number of emails dispatched per drain cycle.
func WithMaxEmailsPerTask(n int) Option {
	return func(c *Config) {
		c.MaxEmailsPerTask = n
	}
}

// WithMaxSendingTime sets the deadline after which SENDING emails are reclaimed.
func WithMaxSendingTime(d time.Duration) Option {
	return func(c *Config) {
		c.MaxSendingTime = d
	}
}

// WithPriority sets the default priority.
func WithPriority(priority int) Option {
	return func(c *Config) {
		c.Priority = priority
		c.prioritySet = true
	}
}

// WithProcessOnStart enables or disables the drain cycle run by Start.
func WithProcessOnStart(enabled bool) Option {
	return func(c *Config) {
		c.ProcessOnStart = enabled
		c.processOnStartSet = true
	}
}

// WithRetry sets the error count at which emails stop being selected.
func WithRetry(retry int) Option {
	return func(c *Config) {
		c.Retry = retry
		c.retrySet = true
	}
}

// WithWebHook sets the tracking endpoint path prefix.
func WithWebHook(path string) Option {
	return func(c *Config) {
		c.WebHook = path
	}
}

// WithBaseURL sets the absolute root of tracking URLs, e.g. https://example.com.
func WithBaseURL(base string) Option {
	return func(c *Config) {
		c.BaseURL = base
	}
}

// WithSigningKey enables HMAC signatures on tracking URLs.
func WithSigningKey(key []byte) Option {
	return func(c *Config) {
		c.SigningKey = key
	}
}

// WithClock sets the mailer clock.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the mailer logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the mailer metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithHub shares an existing event hub.
func WithHub(hub *Hub) Option {
	return func(c *Config) {
		c.Hub = hub
	}
}
