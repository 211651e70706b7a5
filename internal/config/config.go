// Package config loads the mailqueue server configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/velmie/mailqueue"
)

// DefaultTable is the emails table created by the bundled migrations.
const DefaultTable = "emails"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Transport kinds.
const (
	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

// ErrInvalid is returned when the loaded configuration is inconsistent.
var ErrInvalid = errors.New("config: invalid")

// Config holds the server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Mailer    MailerConfig    `yaml:"mailer"`
	Store     StoreConfig     `yaml:"store"`
	Transport TransportConfig `yaml:"transport"`
	Redis     RedisConfig     `yaml:"redis"`
	API       APIConfig       `yaml:"api"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MailerConfig mirrors the mailqueue options. Nil pointers keep the library defaults.
type MailerConfig struct {
	From             string            `yaml:"from"`
	Bcc              []string          `yaml:"bcc"`
	Cc               []string          `yaml:"cc"`
	ReplyTo          []string          `yaml:"reply_to"`
	Headers          map[string]string `yaml:"headers"`
	Async            bool              `yaml:"async"`
	MaxConcurrency   int               `yaml:"max_concurrency"`
	Interval         time.Duration     `yaml:"interval"`
	MaxEmailsPerTask int               `yaml:"max_emails_per_task"`
	MaxSendingTime   time.Duration     `yaml:"max_sending_time"`
	Priority         *int              `yaml:"priority"`
	ProcessOnStart   *bool             `yaml:"process_on_start"`
	Retry            *int              `yaml:"retry"`
	WebHook          string            `yaml:"webhook"`
	BaseURL          string            `yaml:"base_url"`
	SigningKey       string            `yaml:"signing_key"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
	// Migrate creates the schema on start.
	Migrate bool `yaml:"migrate"`
}

// TransportConfig selects how messages leave the process.
type TransportConfig struct {
	Kind string     `yaml:"kind"`
	SMTP SMTPConfig `yaml:"smtp"`
	SES  SESConfig  `yaml:"ses"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	SSL                bool   `yaml:"ssl"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	LocalName          string `yaml:"local_name"`
}

// SESConfig configures Amazon SES.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// RedisConfig enables the event bridge when URL is set.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// APIConfig configures the JSON API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	// AllowedOrigins enables CORS for browser clients.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads the YAML file at path, applies defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads .env when present, then the YAML file, then applies MAILQUEUE_* overrides.
// Validation runs once, after the overrides.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Store.Table == "" {
		c.Store.Table = DefaultTable
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportSMTP
	}
	if c.Transport.SMTP.Port == 0 {
		c.Transport.SMTP.Port = 587
	}
}

// Validate checks backend selections and their required settings.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverMySQL, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for %s", ErrInvalid, c.Store.Driver)
		}
		if c.Store.Driver == DriverPostgres && c.Store.Migrate && c.Store.Table != DefaultTable {
			return fmt.Errorf("%w: postgres migrations only create the %q table", ErrInvalid, DefaultTable)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.Store.Driver)
	}

	switch c.Transport.Kind {
	case TransportSMTP:
		if c.Transport.SMTP.Host == "" {
			return fmt.Errorf("%w: transport.smtp.host is required", ErrInvalid)
		}
	case TransportSES:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport.Kind)
	}

	if u, err := url.Parse(c.Mailer.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: mailer.base_url must be an absolute http(s) url", ErrInvalid)
	}

	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"MAILQUEUE_ADDR":                  &c.Server.Addr,
		"MAILQUEUE_LOG_LEVEL":             &c.Log.Level,
		"MAILQUEUE_FROM":                  &c.Mailer.From,
		"MAILQUEUE_WEBHOOK":               &c.Mailer.WebHook,
		"MAILQUEUE_BASE_URL":              &c.Mailer.BaseURL,
		"MAILQUEUE_SIGNING_KEY":           &c.Mailer.SigningKey,
		"MAILQUEUE_STORE_DRIVER":          &c.Store.Driver,
		"MAILQUEUE_STORE_DSN":             &c.Store.DSN,
		"MAILQUEUE_STORE_TABLE":           &c.Store.Table,
		"MAILQUEUE_TRANSPORT":             &c.Transport.Kind,
		"MAILQUEUE_SMTP_HOST":             &c.Transport.SMTP.Host,
		"MAILQUEUE_SMTP_USERNAME":         &c.Transport.SMTP.Username,
		"MAILQUEUE_SMTP_PASSWORD":         &c.Transport.SMTP.Password,
		"MAILQUEUE_SES_REGION":            &c.Transport.SES.Region,
		"MAILQUEUE_SES_ACCESS_KEY_ID":     &c.Transport.SES.AccessKeyID,
		"MAILQUEUE_SES_SECRET_ACCESS_KEY": &c.Transport.SES.SecretAccessKey,
		"MAILQUEUE_REDIS_URL":             &c.Redis.URL,
		"MAILQUEUE_API_TOKEN":             &c.API.Token,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("MAILQUEUE_SMTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: MAILQUEUE_SMTP_PORT: %w", ErrInvalid, err)
		}
		c.Transport.SMTP.Port = port
	}
	if v, ok := lookup("MAILQUEUE_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: MAILQUEUE_INTERVAL: %w", ErrInvalid, err)
		}
		c.Mailer.Interval = d
	}
	if v, ok := lookup("MAILQUEUE_BCC"); ok && v != "" {
		c.Mailer.Bcc = splitList(v)
	}
	if v, ok := lookup("MAILQUEUE_API_ORIGINS"); ok && v != "" {
		c.API.AllowedOrigins = splitList(v)
	}

	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

// Options converts the mailer section into mailqueue options.
func (m MailerConfig) Options() []mailqueue.Option {
	opts := []mailqueue.Option{
		mailqueue.WithAsync(m.Async),
		mailqueue.WithMaxConcurrency(m.MaxConcurrency),
		mailqueue.WithMaxEmailsPerTask(m.MaxEmailsPerTask),
	}
	if m.From != "" {
		opts = append(opts, mailqueue.WithFrom(m.From))
	}
	if len(m.Bcc) > 0 {
		opts = append(opts, mailqueue.WithBcc(m.Bcc...))
	}
	if len(m.Cc) > 0 {
		opts = append(opts, mailqueue.WithCc(m.Cc...))
	}
	if len(m.ReplyTo) > 0 {
		opts = append(opts, mailqueue.WithReplyTo(m.ReplyTo...))
	}
	if len(m.Headers) > 0 {
		opts = append(opts, mailqueue.WithHeaders(m.Headers))
	}
	if m.Interval > 0 {
		opts = append(opts, mailqueue.WithInterval(m.Interval))
	}
	if m.MaxSendingTime > 0 {
		opts = append(opts, mailqueue.WithMaxSendingTime(m.MaxSendingTime))
	}
	if m.Priority != nil {
		opts = append(opts, mailqueue.WithPriority(*m.Priority))
	}
	if m.ProcessOnStart != nil {
		opts = append(opts, mailqueue.WithProcessOnStart(*m.ProcessOnStart))
	}
	if m.Retry != nil {
		opts = append(opts, mailqueue.WithRetry(*m.Retry))
	}
	if m.WebHook != "" {
		opts = append(opts, mailqueue.WithWebHook(m.WebHook))
	}
	if m.BaseURL != "" {
		opts = append(opts, mailqueue.WithBaseURL(m.BaseURL))
	}
	if m.SigningKey != "" {
		opts = append(opts, mailqueue.WithSigningKey([]byte(m.SigningKey)))
	}

	return opts
}
