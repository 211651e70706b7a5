package postgres

import "github.com/velmie/mailqueue"

const defaultTable = "emails"

// Config defines PostgreSQL store behavior.
type Config struct {
	// Table is the emails table, optionally schema qualified. Migrate only creates "emails".
	Table string
	// Generator creates ids for records inserted without one.
	Generator mailqueue.IDGenerator
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Generator == nil {
		c.Generator = mailqueue.UUIDv7Generator{}
	}

	return c
}

// Option configures the PostgreSQL store.
type Option func(*Config)

// WithTable sets the emails table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithGenerator sets the id generator.
func WithGenerator(gen mailqueue.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}
