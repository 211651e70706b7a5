package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/velmie/mailqueue"
	"github.com/velmie/mailqueue/api"
	"github.com/velmie/mailqueue/internal/config"
	"github.com/velmie/mailqueue/memstore"
	"github.com/velmie/mailqueue/mysql"
	"github.com/velmie/mailqueue/postgres"
	"github.com/velmie/mailqueue/redisevents"
	"github.com/velmie/mailqueue/ses"
	"github.com/velmie/mailqueue/smtp"
	"github.com/velmie/mailqueue/webhook"
)

const pingTimeout = 5 * time.Second

func noop() error { return nil }

// openStore returns the configured store and a function releasing its connections.
func openStore(ctx context.Context, cfg config.StoreConfig, logger mailqueue.Logger) (mailqueue.Store, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, emails are lost on restart")

		return memstore.New(), noop, nil
	case config.DriverMySQL:
		db, err := openDB(ctx, "mysql", cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Migrate {
			ddl, err := mysql.Schema(cfg.Table)
			if err != nil {
				return nil, nil, closeWith(db, err)
			}
			if _, err := db.ExecContext(ctx, ddl); err != nil {
				return nil, nil, closeWith(db, fmt.Errorf("apply schema: %w", err))
			}
			logger.Info("schema applied", "table", cfg.Table)
		}
		store, err := mysql.NewStore(db, mysql.WithTable(cfg.Table))
		if err != nil {
			return nil, nil, closeWith(db, err)
		}

		return store, db.Close, nil
	case config.DriverPostgres:
		if cfg.Migrate {
			applied, err := postgres.Migrate(cfg.DSN)
			if err != nil {
				return nil, nil, err
			}
			logger.Info("migrations checked", "applied", applied)
		}
		db, err := openDB(ctx, "postgres", cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := postgres.NewStore(db, postgres.WithTable(cfg.Table))
		if err != nil {
			return nil, nil, closeWith(db, err)
		}

		return store, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalid, cfg.Driver)
	}
}

func openDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, closeWith(db, fmt.Errorf("ping db: %w", err))
	}

	return db, nil
}

func closeWith(db *sql.DB, err error) error {
	_ = db.Close()

	return err
}

// newTransport builds the SMTP or SES transport.
func newTransport(ctx context.Context, cfg config.TransportConfig, logger mailqueue.Logger) (mailqueue.Transport, error) {
	switch cfg.Kind {
	case config.TransportSMTP:
		t, err := smtp.New(smtp.Config{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			SSL:                cfg.SMTP.SSL,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			LocalName:          cfg.SMTP.LocalName,
		})
		if err != nil {
			return nil, err
		}

		return t, nil
	case config.TransportSES:
		client, err := ses.NewClient(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		t, err := ses.New(client, ses.WithConfigurationSet(cfg.SES.ConfigurationSet), ses.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		return t, nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalid, cfg.Kind)
	}
}

// attachEvents publishes hub events to Redis when a URL is configured.
func attachEvents(ctx context.Context, cfg config.RedisConfig, hub *mailqueue.Hub, logger mailqueue.Logger) (func() error, error) {
	if cfg.URL == "" {
		return noop, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	bridge, err := redisevents.New(client,
		redisevents.WithChannel(cfg.Channel),
		redisevents.WithLogger(logger),
	)
	if err != nil {
		_ = client.Close()

		return nil, err
	}
	bridge.Attach(hub)
	logger.Info("publishing events to redis", "channel", bridge.Channel())

	return client.Close, nil
}

// newRouter mounts the read endpoint, the optional JSON API and the expvar counters.
func newRouter(mailer *mailqueue.Mailer, cfg config.APIConfig, logger mailqueue.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	hooks := webhook.New(mailer, webhook.WithLogger(logger))
	r.Get(hooks.ReadPattern(), hooks.HandleRead)

	if cfg.Enabled {
		api.NewHandler(mailer,
			api.WithToken(cfg.Token),
			api.WithAllowedOrigins(cfg.AllowedOrigins...),
			api.WithLogger(logger),
		).Routes(r)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/debug/vars", expvar.Handler())

	return r
}
