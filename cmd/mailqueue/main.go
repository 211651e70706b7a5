// Command mailqueue runs the email queue together with its read-tracking endpoint.
//
// Configuration is read from an optional YAML file and MAILQUEUE_* environment
// variables (a .env file in the working directory is loaded first).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/velmie/mailqueue"
	"github.com/velmie/mailqueue/internal/config"
	"github.com/velmie/mailqueue/internal/logging"
	"github.com/velmie/mailqueue/internal/stats"
)

const exitUsage = 2

const readHeaderTimeout = 10 * time.Second

func main() {
	var (
		configPath  string
		migrateOnly bool
	)

	flag.StringVar(&configPath, "config", "", "path to a YAML configuration file")
	flag.BoolVar(&migrateOnly, "migrate-only", false, "apply the store schema and exit")
	flag.Parse()

	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(exitUsage)
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Print(err)
		os.Exit(exitUsage)
	}
	if migrateOnly {
		cfg.Store.Migrate = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, migrateOnly); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, migrateOnly bool) error {
	logger, err := logging.New(os.Stdout, cfg.Log.Level)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close store failed", "err", err)
		}
	}()
	if migrateOnly {
		return nil
	}

	transport, err := newTransport(ctx, cfg.Transport, logger)
	if err != nil {
		return err
	}

	metrics := stats.New()
	metrics.Publish("mailqueue")

	opts := append(cfg.Mailer.Options(), mailqueue.WithLogger(logger), mailqueue.WithMetrics(metrics))
	mailer, err := mailqueue.New(store, transport, opts...)
	if err != nil {
		return fmt.Errorf("create mailer: %w", err)
	}

	closeEvents, err := attachEvents(ctx, cfg.Redis, mailer.Hub(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEvents(); err != nil {
			logger.Warn("close redis failed", "err", err)
		}
	}()

	if err := mailer.Start(ctx); err != nil {
		return fmt.Errorf("start mailer: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(mailer, cfg.API, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
		if err := mailer.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop mailer: %w", err))
		}
		logger.Info("stopped")

		return errors.Join(errs...)
	})

	return g.Wait()
}
