// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pricetracker/internal/blob"
	"pricetracker/internal/config"
	"pricetracker/internal/logging"
	"pricetracker/internal/metrics"
	"pricetracker/internal/notify"
	"pricetracker/internal/storage/postgres"
)

// App holds the shared services for one invocation: logger, store, alert
// publisher and page archive. Initialized once at startup, closed by the
// command hook when the invocation finishes.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *postgres.Store
	publisher notify.Publisher
	archive   blob.Provider
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the Postgres store.
func (a *App) Store() *postgres.Store { return a.store }

// Publisher returns the alert publisher.
func (a *App) Publisher() notify.Publisher { return a.publisher }

// Archive returns the raw page archive provider.
func (a *App) Archive() blob.Provider { return a.archive }

// New builds the App from configuration. It is the central point of service
// initialization and fails fast if any critical service cannot start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	metrics.Init()

	store, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if cfg.Database.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	archive, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		store.Close()
		_ = publisher.Close()
		return nil, err
	}

	logger.Info("application services initialized",
		zap.String("notify_provider", cfg.Notify.Provider),
		zap.String("archive_provider", cfg.Archive.Provider))

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		publisher: publisher,
		archive:   archive,
	}, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Publisher, error) {
	switch cfg.Notify.Provider {
	case "pubsub":
		logger.Info("connecting to pub/sub", zap.String("topic", cfg.Notify.TopicID))
		p, err := notify.NewPubSubPublisher(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicID)
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		return p, nil
	default:
		return &notify.NoOpPublisher{}, nil
	}
}

func buildArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (blob.Provider, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		logger.Info("using gcs page archive", zap.String("bucket", cfg.Archive.GCSBucket))
		p, err := blob.NewGCSProvider(ctx, cfg.Archive.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		return p, nil
	case "local":
		p, err := blob.NewLocalProvider(cfg.Archive.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		return p, nil
	default:
		return &blob.NoOpProvider{}, nil
	}
}

// Close shuts down all services. Called from the command's post-run hook so
// the store connection is released deterministically at the end of a run.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	a.store.Close()
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("error closing publisher", zap.Error(err))
	}
	if err := a.archive.Close(); err != nil {
		a.logger.Warn("error closing archive", zap.Error(err))
	}
	// Best effort: stderr sync failures are expected on some platforms.
	_ = a.logger.Sync()
}
