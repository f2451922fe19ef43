// Package app wires configuration, telemetry, the database connection and the model
// registry into an Explainer, and releases them in reverse order on shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"modelgraph/internal/config"
	"modelgraph/internal/explain"
	"modelgraph/internal/logging"
	"modelgraph/internal/model"
	"modelgraph/internal/observability"
)

// App owns the runtime resources of one explain run.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	tracerProvider *observability.TracerProvider

	database string
	db       *sql.DB

	registry  *model.Registry
	explainer *explain.Explainer

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	shutdownOnce sync.Once
}

// Option customizes an App.
type Option func(*App)

// WithDB uses db instead of opening a connection from the configuration. The caller
// keeps ownership of db.
func WithDB(db *sql.DB) Option {
	return func(a *App) {
		a.db = db
	}
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	database, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, database: database}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AttachLoggerProvider hands the OTLP logger provider to the App so Shutdown flushes it.
func (a *App) AttachLoggerProvider(lp *observability.LoggerProvider) {
	if lp == nil {
		return
	}
	a.loggerProvider = lp
	a.cleanup.push("logger provider", func(ctx context.Context) error {
		return lp.Shutdown(ctx, a.logger.Logger)
	})
}

// Init starts tracing, connects to the database and builds the model registry.
// Calling Init twice is an error.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return fmt.Errorf("app already initialized")
	}
	a.initialized = true
	a.stateMu.Unlock()

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tracerProvider != nil {
		a.tracerProvider = tracerProvider
		a.cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	if a.db == nil {
		db, err := connectDB(a.cfg, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		a.cleanup.push("database", func(context.Context) error {
			return db.Close()
		})
	}

	if a.cfg.Database.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Database.ConnectionTimeout)
		defer cancel()
	}
	if err := waitForDatabase(ctx, a.logger, a.db); err != nil {
		return err
	}
	a.logger.Info("connected to database", slog.String("database", a.database))

	registry, err := loadRegistry(ctx, a.cfg, a.logger, a.db, a.database)
	if err != nil {
		return err
	}
	a.registry = registry
	a.explainer = explain.New(registry, a.logger, explain.Options{
		FilterPrefix: a.cfg.Planner.FilterPrefix,
		DefaultLimit: a.cfg.Planner.DefaultLimit,
		MaxJoins:     a.cfg.Planner.MaxJoins,
	})
	return nil
}

// Registry returns the model registry built by Init.
func (a *App) Registry() *model.Registry {
	return a.registry
}

// Explain plans req against the registry built by Init.
func (a *App) Explain(ctx context.Context, req explain.Request) ([]explain.Statement, error) {
	if a.explainer == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return a.explainer.Explain(logging.WithLogger(ctx, a.logger), req)
}
