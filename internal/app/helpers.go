package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"modelgraph/internal/config"
	"modelgraph/internal/introspection"
	"modelgraph/internal/logging"
	"modelgraph/internal/model"
	"modelgraph/internal/naming"
	"modelgraph/internal/observability"
	"modelgraph/internal/schemafilter"
)

// connectRetryInterval is the first pause between ping attempts; it doubles up to
// maxConnectRetryInterval.
var connectRetryInterval = time.Second

const maxConnectRetryInterval = 30 * time.Second

// InitLogger builds the process logger and, when log exports are enabled, an OTLP
// logger provider bridged into it.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		ServiceName: cfg.Observability.ServiceName,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Debug("initializing OpenTelemetry logging",
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     exporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Debug("initializing OpenTelemetry tracing",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	return observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       exporterConfig(tracesConfig),
	})
}

func exporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}

// connectDB opens the MySQL connection. With tracing enabled the driver is wrapped by
// otelsql so introspection queries show up as child spans.
func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, error) {
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, err
	}

	if !cfg.Observability.TracingEnabled {
		return sql.Open("mysql", dsn)
	}

	db, err := otelsql.Open("mysql", dsn,
		otelsql.WithAttributes(semconv.DBSystemMySQL),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	)
	if err != nil {
		return nil, err
	}
	logger.Debug("database instrumentation enabled")
	return db, nil
}

// waitForDatabase pings db until it answers or ctx ends. Without a deadline on ctx it
// tries once.
func waitForDatabase(ctx context.Context, logger *logging.Logger, db *sql.DB) error {
	if _, ok := ctx.Deadline(); !ok {
		return db.PingContext(ctx)
	}

	interval := connectRetryInterval
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not available: %w", err)
		case <-time.After(interval):
		}
		interval = min(interval*2, maxConnectRetryInterval)
	}
}

// loadRegistry introspects database, applies the schema filters and builds one model
// per remaining table.
func loadRegistry(ctx context.Context, cfg *config.Config, logger *logging.Logger, db introspection.Queryer, database string) (*model.Registry, error) {
	namer := naming.New(cfg.Naming, logger.Logger)

	schema, err := introspection.IntrospectDatabaseContext(ctx, db, database, namer)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect database %s: %w", database, err)
	}
	introspected := len(schema.Tables)
	schemafilter.Apply(ctx, schema, cfg.SchemaFilters, namer)

	registry, err := model.FromSchema(schema, namer)
	if err != nil {
		return nil, fmt.Errorf("failed to build model registry: %w", err)
	}

	logger.Info("model registry built",
		slog.Int("tables_introspected", introspected),
		slog.Int("models", len(registry.Models())),
	)
	return registry, nil
}
