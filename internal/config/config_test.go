package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		prefix   string
		contains []string
	}{
		{
			name: "discrete fields",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Password: "password",
				Database: "test",
			},
			prefix:   "root:password@tcp(localhost:3306)/test?",
			contains: []string{"parseTime=true"},
		},
		{
			name: "special characters in password",
			config: DatabaseConfig{
				Host:     "db.example.com",
				Port:     3306,
				User:     "admin",
				Password: "p@ss:w0rd!",
				Database: "mydb",
			},
			prefix: "admin:p@ss:w0rd!@tcp(db.example.com:3306)/mydb?",
		},
		{
			name: "tls and timeout",
			config: DatabaseConfig{
				Host:              "localhost",
				Port:              3306,
				User:              "root",
				Database:          "test",
				TLSMode:           "skip-verify",
				ConnectionTimeout: 5 * time.Second,
			},
			prefix:   "root@tcp(localhost:3306)/test?",
			contains: []string{"tls=skip-verify", "timeout=5s"},
		},
		{
			name: "connection string wins over discrete fields",
			config: DatabaseConfig{
				ConnectionString: "app:secret@tcp(db:4000)/shop",
				Host:             "ignored",
				Port:             1,
			},
			prefix:   "app:secret@tcp(db:4000)/shop?",
			contains: []string{"parseTime=true"},
		},
		{
			name: "database overrides connection string schema",
			config: DatabaseConfig{
				ConnectionString: "app:secret@tcp(db:4000)/shop",
				Database:         "blog",
			},
			prefix: "app:secret@tcp(db:4000)/blog?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := tt.config.DSN()
			require.NoError(t, err)
			assert.Contains(t, dsn, tt.prefix)
			for _, part := range tt.contains {
				assert.Contains(t, dsn, part)
			}
		})
	}
}

func TestDatabaseConfig_DSNInvalid(t *testing.T) {
	cfg := DatabaseConfig{ConnectionString: "not a dsn"}
	_, err := cfg.DSN()
	assert.ErrorContains(t, err, "database.dsn is invalid")
}

func TestDatabaseConfig_EffectiveDatabaseName(t *testing.T) {
	name, err := (&DatabaseConfig{Database: " blog "}).EffectiveDatabaseName()
	require.NoError(t, err)
	assert.Equal(t, "blog", name)

	name, err = (&DatabaseConfig{ConnectionString: "u:p@tcp(h:1)/shop"}).EffectiveDatabaseName()
	require.NoError(t, err)
	assert.Equal(t, "shop", name)

	_, err = (&DatabaseConfig{ConnectionString: "u:p@tcp(h:1)/"}).EffectiveDatabaseName()
	assert.ErrorContains(t, err, "no database configured")
}

func TestMergeOTLPConfigs(t *testing.T) {
	base := OTLPConfig{
		Endpoint:         "collector:4317",
		Protocol:         "grpc",
		Insecure:         true,
		Headers:          map[string]string{"a": "1"},
		Timeout:          10 * time.Second,
		Compression:      "gzip",
		RetryEnabled:     true,
		RetryMaxAttempts: 5,
	}
	obs := ObservabilityConfig{
		OTLP: base,
		Traces: &OTLPConfig{
			Endpoint: "traces:4318",
			Protocol: "http/protobuf",
			Headers:  map[string]string{"b": "2"},
		},
	}

	traces := obs.GetTracesConfig()
	assert.Equal(t, "traces:4318", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.False(t, traces.Insecure)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, traces.Headers)
	assert.Equal(t, 10*time.Second, traces.Timeout)
	assert.Equal(t, "gzip", traces.Compression)
	assert.Equal(t, 5, traces.RetryMaxAttempts)

	assert.Equal(t, base, obs.GetLogsConfig())
	assert.Equal(t, map[string]string{"a": "1"}, base.Headers)
}

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Database: "blog",
		},
		Planner: PlannerConfig{
			FilterPrefix: "where__",
			DefaultLimit: 100,
			MaxJoins:     16,
		},
		Observability: ObservabilityConfig{
			TraceSampleRatio: 1,
			Logging:          LoggingConfig{Level: "info", Format: "text"},
			OTLP:             OTLPConfig{Protocol: "grpc", Compression: "gzip"},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config passes validation", func(t *testing.T) {
		result := validConfig().Validate()
		assert.False(t, result.HasErrors(), result.Error())
		assert.Empty(t, result.Error())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"invalid database port", func(c *Config) { c.Database.Port = 0 }, "database.port"},
		{"invalid database port high", func(c *Config) { c.Database.Port = 70000 }, "database.port"},
		{"missing host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing database", func(c *Config) { c.Database.Database = "" }, "database.database"},
		{"invalid dsn", func(c *Config) { c.Database.ConnectionString = "garbage" }, "database.dsn"},
		{"invalid TLS mode", func(c *Config) { c.Database.TLSMode = "verify-full" }, "database.tls_mode"},
		{"negative timeout", func(c *Config) { c.Database.ConnectionTimeout = -time.Second }, "database.connection_timeout"},
		{"empty filter prefix", func(c *Config) { c.Planner.FilterPrefix = "" }, "planner.filter_prefix"},
		{"negative default limit", func(c *Config) { c.Planner.DefaultLimit = -1 }, "planner.default_limit"},
		{"negative max joins", func(c *Config) { c.Planner.MaxJoins = -1 }, "planner.max_joins"},
		{"invalid log level", func(c *Config) { c.Observability.Logging.Level = "trace" }, "observability.logging.level"},
		{"invalid log format", func(c *Config) { c.Observability.Logging.Format = "xml" }, "observability.logging.format"},
		{"invalid sample ratio", func(c *Config) { c.Observability.TraceSampleRatio = 1.5 }, "observability.trace_sample_ratio"},
		{"invalid OTLP protocol", func(c *Config) { c.Observability.OTLP.Protocol = "udp" }, "observability.otlp.protocol"},
		{"invalid OTLP http endpoint", func(c *Config) {
			c.Observability.OTLP.Protocol = "http/protobuf"
			c.Observability.OTLP.Endpoint = "no-port"
		}, "observability.otlp.endpoint"},
		{"invalid traces compression", func(c *Config) {
			c.Observability.Traces = &OTLPConfig{Compression: "zstd"}
		}, "observability.traces.compression"},
		{"invalid table glob", func(c *Config) { c.SchemaFilters.DenyTables = []string{"[abc"} }, "schema_filters.deny_tables"},
		{"empty column pattern", func(c *Config) {
			c.SchemaFilters.DenyColumns = map[string][]string{"users": {" "}}
		}, "schema_filters.deny_columns"},
		{"empty plural override", func(c *Config) {
			c.Naming.PluralOverrides = map[string]string{"person": ""}
		}, "naming.plural_overrides"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := cfg.Validate()
			require.True(t, result.HasErrors())
			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	t.Run("valid OTLP http endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTLP.Protocol = "http/protobuf"
		cfg.Observability.OTLP.Endpoint = "https://collector.example.com"
		assert.False(t, cfg.Validate().HasErrors())
	})

	t.Run("filter prefix without delimiter warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Planner.FilterPrefix = "f_"
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "planner.filter_prefix", result.Warnings[0].Field)
	})

	t.Run("error message carries hint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 0
		assert.Contains(t, cfg.Validate().Error(), "hint: port must be between 1 and 65535")
	})
}
