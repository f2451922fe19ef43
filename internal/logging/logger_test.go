package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_JSONWithRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf}).
		WithRunID("run-1").
		WithFields(slog.String("table", "users"))

	logger.Debug("hidden")
	logger.Info("introspected")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "introspected", record["msg"])
	assert.Equal(t, "run-1", record["run_id"])
	assert.Equal(t, "users", record["table"])
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Config{Level: "debug", Output: &buf}).Debug("planned", slog.Int("joins", 2))
	assert.Contains(t, buf.String(), "msg=planned")
	assert.Contains(t, buf.String(), "joins=2")
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	handler := newMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(handler).With("k", "v")

	logger.Info("one")
	logger.Error("two")

	assert.Contains(t, a.String(), "one")
	assert.Contains(t, a.String(), "two")
	assert.NotContains(t, b.String(), "one")
	assert.Contains(t, b.String(), "k=v")
	assert.True(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx))
	assert.Equal(t, "", GetRunID(ctx))

	logger := Nop()
	ctx = WithLogger(ctx, logger)
	ctx = WithRunIDContext(ctx, "abc")
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, "abc", GetRunID(ctx))
}
