package loggy

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: slog.LevelInfo, Format: "text"})

	logger.Debug("hidden")
	logger.Info("visible", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "key=value")
	assert.NotContains(t, out, "source=")
}

func TestLoggerAddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: slog.LevelDebug, Format: "json", AddSource: true})

	logger.With("component", "test").Warn("with source")

	out := buf.String()
	assert.Contains(t, out, `"source":`)
	assert.Contains(t, out, "loggy_test.go")
	assert.Contains(t, out, `"component":"test"`)
}

func TestWithPassID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: slog.LevelInfo, Format: "text"})

	ctx := WithPassID(context.Background(), logger, "pass_123")
	assert.Equal(t, "pass_123", GetPassID(ctx))

	FromContext(ctx).Info("in pass")
	assert.Contains(t, buf.String(), "pass_id=pass_123")

	assert.Empty(t, GetPassID(context.Background()))
}

func TestAddToContextAndWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: slog.LevelInfo, Format: "text"})

	ctx := AddToContext(WithLogger(context.Background(), logger), Fields{"direction": "export"})
	FromContext(ctx).WithError(errors.New("boom")).Error("failed")

	out := buf.String()
	assert.Contains(t, out, "direction=export")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "error_type=*errors.errorString")
}
