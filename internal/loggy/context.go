package loggy

import (
	"context"
	"fmt"

	"github.com/tildaslashalef/notesync/internal/ulid"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	passIDKey contextKey = "pass_id"
)

// FromContext retrieves the logger from the context
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return globalLogger
	}

	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}

	return globalLogger
}

// WithLogger returns a new context with the logger attached
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// GetPassID retrieves the sync pass ID from the context
func GetPassID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	if id, ok := ctx.Value(passIDKey).(string); ok {
		return id
	}

	return ""
}

// WithPassID returns a new context carrying passID and a logger tagged with it
func WithPassID(ctx context.Context, logger *Logger, passID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, passIDKey, passID)
	if logger != nil {
		ctx = WithLogger(ctx, logger.With("pass_id", passID))
	}
	return ctx
}

// NewPassID generates a new pass ID using ULID
func NewPassID() string {
	return ulid.PassID()
}

// Fields represents a collection of log fields
type Fields map[string]interface{}

// AddToContext adds fields to a logger in the context and returns the new context
func AddToContext(ctx context.Context, fields Fields) context.Context {
	logger := FromContext(ctx)
	if logger == nil {
		return ctx
	}

	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return WithLogger(ctx, logger.With(args...))
}

// WithError adds error details to a logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	return l.With(
		"error", err.Error(),
		"error_type", fmt.Sprintf("%T", err),
	)
}
