package loggy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *Logger
	globalCloser io.Closer
	once         sync.Once
)

// Config configures the logger
type Config struct {
	Level       slog.Level
	Format      string                                       // "json" or "text"
	Output      string                                       // "stdout", "stderr", or a file path
	AddSource   bool                                         // Include source code position in logs
	TimeFormat  string                                       // Time format for logs (empty uses RFC3339)
	MaxSizeMB   int                                          // Rotate file output after this many megabytes
	MaxBackups  int                                          // Rotated files kept next to the log file
	ReplaceAttr func(groups []string, a slog.Attr) slog.Attr // Custom attribute replacer
}

// DefaultConfig returns a default configuration for the logger
func DefaultConfig() Config {
	return Config{
		Level:      slog.LevelInfo,
		Format:     "text",
		Output:     "stderr",
		AddSource:  false,
		TimeFormat: time.RFC3339,
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

// Logger wraps slog.Logger with additional context
type Logger struct {
	slogger   *slog.Logger
	addSource bool
}

// Init initializes the global logger
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		var output io.Writer
		switch cfg.Output {
		case "stdout":
			output = os.Stdout
		case "stderr":
			output = os.Stderr
		default:
			// Treat as file path, rotated by size
			dir := filepath.Dir(cfg.Output)
			if err = os.MkdirAll(dir, 0755); err != nil {
				err = fmt.Errorf("failed to create log directory: %w", err)
				return
			}

			rotator := &lumberjack.Logger{
				Filename:   cfg.Output,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
			}
			output = rotator
			globalCloser = rotator
		}

		globalLogger = New(output, cfg)
	})

	// If there was an error initializing, create a noop logger as fallback
	if err != nil {
		NewNoopLogger()
	}

	return err
}

// New builds a Logger writing to w without touching the global logger
func New(w io.Writer, cfg Config) *Logger {
	handlerOpts := &slog.HandlerOptions{
		Level:       cfg.Level,
		ReplaceAttr: cfg.ReplaceAttr,
	}

	if cfg.TimeFormat != "" {
		originalReplaceAttr := handlerOpts.ReplaceAttr
		handlerOpts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format(cfg.TimeFormat))
				}
			}
			if originalReplaceAttr != nil {
				return originalReplaceAttr(groups, a)
			}
			return a
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return &Logger{
		slogger:   slog.New(handler),
		addSource: cfg.AddSource,
	}
}

// Close flushes and closes a file output opened by Init
func Close() error {
	if globalCloser == nil {
		return nil
	}
	return globalCloser.Close()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalLogger = logger
}

// NewNoopLogger creates and sets a logger that discards all output, useful for testing
func NewNoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	})
	noopLogger := &Logger{
		slogger: slog.New(handler),
	}

	SetGlobalLogger(noopLogger)

	return noopLogger
}

// getCaller returns the source file and line number of the caller,
// skipping a specified number of frames to identify the actual calling code
func getCaller(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown", 0
	}
	return file, line
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	if globalLogger != nil {
		file, line := getCaller(2) // Skip 2 frames: this function and runtime.Caller
		globalLogger.logWithSource(slog.LevelDebug, file, line, msg, args...)
	}
}

// Info logs at info level
func Info(msg string, args ...any) {
	if globalLogger != nil {
		file, line := getCaller(2)
		globalLogger.logWithSource(slog.LevelInfo, file, line, msg, args...)
	}
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	if globalLogger != nil {
		file, line := getCaller(2)
		globalLogger.logWithSource(slog.LevelWarn, file, line, msg, args...)
	}
}

// Error logs at error level
func Error(msg string, args ...any) {
	if globalLogger != nil {
		file, line := getCaller(2)
		globalLogger.logWithSource(slog.LevelError, file, line, msg, args...)
	}
}

// logWithSource adds source information and logs the message
func (l *Logger) logWithSource(level slog.Level, file string, line int, msg string, args ...any) {
	if l == nil || l.slogger == nil {
		return
	}

	ctx := context.Background()
	handler := l.slogger.Handler()
	if !handler.Enabled(ctx, level) {
		return
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	if l.addSource {
		r.AddAttrs(slog.String("source", fmt.Sprintf("%s:%d", file, line)))
	}
	r.Add(args...)

	_ = handler.Handle(ctx, r)
}

// With returns a new Logger with the given attributes
func With(args ...any) *Logger {
	if globalLogger == nil {
		return nil
	}
	return globalLogger.With(args...)
}

// Logger instance methods
func (l *Logger) Debug(msg string, args ...any) {
	if l != nil && l.slogger != nil {
		file, line := getCaller(2)
		l.logWithSource(slog.LevelDebug, file, line, msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...any) {
	if l != nil && l.slogger != nil {
		file, line := getCaller(2)
		l.logWithSource(slog.LevelInfo, file, line, msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...any) {
	if l != nil && l.slogger != nil {
		file, line := getCaller(2)
		l.logWithSource(slog.LevelWarn, file, line, msg, args...)
	}
}

func (l *Logger) Error(msg string, args ...any) {
	if l != nil && l.slogger != nil {
		file, line := getCaller(2)
		l.logWithSource(slog.LevelError, file, line, msg, args...)
	}
}

func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.slogger == nil {
		return l
	}
	return &Logger{
		slogger:   l.slogger.With(args...),
		addSource: l.addSource,
	}
}

func (l *Logger) WithGroup(name string) *Logger {
	if l == nil || l.slogger == nil {
		return l
	}
	return &Logger{
		slogger:   l.slogger.WithGroup(name),
		addSource: l.addSource,
	}
}

// Handler returns the underlying slog.Handler
func (l *Logger) Handler() slog.Handler {
	return l.slogger.Handler()
}
