// Package logger provides structured logging for the infrastructure
// processor, built on log/slog with tint for human-readable output.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with domain-specific helpers while staying thin.
type Logger struct {
	*slog.Logger
	config Config
}

// Level represents the logging level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents the log output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds configuration for the logger.
type Config struct {
	Level      Level  `mapstructure:"level"`
	Format     Format `mapstructure:"format"`
	AddSource  bool   `mapstructure:"add_source"`
	Component  string `mapstructure:"component"`
	TimeFormat string `mapstructure:"time_format"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Component:  "infraweave",
		TimeFormat: time.RFC3339,
	}
}

// New creates a new logger with the provided configuration.
func New(config Config) *Logger {
	level := parseLevel(config.Level)
	handler := newHandler(config, level)

	l := slog.New(handler)
	if config.Component != "" {
		l = l.With(slog.String("component", config.Component))
	}

	return &Logger{Logger: l, config: config}
}

// NewDevelopment creates a logger optimized for development.
func NewDevelopment(component string) *Logger {
	return New(Config{
		Level:      LevelDebug,
		Format:     FormatText,
		AddSource:  true,
		Component:  component,
		TimeFormat: time.Kitchen,
	})
}

// NewProduction creates a logger optimized for production.
func NewProduction(component string) *Logger {
	return New(Config{
		Level:      LevelInfo,
		Format:     FormatJSON,
		Component:  component,
		TimeFormat: time.RFC3339,
	})
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		config: Config{},
	}
}

// With returns a new logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

// WithComponent returns a logger scoped to a sub-component.
func (l *Logger) WithComponent(name string) *Logger {
	cfg := l.config
	cfg.Component = name
	return &Logger{
		Logger: l.Logger.With(slog.String("component", name)),
		config: cfg,
	}
}

// WithNode returns a logger carrying the infrastructure and node ids every
// lifecycle message should be attributable to.
func (l *Logger) WithNode(infraID, nodeID string) *Logger {
	return l.With(
		slog.String("infra_id", infraID),
		slog.String("node_id", nodeID),
	)
}

// ErrorCtx logs an error with the error value as a structured attribute.
func (l *Logger) ErrorCtx(ctx context.Context, msg string, err error, args ...any) {
	attrs := append([]any{slog.String("error", err.Error())}, args...)
	l.Logger.ErrorContext(ctx, msg, attrs...)
}

// Unwrap returns the underlying slog.Logger for direct access.
func (l *Logger) Unwrap() *slog.Logger {
	return l.Logger
}

func parseLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(config Config, level slog.Level) slog.Handler {
	switch config.Format {
	case FormatText:
		return tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: config.TimeFormat,
			AddSource:  config.AddSource,
		})
	default:
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: config.AddSource,
		})
	}
}
