package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Config holds the configuration of the logger.
type Config struct {
	Level  slog.Level
	Format string
}

type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyChatID    contextKey = "chat_id"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// New creates a logger writing JSON in production and colored text otherwise.
func New(config Config) *Logger {
	if config.Format == "json" {
		opts := &slog.HandlerOptions{
			Level: config.Level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String(a.Key, a.Value.Time().UTC().Format(time.RFC3339))
				}
				return a
			},
		}
		return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stdout, opts))}
	}

	return &Logger{Logger: slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      config.Level,
		TimeFormat: time.Kitchen,
	}))}
}

// FromConfig maps the textual level/format settings to a Config.
func FromConfig(logLevel, logFormat string, production bool) Config {
	config := Config{Level: slog.LevelInfo, Format: "text"}

	switch logLevel {
	case "debug":
		config.Level = slog.LevelDebug
	case "warn":
		config.Level = slog.LevelWarn
	case "error":
		config.Level = slog.LevelError
	}

	if logFormat != "" {
		config.Format = logFormat
	}
	if production {
		config.Format = "json"
	}
	return config
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithContext adds the request-scoped attributes found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	lg := l.Logger

	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok && v != "" {
		lg = lg.With(slog.String("request_id", v))
	}
	if v, ok := ctx.Value(ContextKeyUserID).(string); ok && v != "" {
		lg = lg.With(slog.String("user_id", v))
	}
	if v, ok := ctx.Value(ContextKeyChatID).(string); ok && v != "" {
		lg = lg.With(slog.String("chat_id", v))
	}
	return &Logger{Logger: lg}
}

// WithComponent creates a new logger with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(slog.String("component", component))}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ContextKeyChatID, chatID)
}
