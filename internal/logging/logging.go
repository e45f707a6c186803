// Package logging configures the process logger and carries a
// request-scoped *slog.Logger through contexts.
package logging

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

type Options struct {
	Service string
	Version string
	Level   string
	// Format is "text" or "json". Empty picks text in development and
	// json elsewhere.
	Format string
	AppEnv string
	Writer io.Writer
}

// Init builds the process logger and installs it as the slog default.
func Init(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "json"
		if opts.AppEnv == "development" {
			format = "text"
		}
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, hopts)
	} else {
		handler = slog.NewJSONHandler(w, hopts)
	}

	logger := slog.New(handler).With("service", opts.Service)
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	slog.SetDefault(logger)
	return logger
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// With returns ctx with its logger extended by args.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// StdLogger adapts l for libraries that log through *log.Logger.
func StdLogger(l *slog.Logger, level slog.Level) *log.Logger {
	return slog.NewLogLogger(l.Handler(), level)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
