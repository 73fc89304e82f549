// Package logger builds the process logger: JSON on stdout, plus Sentry when
// a DSN is configured.
package logger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// SentryConfig holds the Sentry integration settings. An empty DSN disables it.
type SentryConfig struct {
	DSN         string
	Environment string
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a JSON logger writing to w at level. With a Sentry DSN, warnings
// and errors are also sent to Sentry, and errors become Sentry issues.
// The returned function flushes pending Sentry events.
func New(w io.Writer, level string, sc SentryConfig) (*slog.Logger, func()) {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	if sc.DSN == "" {
		return slog.New(jsonHandler), func() {}
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         sc.DSN,
		Environment: sc.Environment,
		EnableLogs:  true,
	}); err != nil {
		l := slog.New(jsonHandler)
		l.Error("failed to initialize Sentry", slog.Any("error", err))
		return l, func() {}
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	flush := func() { sentry.Flush(2 * time.Second) }
	return slog.New(newMultiHandler(jsonHandler, sentryHandler)), flush
}
