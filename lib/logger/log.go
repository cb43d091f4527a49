package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"

	"github.com/padm/dwh/lib/config"
)

func newTintHandler(w io.Writer, level slog.Level) slog.Handler {
	noColor := true
	if file, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(file.Fd())
	}

	return tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.DateTime, NoColor: noColor})
}

// NewLogger returns the process logger and whether errors are also being shipped to Sentry.
func NewLogger(settings *config.Settings) (*slog.Logger, bool) {
	logLevel := slog.LevelInfo
	if settings != nil && settings.VerboseLogging {
		logLevel = slog.LevelDebug
	}

	handler := newTintHandler(os.Stderr, logLevel)

	var loggingToSentry bool
	if settings != nil && settings.Config.Reporting.Sentry != nil && settings.Config.Reporting.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: settings.Config.Reporting.Sentry.DSN}); err != nil {
			slog.New(handler).Warn("Failed to enable Sentry output", slog.Any("err", err))
		} else {
			handler = slogmulti.Fanout(
				handler,
				slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
			)
			loggingToSentry = true
		}
	}

	return slog.New(handler), loggingToSentry
}

// Flush waits for buffered Sentry events, it is a no-op when Sentry is not configured.
func Flush() {
	sentry.Flush(2 * time.Second)
}

func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	Flush()
	os.Exit(1)
}
