package log

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
)

func NewHandler(name string) slog.Handler {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          name,
		Level:           log.DebugLevel,
	})
}

func New(name string) *slog.Logger {
	return slog.New(NewHandler(name))
}

// NewWithLevel is New with a minimum level such as "info" or "warn".
func NewWithLevel(name, level string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          name,
		Level:           lvl,
	})), nil
}

type ctxKey struct{}

// IntoContext adds a logger to a context. Use FromContext to pull it out.
func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or the default slog
// logger when there is none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// SubLogger derives a logger whose prefix is base's prefix plus "/suffix".
// The level of base is kept.
func SubLogger(base *slog.Logger, suffix string) *slog.Logger {
	if cl, ok := base.Handler().(*log.Logger); ok {
		prefix := cl.GetPrefix()
		if prefix != "" {
			prefix = prefix + "/" + suffix
		} else {
			prefix = suffix
		}
		return slog.New(log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          prefix,
			Level:           cl.GetLevel(),
		}))
	}
	return slog.New(NewHandler(suffix))
}
