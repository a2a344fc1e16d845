package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures New. Output defaults to stdout.
type Options struct {
	Level       string
	AddSource   bool
	Environment string
	Service     string
	Output      io.Writer
}

// New creates a logger writing JSON in prod and text elsewhere. Every record
// carries the environment and, when set, the service name.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(opts.Environment) == "prod" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	log := slog.New(handler).With(slog.String("environment", opts.Environment))
	if opts.Service != "" {
		log = log.With(slog.String("service", opts.Service))
	}

	return log
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
