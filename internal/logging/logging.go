package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls basic logger behaviour.
type Config struct {
	Level     string    // debug, info, warn, error
	Format    string    // json or text
	AddSource bool      // include source locations
	Output    io.Writer // defaults to stderr
}

// New constructs a slog logger with the provided config.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// NewFromEnv constructs a logger from level and format, taking the LOG_LEVEL and
// LOG_FORMAT environment variables for whichever is empty, and defaulting to a
// human-readable text handler at info level.
func NewFromEnv(level, format string) *slog.Logger {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	return New(Config{Level: level, Format: format})
}

// Noop returns a logger that drops all logs.
func Noop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ForRun annotates a logger with the identity of one simulation run.
func ForRun(base *slog.Logger, runID string, load float64) *slog.Logger {
	if base == nil {
		base = Noop()
	}
	return base.With(slog.String("run_id", runID), slog.Float64("load", load))
}

// ParseLevel maps a level name onto a slog level, info when the name is not recognised.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
