// Package logging configures log/slog for the cardtx commands.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by FromEnv.
const (
	EnvLevel  = "LOG_LEVEL"
	EnvFormat = "LOG_FORMAT"
)

// Config selects the handler installed by Setup.
type Config struct {
	Level slog.Level
	// JSON picks slog's JSON handler over the text handler.
	JSON bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig reads the process environment; see FromEnv.
func DefaultConfig() Config {
	return FromEnv(os.Getenv)
}

// FromEnv derives a Config from LOG_LEVEL (DEBUG, INFO, WARN or ERROR,
// INFO when unset or unknown) and LOG_FORMAT (json or text).
func FromEnv(getenv func(string) string) Config {
	return Config{
		Level:  levelOf(getenv(EnvLevel)),
		JSON:   strings.EqualFold(strings.TrimSpace(getenv(EnvFormat)), "json"),
		Output: os.Stderr,
	}
}

func levelOf(name string) slog.Level {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewHandler builds the handler described by cfg without touching the
// slog default.
func NewHandler(cfg Config) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.JSON {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// Setup installs a logger for cfg as the slog default and returns it.
func Setup(cfg Config) *slog.Logger {
	logger := slog.New(NewHandler(cfg))
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
