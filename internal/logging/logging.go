// Package logging configures structured logging for the profiler.
//
// Init sets the process-wide slog default once at startup; packages obtain
// component loggers with New and log at debug level for per-builder detail.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the default slog logger.
//
// level is debug, info, warn or error (case-insensitive, default info).
// format is text or json (default text). Output goes to w when given,
// otherwise stderr.
func Init(level, format string, w ...io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		out = w[0]
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return fmt.Errorf("logging: unknown format %q", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New returns a logger tagged with component. It follows the default logger
// at call time, so call it after Init.
func New(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
