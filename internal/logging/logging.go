package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// New builds a logger writing JSON or text records at the given level.
// An empty format selects JSON and a nil writer selects stdout.
func New(format, level string, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stdout
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", format)
	}
}

// ParseLevel converts a textual level such as "debug" or "WARN" into a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	value := strings.TrimSpace(level)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: unsupported level %q", level)
	}
	return lvl, nil
}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger previously attached to the context.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return logger
}
