package http

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger prefers the request scoped logger and tags records with the
// handler, the matched route pattern and whether an administrator is acting.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := []any{"handler", handlerName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			pairs = append(pairs, "route", pattern)
		}
	}
	if user, ok := UserFromContext(ctx); ok && user.IsAdmin {
		pairs = append(pairs, "actor_admin", true)
	}
	return logger.With(append(pairs, attrs...)...)
}
