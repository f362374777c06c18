package http

import (
	"context"
	"log/slog"

	"github.com/example/desk-reservations/internal/application"
	"github.com/example/desk-reservations/internal/logging"
)

type contextKey string

const userContextKey contextKey = "user"

// ContextWithUser returns a derived context containing the authenticated user.
func ContextWithUser(ctx context.Context, user application.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the authenticated user from context if available.
func UserFromContext(ctx context.Context) (application.User, bool) {
	user, ok := ctx.Value(userContextKey).(application.User)
	return user, ok
}

// PrincipalFromContext returns the principal of the authenticated user.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return application.Principal{}, false
	}
	return user.Principal(), true
}

// ContextWithLogger attaches a request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
