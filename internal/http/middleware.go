package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/example/desk-reservations/internal/application"
)

// SessionResolver maps a session token to the user it was issued for.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (string, bool)
}

// ActiveUserLookup loads an enabled user by ID.
type ActiveUserLookup interface {
	GetActiveUser(ctx context.Context, id string) (application.User, error)
}

// RequireSession rejects requests without a live session for an enabled user
// and stores that user in the request context.
func RequireSession(sessions SessionResolver, users ActiveUserLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractTokenFromRequest(r)
			if token == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
				return
			}

			userID, ok := sessions.ResolveSession(r.Context(), token)
			if !ok {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errInvalidSession)
				return
			}

			user, err := users.GetActiveUser(r.Context(), userID)
			if err != nil {
				if errors.Is(err, application.ErrNotFound) {
					responder.writeError(r.Context(), w, http.StatusUnauthorized, errInvalidSession)
					return
				}
				responder.handleServiceError(r.Context(), w, err)
				return
			}

			ctx := ContextWithUser(r.Context(), user)
			if logger := LoggerFromContext(ctx); logger != nil {
				ctx = ContextWithLogger(ctx, logger.With("user_id", user.ID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger attaches a request scoped logger and records the outcome of
// every request.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id any = middleware.GetReqID(r.Context())
			if id == "" {
				id = counter.Add(1)
			}
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.InfoContext(ctx, "request completed",
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
