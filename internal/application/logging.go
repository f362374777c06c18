package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/desk-reservations/internal/logging"
	"github.com/example/desk-reservations/internal/persistence"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// logFailure records a failed operation. Permission failures are tagged as
// policy violations.
func logFailure(ctx context.Context, logger *slog.Logger, msg string, err error) {
	kind := ErrorKind(err)
	if kind == "forbidden" {
		logger.WarnContext(ctx, msg, "error", err, "error_kind", kind, "policy_violation", true)
		return
	}
	logger.ErrorContext(ctx, msg, "error", err, "error_kind", kind)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrDomainNotAllowed):
		return "domain_not_allowed"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, persistence.ErrStoreIO):
		return "store_io"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
