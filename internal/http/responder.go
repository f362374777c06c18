package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/desk-reservations/internal/application"
	"github.com/example/desk-reservations/internal/persistence"
)

var (
	errBadRequestBody      = errors.New("invalid request body")
	errMissingSessionToken = errors.New("missing session token")
	errInvalidSession      = errors.New("invalid or expired session")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) writeOK(ctx context.Context, w http.ResponseWriter) {
	r.writeJSON(ctx, w, http.StatusOK, statusResponse{Status: "ok"})
}

// handleServiceError maps application errors onto status codes and stable
// error codes.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   vErr.Message(),
			Errors:    vErr.FieldErrors,
		})
		return
	}

	var cErr *application.ConflictError
	if errors.As(err, &cErr) {
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode:    "CONFLICT_" + strings.ToUpper(string(cErr.Kind)),
			Message:      cErr.Message,
			ConflictWith: cErr.WithReservationID,
		})
		return
	}

	switch {
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: notFoundMessage(err)})
	case errors.Is(err, application.ErrForbidden):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: "FORBIDDEN", Message: "you are not allowed to perform this operation"})
	case errors.Is(err, application.ErrAccountDisabled):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: "ACCOUNT_DISABLED", Message: "account is disabled"})
	case errors.Is(err, application.ErrInvalidCode):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{ErrorCode: "INVALID_OTP", Message: "invalid OTP"})
	case errors.Is(err, application.ErrUnauthenticated):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{ErrorCode: "UNAUTHENTICATED", Message: errInvalidSession.Error()})
	case errors.Is(err, application.ErrDomainNotAllowed):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{ErrorCode: "DOMAIN_NOT_ALLOWED", Message: err.Error()})
	case errors.Is(err, persistence.ErrStoreIO):
		r.loggerFor(ctx).ErrorContext(ctx, "store failure", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: "STORE_IO", Message: "reservation data is temporarily unavailable"})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected failure", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: http.StatusText(http.StatusInternalServerError)})
	}
}

func notFoundMessage(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "+application.ErrNotFound.Error()); idx > 0 {
		subject := msg[:idx]
		if strings.HasSuffix(subject, "not found") {
			return subject
		}
		return subject + " not found"
	}
	return "resource not found"
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode    string            `json:"error_code,omitempty"`
	Message      string            `json:"message"`
	Errors       map[string]string `json:"errors,omitempty"`
	ConflictWith string            `json:"conflict_with,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}
