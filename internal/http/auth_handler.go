package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/desk-reservations/internal/application"
)

type authService interface {
	RequestLogin(ctx context.Context, email string) error
	Login(ctx context.Context, email, code string) (application.LoginResult, error)
	EndSession(ctx context.Context, token string)
}

// AuthHandler serves one-time code login, logout and the current user.
type AuthHandler struct {
	service      authService
	responder    responder
	logger       *slog.Logger
	secureCookie bool
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(service authService, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, responder: newResponder(base), logger: base, secureCookie: true}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// RequestOTP mails a one-time code to the address in the body.
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "RequestOTP", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode otp request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	logger := h.log(r.Context(), "RequestOTP", "email", email)

	if err := h.service.RequestLogin(r.Context(), email); err != nil {
		logger.WarnContext(r.Context(), "otp request failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "otp requested")
	h.responder.writeOK(r.Context(), w)
}

// VerifyOTP exchanges a valid code for a session token.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req otpVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "VerifyOTP", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode otp verification", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	logger := h.log(r.Context(), "VerifyOTP", "email", email)

	result, err := h.service.Login(r.Context(), email, req.Code)
	if err != nil {
		logger.WarnContext(r.Context(), "otp verification failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt)
	logger.With("user_id", result.User.ID).InfoContext(r.Context(), "user authenticated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, authTokenResponse{
		Token: result.Session.Token,
		User:  toUserDTO(result.User),
	})
}

// Logout revokes the session carried by the request.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if token := extractTokenFromRequest(r); token != "" {
		h.service.EndSession(r.Context(), token)
	}
	h.clearSessionCookie(w)

	h.log(r.Context(), "Logout", "principal_id", principal.UserID).InfoContext(r.Context(), "session revoked")
	h.responder.writeOK(r.Context(), w)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errInvalidSession)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toUserDTO(user))
}

type otpRequest struct {
	Email string `json:"email"`
}

type otpVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type authTokenResponse struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

type userDTO struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Enabled   bool   `json:"enabled"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}

func toUserDTO(user application.User) userDTO {
	dto := userDTO{
		UserID:  user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Enabled: user.Enabled,
		IsAdmin: user.IsAdmin,
	}
	if !user.CreatedAt.IsZero() {
		dto.CreatedAt = user.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

const sessionCookieName = "session_token"

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
