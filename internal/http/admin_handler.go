package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/desk-reservations/internal/application"
)

type adminService interface {
	UpsertUser(ctx context.Context, principal application.Principal, input application.UserInput) (application.User, error)
	UpsertDesk(ctx context.Context, principal application.Principal, input application.DeskInput) (application.Desk, error)
	ForceCancel(ctx context.Context, principal application.Principal, reservationID string) error
	Stats(ctx context.Context, principal application.Principal) (application.Stats, error)
}

// AdminHandler serves administrator maintenance endpoints. Authorization is
// enforced by the service.
type AdminHandler struct {
	service   adminService
	responder responder
	logger    *slog.Logger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(service adminService, logger *slog.Logger) *AdminHandler {
	base := defaultLogger(logger)
	return &AdminHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AdminHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AdminHandler", operation, attrs...)
}

func (h *AdminHandler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	var req adminUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "UpsertUser", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode user request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.UpsertUser(r.Context(), principal, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toUserDTO(user))
}

func (h *AdminHandler) UpsertDesk(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	var req adminDeskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "UpsertDesk", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode desk request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	desk, err := h.service.UpsertDesk(r.Context(), principal, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toDeskDTO(desk))
}

func (h *AdminHandler) ForceCancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	var req forceCancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "ForceCancel", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode force cancel request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if err := h.service.ForceCancel(r.Context(), principal, req.ReservationID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeOK(r.Context(), w)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	stats, err := h.service.Stats(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, statsResponse{
		TotalReservations: stats.TotalReservations,
		ActiveUsers:       stats.ActiveUsers,
		EnabledDesks:      stats.EnabledDesks,
	})
}

type adminUserRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Enabled *bool  `json:"enabled"`
	IsAdmin *bool  `json:"is_admin"`
}

func (req adminUserRequest) toInput() application.UserInput {
	return application.UserInput{
		Name:    req.Name,
		Email:   req.Email,
		Enabled: boolOr(req.Enabled, true),
		IsAdmin: boolOr(req.IsAdmin, false),
	}
}

type adminDeskRequest struct {
	DeskID      *string `json:"desk_id"`
	Label       string  `json:"label"`
	Enabled     *bool   `json:"enabled"`
	OwnerUserID *string `json:"owner_user_id"`
}

func (req adminDeskRequest) toInput() application.DeskInput {
	input := application.DeskInput{
		Label:   req.Label,
		Enabled: boolOr(req.Enabled, true),
	}
	if req.DeskID != nil {
		input.ID = *req.DeskID
	}
	if req.OwnerUserID != nil {
		input.OwnerUserID = *req.OwnerUserID
	}
	return input
}

type forceCancelRequest struct {
	ReservationID string `json:"reservation_id"`
}

type statsResponse struct {
	TotalReservations int `json:"total_reservations"`
	ActiveUsers       int `json:"active_users"`
	EnabledDesks      int `json:"enabled_desks"`
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
