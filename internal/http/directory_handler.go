package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/desk-reservations/internal/application"
)

type directoryService interface {
	ListUsers(ctx context.Context) ([]application.User, error)
	ListDesks(ctx context.Context) ([]application.Desk, error)
}

// DirectoryHandler lists enabled users and desks.
type DirectoryHandler struct {
	service   directoryService
	responder responder
	logger    *slog.Logger
}

// NewDirectoryHandler constructs a DirectoryHandler.
func NewDirectoryHandler(service directoryService, logger *slog.Logger) *DirectoryHandler {
	base := defaultLogger(logger)
	return &DirectoryHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *DirectoryHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		handlerLogger(r.Context(), h.logger, "DirectoryHandler", "ListUsers").ErrorContext(r.Context(), "listing users failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]userDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, toUserDTO(u))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, dtos)
}

func (h *DirectoryHandler) ListDesks(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	desks, err := h.service.ListDesks(r.Context())
	if err != nil {
		handlerLogger(r.Context(), h.logger, "DirectoryHandler", "ListDesks").ErrorContext(r.Context(), "listing desks failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]deskDTO, 0, len(desks))
	for _, d := range desks {
		dtos = append(dtos, toDeskDTO(d))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, dtos)
}

type deskDTO struct {
	DeskID      string  `json:"desk_id"`
	Label       string  `json:"label"`
	Enabled     bool    `json:"enabled"`
	OwnerUserID *string `json:"owner_user_id"`
}

func toDeskDTO(desk application.Desk) deskDTO {
	dto := deskDTO{DeskID: desk.ID, Label: desk.Label, Enabled: desk.Enabled}
	if desk.OwnerUserID != "" {
		owner := desk.OwnerUserID
		dto.OwnerUserID = &owner
	}
	return dto
}
