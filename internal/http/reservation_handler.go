package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"

	"github.com/example/desk-reservations/internal/application"
	"github.com/example/desk-reservations/internal/scheduler"
)

type reservationService interface {
	ListEffectiveReservations(ctx context.Context, params application.ListReservationsParams) ([]application.Reservation, error)
	CreateReservation(ctx context.Context, params application.CreateReservationParams) ([]application.Reservation, error)
	UpdateReservation(ctx context.Context, params application.UpdateReservationParams) (application.Reservation, error)
	CancelReservation(ctx context.Context, principal application.Principal, reservationID string) error
	UpsertAbsence(ctx context.Context, params application.UpsertAbsenceParams) ([]application.Absence, error)
}

// ReservationHandler serves booking and named desk release endpoints.
type ReservationHandler struct {
	service   reservationService
	responder responder
	logger    *slog.Logger
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(service reservationService, logger *slog.Logger) *ReservationHandler {
	base := defaultLogger(logger)
	return &ReservationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ReservationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ReservationHandler", operation, attrs...)
}

// List returns effective reservations between start_date and end_date.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	var params application.ListReservationsParams
	fieldErrors := map[string]string{}
	if raw := strings.TrimSpace(query.Get("start_date")); raw != "" {
		if start, err := scheduler.ParseDate(raw); err != nil {
			fieldErrors["start_date"] = "start_date must be YYYY-MM-DD"
		} else {
			params.Start = &start
		}
	}
	if raw := strings.TrimSpace(query.Get("end_date")); raw != "" {
		if end, err := scheduler.ParseDate(raw); err != nil {
			fieldErrors["end_date"] = "end_date must be YYYY-MM-DD"
		} else {
			params.End = &end
		}
	}
	if len(fieldErrors) > 0 {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{FieldErrors: fieldErrors})
		return
	}

	reservations, err := h.service.ListEffectiveReservations(r.Context(), params)
	if err != nil {
		h.log(r.Context(), "List").WarnContext(r.Context(), "listing reservations failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReservationDTOs(reservations))
}

// Create books a desk for the caller.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req reservationCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode reservation request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	date, vErr := parseRequiredDate(req.Date)
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "desk_id", req.DeskID)

	created, err := h.service.CreateReservation(r.Context(), application.CreateReservationParams{
		Principal: principal,
		DeskID:    req.DeskID,
		Date:      date,
		Slot:      scheduler.Slot(req.Slot),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "reservation rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("count", len(created)).InfoContext(r.Context(), "reservation created")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReservationDTOs(created))
}

// Update moves one reservation.
func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reservationID := chi.URLParam(r, "reservationID")
	principal, _ := PrincipalFromContext(r.Context())

	var req reservationUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "reservation_id", reservationID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode reservation update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	params := application.UpdateReservationParams{
		Principal:     principal,
		ReservationID: reservationID,
		DeskID:        req.DeskID,
	}
	if req.Date != nil {
		date, vErr := parseRequiredDate(*req.Date)
		if vErr != nil {
			h.responder.handleServiceError(r.Context(), w, vErr)
			return
		}
		params.Date = &date
	}
	if req.Slot != nil {
		slot := scheduler.Slot(*req.Slot)
		params.Slot = &slot
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "reservation_id", reservationID)

	updated, err := h.service.UpdateReservation(r.Context(), params)
	if err != nil {
		logger.WarnContext(r.Context(), "reservation update rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReservationDTO(updated))
}

// Cancel deletes one reservation.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reservationID := chi.URLParam(r, "reservationID")
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Cancel", "principal_id", principal.UserID, "reservation_id", reservationID)

	if err := h.service.CancelReservation(r.Context(), principal, reservationID); err != nil {
		logger.WarnContext(r.Context(), "reservation cancel rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation cancelled")
	h.responder.writeOK(r.Context(), w)
}

// UpsertAbsence releases or reclaims the caller's named desk.
func (h *ReservationHandler) UpsertAbsence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req absenceUpsertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "UpsertAbsence", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode absence request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	date, vErr := parseRequiredDate(req.Date)
	if vErr == nil && req.Released == nil {
		vErr = &application.ValidationError{FieldErrors: map[string]string{"released": "released is required"}}
	}
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	logger := h.log(r.Context(), "UpsertAbsence", "principal_id", principal.UserID, "desk_id", req.DeskID)

	absences, err := h.service.UpsertAbsence(r.Context(), application.UpsertAbsenceParams{
		Principal: principal,
		DeskID:    req.DeskID,
		Date:      date,
		Slot:      scheduler.Slot(req.Slot),
		Released:  *req.Released,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "absence update rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAbsenceDTOs(absences))
}

func parseRequiredDate(raw string) (time.Time, *application.ValidationError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &application.ValidationError{FieldErrors: map[string]string{"date": "date is required"}}
	}
	date, err := scheduler.ParseDate(raw)
	if err != nil {
		return time.Time{}, &application.ValidationError{FieldErrors: map[string]string{"date": "date must be YYYY-MM-DD"}}
	}
	return date, nil
}

type reservationCreateRequest struct {
	DeskID string `json:"desk_id"`
	Date   string `json:"date"`
	Slot   string `json:"slot"`
}

type reservationUpdateRequest struct {
	DeskID *string `json:"desk_id"`
	Date   *string `json:"date"`
	Slot   *string `json:"slot"`
}

type absenceUpsertRequest struct {
	DeskID   string `json:"desk_id"`
	Date     string `json:"date"`
	Slot     string `json:"slot"`
	Released *bool  `json:"released"`
}

type reservationDTO struct {
	ReservationID string `json:"reservation_id"`
	UserID        string `json:"user_id"`
	DeskID        string `json:"desk_id"`
	Date          string `json:"date"`
	Slot          string `json:"slot"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	Auto          bool   `json:"auto"`
}

func toReservationDTO(r application.Reservation) reservationDTO {
	return reservationDTO{
		ReservationID: r.ID,
		UserID:        r.UserID,
		DeskID:        r.DeskID,
		Date:          scheduler.FormatDate(r.Date),
		Slot:          string(r.Slot),
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.UTC().Format(time.RFC3339),
		Auto:          r.Auto,
	}
}

func toReservationDTOs(rows []application.Reservation) []reservationDTO {
	dtos := make([]reservationDTO, 0, len(rows))
	for _, r := range rows {
		dtos = append(dtos, toReservationDTO(r))
	}
	return dtos
}

type absenceDTO struct {
	AbsenceID   string `json:"absence_id"`
	OwnerUserID string `json:"owner_user_id"`
	DeskID      string `json:"desk_id"`
	Date        string `json:"date"`
	Slot        string `json:"slot"`
	CreatedAt   string `json:"created_at"`
}

func toAbsenceDTOs(rows []application.Absence) []absenceDTO {
	dtos := make([]absenceDTO, 0, len(rows))
	for _, a := range rows {
		dtos = append(dtos, absenceDTO{
			AbsenceID:   a.ID,
			OwnerUserID: a.OwnerUserID,
			DeskID:      a.DeskID,
			Date:        scheduler.FormatDate(a.Date),
			Slot:        string(a.Slot),
			CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return dtos
}
