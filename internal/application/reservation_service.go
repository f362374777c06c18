package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/scheduler"
)

// ReservationService applies the booking rules on top of the durable store.
// It keeps no state between calls; every write re-validates against the data
// reloaded under the store lock.
type ReservationService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewReservationService constructs a reservation service with the provided dependencies.
func NewReservationService(store persistence.Store, idGenerator func() string, now func() time.Time) *ReservationService {
	return NewReservationServiceWithLogger(store, idGenerator, now, nil)
}

// NewReservationServiceWithLogger constructs a reservation service with a specified logger.
func NewReservationServiceWithLogger(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ReservationService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &ReservationService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

func (s *ReservationService) today() time.Time {
	return scheduler.DateOf(s.now().UTC())
}

// ListEffectiveReservations returns explicit and synthesized named desk
// reservations for the requested range, ordered by date, slot and desk.
func (s *ReservationService) ListEffectiveReservations(ctx context.Context, params ListReservationsParams) (reservations []Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}

	today := s.today()
	start, end := today, scheduler.WindowEnd(today)
	if params.Start != nil {
		start = scheduler.DateOf(*params.Start)
	}
	if params.End != nil {
		end = scheduler.DateOf(*params.End)
	}

	logger := s.loggerWith(ctx, "ListEffectiveReservations",
		"start_date", scheduler.FormatDate(start),
		"end_date", scheduler.FormatDate(end),
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to list reservations", err)
			return
		}
		logger.With("count", len(reservations)).DebugContext(ctx, "reservations listed")
	}()

	// An open-ended range starting past the window is empty, not invalid.
	if params.End == nil && start.After(end) {
		reservations = []Reservation{}
		return
	}
	if vErr := validateListRange(start, end); vErr != nil {
		err = vErr
		return
	}

	var snapshot persistence.Snapshot
	snapshot, err = s.store.Read(ctx)
	if err != nil {
		return
	}

	rows := effectiveReservations(&snapshot, start, end, s.now().UTC())
	reservations = make([]Reservation, 0, len(rows))
	for _, row := range rows {
		reservations = append(reservations, reservationFromRecord(row))
	}
	return
}

// CreateReservation books a desk for one or both half-days of a date. Every
// sub-slot is validated before any row is written, so a FULL request either
// creates both halves or nothing.
func (s *ReservationService) CreateReservation(ctx context.Context, params CreateReservationParams) (created []Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}

	deskID := strings.TrimSpace(params.DeskID)
	date := scheduler.DateOf(params.Date)

	logger := s.loggerWith(ctx, "CreateReservation",
		"principal_id", params.Principal.UserID,
		"desk_id", deskID,
		"date", scheduler.FormatDate(date),
		"slot", string(params.Slot),
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to create reservation", err)
			return
		}
		ids := make([]string, 0, len(created))
		for _, r := range created {
			ids = append(ids, r.ID)
		}
		logger.With("reservation_ids", ids).InfoContext(ctx, "reservation created")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}
	if deskID == "" {
		err = newValidationError("desk_id", "desk_id is required")
		return
	}

	var slots []scheduler.Slot
	slots, err = expandSlot(params.Slot)
	if err != nil {
		return
	}

	err = s.store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
		now := s.now().UTC()
		today := scheduler.DateOf(now)
		for _, slot := range slots {
			candidate := bookingCandidate{userID: params.Principal.UserID, deskID: deskID, date: date, slot: slot}
			if err := checkCandidate(snapshot, candidate, today, now); err != nil {
				return err
			}
		}

		rows := make([]persistence.Reservation, 0, len(slots))
		for _, slot := range slots {
			rows = append(rows, persistence.Reservation{
				ID:        s.idGenerator(),
				UserID:    params.Principal.UserID,
				DeskID:    deskID,
				Date:      date,
				Slot:      slot,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		snapshot.Reservations = append(snapshot.Reservations, rows...)

		created = make([]Reservation, 0, len(rows))
		for _, row := range rows {
			created = append(created, reservationFromRecord(row))
		}
		return nil
	})
	if err != nil {
		created = nil
	}
	return
}

// UpdateReservation moves an explicit reservation to another desk, date or
// half-day on behalf of its owner or an administrator.
func (s *ReservationService) UpdateReservation(ctx context.Context, params UpdateReservationParams) (updated Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}

	reservationID := strings.TrimSpace(params.ReservationID)
	logger := s.loggerWith(ctx, "UpdateReservation",
		"principal_id", params.Principal.UserID,
		"reservation_id", reservationID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to update reservation", err)
			return
		}
		logger.With(
			"desk_id", updated.DeskID,
			"date", scheduler.FormatDate(updated.Date),
			"slot", string(updated.Slot),
		).InfoContext(ctx, "reservation updated")
	}()

	err = s.store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
		idx := snapshot.ReservationIndex(reservationID)
		if idx < 0 {
			return fmt.Errorf("reservation %q: %w", reservationID, ErrNotFound)
		}
		existing := snapshot.Reservations[idx]
		if existing.UserID != params.Principal.UserID && !params.Principal.IsAdmin {
			return fmt.Errorf("cannot edit other users reservations: %w", ErrForbidden)
		}
		if params.Slot != nil && scheduler.Slot(strings.ToUpper(strings.TrimSpace(string(*params.Slot)))) == scheduler.SlotFull {
			return newValidationError("slot", "patch supports AM or PM reservation records only")
		}

		target := existing
		if params.DeskID != nil && strings.TrimSpace(*params.DeskID) != "" {
			target.DeskID = strings.TrimSpace(*params.DeskID)
		}
		if params.Date != nil && !params.Date.IsZero() {
			target.Date = scheduler.DateOf(*params.Date)
		}
		if params.Slot != nil && strings.TrimSpace(string(*params.Slot)) != "" {
			target.Slot = scheduler.Slot(strings.ToUpper(strings.TrimSpace(string(*params.Slot))))
		}

		now := s.now().UTC()
		candidate := bookingCandidate{
			userID:    existing.UserID,
			deskID:    target.DeskID,
			date:      target.Date,
			slot:      target.Slot,
			excludeID: existing.ID,
		}
		if err := checkCandidate(snapshot, candidate, scheduler.DateOf(now), now); err != nil {
			return err
		}

		target.UpdatedAt = now
		snapshot.Reservations[idx] = target
		updated = reservationFromRecord(target)
		return nil
	})
	if err != nil {
		updated = Reservation{}
	}
	return
}

// CancelReservation deletes an explicit reservation owned by the principal,
// or any reservation when the principal is an administrator.
func (s *ReservationService) CancelReservation(ctx context.Context, principal Principal, reservationID string) (err error) {
	if s == nil {
		return fmt.Errorf("ReservationService is nil")
	}
	if s.store == nil {
		return fmt.Errorf("reservation store not configured")
	}

	reservationID = strings.TrimSpace(reservationID)
	logger := s.loggerWith(ctx, "CancelReservation",
		"principal_id", principal.UserID,
		"reservation_id", reservationID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to cancel reservation", err)
			return
		}
		logger.InfoContext(ctx, "reservation cancelled")
	}()

	err = s.store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
		idx := snapshot.ReservationIndex(reservationID)
		if idx < 0 {
			return fmt.Errorf("reservation %q: %w", reservationID, ErrNotFound)
		}
		if snapshot.Reservations[idx].UserID != principal.UserID && !principal.IsAdmin {
			return fmt.Errorf("cannot cancel other users reservations: %w", ErrForbidden)
		}
		snapshot.RemoveReservation(idx)
		return nil
	})
	return
}

// UpsertAbsence releases (released=true) or reclaims (released=false) a named
// desk for one or both half-days. Only the desk owner may call it. The
// operation is idempotent and returns all absences of the owner.
func (s *ReservationService) UpsertAbsence(ctx context.Context, params UpsertAbsenceParams) (absences []Absence, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}

	deskID := strings.TrimSpace(params.DeskID)
	date := scheduler.DateOf(params.Date)
	logger := s.loggerWith(ctx, "UpsertAbsence",
		"principal_id", params.Principal.UserID,
		"desk_id", deskID,
		"date", scheduler.FormatDate(date),
		"slot", string(params.Slot),
		"released", params.Released,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to update desk release", err)
			return
		}
		logger.With("absence_count", len(absences)).InfoContext(ctx, "desk release updated")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	err = s.store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
		desk, err := enabledDesk(snapshot, deskID)
		if err != nil {
			return err
		}
		if desk.OwnerUserID != params.Principal.UserID {
			return fmt.Errorf("only the desk owner can release a named desk: %w", ErrForbidden)
		}

		slots, err := expandSlot(params.Slot)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		today := scheduler.DateOf(now)
		for _, slot := range slots {
			if vErr := validateDateSlot(date, today, slot); vErr != nil {
				return vErr
			}
		}

		for _, slot := range slots {
			key := absenceKey{params.Principal.UserID, deskID, date, slot}
			if params.Released {
				if !hasAbsence(snapshot.Absences, key) {
					snapshot.Absences = append(snapshot.Absences, persistence.Absence{
						ID:          s.idGenerator(),
						OwnerUserID: key.ownerID,
						DeskID:      key.deskID,
						Date:        date,
						Slot:        slot,
						CreatedAt:   now,
					})
				}
				continue
			}
			snapshot.Absences = removeAbsences(snapshot.Absences, key)
		}

		absences = make([]Absence, 0, len(snapshot.Absences))
		for _, a := range snapshot.Absences {
			if a.OwnerUserID == params.Principal.UserID {
				absences = append(absences, absenceFromRecord(a))
			}
		}
		return nil
	})
	if err != nil {
		absences = nil
	}
	return
}

func matchesAbsence(a persistence.Absence, key absenceKey) bool {
	return a.OwnerUserID == key.ownerID && a.DeskID == key.deskID && a.Slot == key.slot && scheduler.DateOf(a.Date).Equal(key.date)
}

func hasAbsence(absences []persistence.Absence, key absenceKey) bool {
	for _, a := range absences {
		if matchesAbsence(a, key) {
			return true
		}
	}
	return false
}

func removeAbsences(absences []persistence.Absence, key absenceKey) []persistence.Absence {
	kept := absences[:0]
	for _, a := range absences {
		if !matchesAbsence(a, key) {
			kept = append(kept, a)
		}
	}
	return kept
}
