package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/scheduler"
)

const maxListRangeDays = 366

// bookingCandidate is one half-day a user wants to hold. excludeID names the
// reservation being moved, if any.
type bookingCandidate struct {
	userID    string
	deskID    string
	date      time.Time
	slot      scheduler.Slot
	excludeID string
}

// expandSlot normalizes and expands a requested slot, mapping failures to a
// field validation error.
func expandSlot(raw scheduler.Slot) ([]scheduler.Slot, error) {
	slot := scheduler.Slot(strings.ToUpper(strings.TrimSpace(string(raw))))
	slots, err := scheduler.ExpandRequestSlot(slot)
	if err != nil {
		return nil, newValidationError("slot", "unsupported slot")
	}
	return slots, nil
}

func validateDateSlot(date, today time.Time, slot scheduler.Slot) *ValidationError {
	if date.IsZero() {
		return newValidationError("date", "date is required")
	}
	if !scheduler.InBookingWindow(date, today) {
		return newValidationError("date", "date outside booking window")
	}
	if !scheduler.IsWorkday(date) {
		return newValidationError("date", "only Sun-Thu reservations are allowed")
	}
	if !slot.Valid() {
		return newValidationError("slot", "unsupported slot")
	}
	return nil
}

// enabledDesk returns the desk when it exists and accepts bookings.
func enabledDesk(snapshot *persistence.Snapshot, deskID string) (persistence.Desk, error) {
	desk, ok := snapshot.FindDesk(deskID)
	if !ok {
		return persistence.Desk{}, fmt.Errorf("desk %q: %w", deskID, ErrNotFound)
	}
	if !desk.Enabled {
		return persistence.Desk{}, newValidationError("desk_id", "desk disabled")
	}
	return desk, nil
}

// checkCandidate runs the booking pipeline for one half-day: window, workday,
// slot, desk state, named desk release and finally occupancy against the
// effective reservations of that date.
func checkCandidate(snapshot *persistence.Snapshot, c bookingCandidate, today, stamp time.Time) error {
	if vErr := validateDateSlot(c.date, today, c.slot); vErr != nil {
		return vErr
	}

	desk, err := enabledDesk(snapshot, c.deskID)
	if err != nil {
		return err
	}

	if desk.IsNamed() && desk.OwnerUserID != c.userID && !isReleased(snapshot, desk, c.date, c.slot) {
		return &ConflictError{Kind: ConflictNotReleased, Message: "named desk is not released by owner"}
	}

	effective := effectiveReservations(snapshot, c.date, c.date, stamp)
	candidate := scheduler.Booking{UserID: c.userID, DeskID: c.deskID, Date: c.date, Slot: c.slot}
	if conflict := scheduler.DetectConflict(toBookings(effective), candidate, c.excludeID); conflict != nil {
		kind := ConflictDesk
		if conflict.Type == scheduler.ConflictTypeUser {
			kind = ConflictUser
		}
		return &ConflictError{Kind: kind, Message: conflict.Message(), WithReservationID: conflict.WithBookingID}
	}
	return nil
}

func validateListRange(start, end time.Time) *ValidationError {
	if end.Before(start) {
		return newValidationError("end_date", "end date must not be before start date")
	}
	if end.Sub(start) > maxListRangeDays*24*time.Hour {
		return newValidationError("end_date", fmt.Sprintf("range must not exceed %d days", maxListRangeDays))
	}
	return nil
}
