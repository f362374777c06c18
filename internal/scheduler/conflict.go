package scheduler

import "time"

// Booking is the minimal view of a reservation needed for conflict detection.
type Booking struct {
	ID     string
	UserID string
	DeskID string
	Date   time.Time
	Slot   Slot
}

// ConflictType describes which occupancy rule a candidate booking breaks.
type ConflictType string

const (
	// ConflictTypeDesk indicates the desk is already taken for the slot.
	ConflictTypeDesk ConflictType = "desk"
	// ConflictTypeUser indicates the user already holds a desk for the slot.
	ConflictTypeUser ConflictType = "user"
)

// Conflict details the booking that blocks a candidate.
type Conflict struct {
	WithBookingID string
	Type          ConflictType
	DeskID        string
	UserID        string
}

// Message returns a short human readable description of the conflict.
func (c Conflict) Message() string {
	switch c.Type {
	case ConflictTypeDesk:
		return "desk already reserved"
	case ConflictTypeUser:
		return "user already has a desk in this slot"
	default:
		return "reservation conflict"
	}
}

// DetectConflict scans existing bookings for the first one occupying the
// candidate's desk or user on the same date and slot. The booking whose ID
// equals excludeID is ignored so an update never conflicts with itself.
func DetectConflict(existing []Booking, candidate Booking, excludeID string) *Conflict {
	date := DateOf(candidate.Date)
	for _, booking := range existing {
		if excludeID != "" && booking.ID == excludeID {
			continue
		}
		if booking.Slot != candidate.Slot || !DateOf(booking.Date).Equal(date) {
			continue
		}
		if booking.DeskID == candidate.DeskID {
			return &Conflict{WithBookingID: booking.ID, Type: ConflictTypeDesk, DeskID: booking.DeskID, UserID: booking.UserID}
		}
		if booking.UserID == candidate.UserID {
			return &Conflict{WithBookingID: booking.ID, Type: ConflictTypeUser, DeskID: booking.DeskID, UserID: booking.UserID}
		}
	}
	return nil
}
