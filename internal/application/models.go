package application

import (
	"time"

	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/scheduler"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// User represents an employee account exposed by the application services.
type User struct {
	ID        string
	Name      string
	Email     string
	Enabled   bool
	IsAdmin   bool
	CreatedAt time.Time
}

// Principal returns the principal acting as this user.
func (u User) Principal() Principal {
	return Principal{UserID: u.ID, IsAdmin: u.IsAdmin}
}

// Desk represents a bookable desk. OwnerUserID is set for named desks.
type Desk struct {
	ID          string
	Label       string
	Enabled     bool
	OwnerUserID string
}

// Reservation represents one desk booked for one half-day. Auto reservations
// are synthesized for named desk owners and never stored.
type Reservation struct {
	ID        string
	UserID    string
	DeskID    string
	Date      time.Time
	Slot      scheduler.Slot
	CreatedAt time.Time
	UpdatedAt time.Time
	Auto      bool
}

// Absence records a named desk released by its owner for one half-day.
type Absence struct {
	ID          string
	OwnerUserID string
	DeskID      string
	Date        time.Time
	Slot        scheduler.Slot
	CreatedAt   time.Time
}

// Stats summarizes the data set for administrators.
type Stats struct {
	TotalReservations int
	ActiveUsers       int
	EnabledDesks      int
}

// ListReservationsParams bounds an effective reservation listing. Nil bounds
// default to today and today+6.
type ListReservationsParams struct {
	Start *time.Time
	End   *time.Time
}

// CreateReservationParams wraps the data required to book a desk.
type CreateReservationParams struct {
	Principal Principal
	DeskID    string
	Date      time.Time
	Slot      scheduler.Slot
}

// UpdateReservationParams wraps the data required to move a reservation.
// Nil fields keep their current value.
type UpdateReservationParams struct {
	Principal     Principal
	ReservationID string
	DeskID        *string
	Date          *time.Time
	Slot          *scheduler.Slot
}

// UpsertAbsenceParams wraps the data required to release or reclaim a named desk.
type UpsertAbsenceParams struct {
	Principal Principal
	DeskID    string
	Date      time.Time
	Slot      scheduler.Slot
	Released  bool
}

// UserInput captures administrator provided user attributes.
type UserInput struct {
	Name    string
	Email   string
	Enabled bool
	IsAdmin bool
}

// DeskInput captures administrator provided desk attributes. An empty ID
// creates a new desk.
type DeskInput struct {
	ID          string
	Label       string
	Enabled     bool
	OwnerUserID string
}

// Session represents an authenticated session issued to a user.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// LoginResult captures the outcome of a successful code verification.
type LoginResult struct {
	User    User
	Session Session
}

func userFromRecord(record persistence.User) User {
	return User{
		ID:        record.ID,
		Name:      record.Name,
		Email:     record.Email,
		Enabled:   record.Enabled,
		IsAdmin:   record.IsAdmin,
		CreatedAt: record.CreatedAt,
	}
}

func deskFromRecord(record persistence.Desk) Desk {
	return Desk{
		ID:          record.ID,
		Label:       record.Label,
		Enabled:     record.Enabled,
		OwnerUserID: record.OwnerUserID,
	}
}

func reservationFromRecord(record persistence.Reservation) Reservation {
	return Reservation{
		ID:        record.ID,
		UserID:    record.UserID,
		DeskID:    record.DeskID,
		Date:      record.Date,
		Slot:      record.Slot,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
		Auto:      record.Auto,
	}
}

func absenceFromRecord(record persistence.Absence) Absence {
	return Absence{
		ID:          record.ID,
		OwnerUserID: record.OwnerUserID,
		DeskID:      record.DeskID,
		Date:        record.Date,
		Slot:        record.Slot,
		CreatedAt:   record.CreatedAt,
	}
}
