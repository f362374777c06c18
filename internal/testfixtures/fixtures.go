package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/scheduler"
)

var (
	userCounter        uint64
	deskCounter        uint64
	reservationCounter uint64
	absenceCounter     uint64
)

// referenceTime is a Sunday morning, the first workday of the booking week.
var referenceTime = time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserOption configures a generated user record.
type UserOption func(*persistence.User)

// NewUser returns an enabled, non-admin user with optional overrides.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	user := persistence.User{
		ID:        id,
		Name:      fmt.Sprintf("User %03d", idx),
		Email:     fmt.Sprintf("%s@ide-tech.com", id),
		Enabled:   true,
		CreatedAt: referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(u *persistence.User) { u.ID = id }
}

// WithUserName overrides the generated name.
func WithUserName(name string) UserOption {
	return func(u *persistence.User) { u.Name = name }
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(u *persistence.User) { u.Email = email }
}

// WithUserAdmin sets the admin flag.
func WithUserAdmin(isAdmin bool) UserOption {
	return func(u *persistence.User) { u.IsAdmin = isAdmin }
}

// WithUserDisabled marks the user as disabled.
func WithUserDisabled() UserOption {
	return func(u *persistence.User) { u.Enabled = false }
}

// ----------------------------- Desk fixtures -----------------------------

// DeskOption configures a generated desk record.
type DeskOption func(*persistence.Desk)

// NewDesk returns an enabled, unowned desk with optional overrides.
func NewDesk(opts ...DeskOption) persistence.Desk {
	idx := atomic.AddUint64(&deskCounter, 1)
	desk := persistence.Desk{
		ID:      fmt.Sprintf("desk-%03d", idx),
		Label:   fmt.Sprintf("Desk %03d", idx),
		Enabled: true,
	}
	for _, opt := range opts {
		opt(&desk)
	}
	return desk
}

// WithDeskID overrides the generated desk ID.
func WithDeskID(id string) DeskOption {
	return func(d *persistence.Desk) { d.ID = id }
}

// WithDeskLabel overrides the generated label.
func WithDeskLabel(label string) DeskOption {
	return func(d *persistence.Desk) { d.Label = label }
}

// WithDeskOwner turns the desk into a named desk for the owner.
func WithDeskOwner(ownerID string) DeskOption {
	return func(d *persistence.Desk) { d.OwnerUserID = ownerID }
}

// WithDeskDisabled marks the desk as disabled.
func WithDeskDisabled() DeskOption {
	return func(d *persistence.Desk) { d.Enabled = false }
}

// ------------------------- Reservation fixtures --------------------------

// NewReservation returns an explicit reservation record.
func NewReservation(userID, deskID string, date time.Time, slot scheduler.Slot) persistence.Reservation {
	idx := atomic.AddUint64(&reservationCounter, 1)
	return persistence.Reservation{
		ID:        fmt.Sprintf("seed-res-%03d", idx),
		UserID:    userID,
		DeskID:    deskID,
		Date:      scheduler.DateOf(date),
		Slot:      slot,
		CreatedAt: referenceTime.Add(-time.Hour),
		UpdatedAt: referenceTime.Add(-time.Hour),
	}
}

// NewAbsence returns a release record for a named desk.
func NewAbsence(ownerID, deskID string, date time.Time, slot scheduler.Slot) persistence.Absence {
	idx := atomic.AddUint64(&absenceCounter, 1)
	return persistence.Absence{
		ID:          fmt.Sprintf("seed-abs-%03d", idx),
		OwnerUserID: ownerID,
		DeskID:      deskID,
		Date:        scheduler.DateOf(date),
		Slot:        slot,
		CreatedAt:   referenceTime.Add(-time.Hour),
	}
}
