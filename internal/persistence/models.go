package persistence

import (
	"time"

	"github.com/example/desk-reservations/internal/scheduler"
)

// User represents an employee account row.
type User struct {
	ID        string
	Name      string
	Email     string
	Enabled   bool
	IsAdmin   bool
	CreatedAt time.Time
}

// Desk represents a bookable desk. OwnerUserID is empty for desks that are
// not named desks.
type Desk struct {
	ID          string
	Label       string
	Enabled     bool
	OwnerUserID string
}

// IsNamed reports whether the desk is implicitly reserved for an owner.
func (d Desk) IsNamed() bool {
	return d.OwnerUserID != ""
}

// Reservation represents an explicit booking of a desk for one half-day.
// Auto marks rows synthesized for named desks; they are never persisted.
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

// Absence records that a named desk owner released their desk for one half-day.
type Absence struct {
	ID          string
	OwnerUserID string
	DeskID      string
	Date        time.Time
	Slot        scheduler.Slot
	CreatedAt   time.Time
}

// MetaEntry is a free-form key/value row kept alongside the data.
type MetaEntry struct {
	Key   string
	Value string
}

// Snapshot is the full decoded content of the store at one point in time.
type Snapshot struct {
	Users        []User
	Desks        []Desk
	Reservations []Reservation
	Absences     []Absence
	Meta         []MetaEntry
}

// FindUser returns the user with the given ID.
func (s *Snapshot) FindUser(id string) (User, bool) {
	for _, user := range s.Users {
		if user.ID == id {
			return user, true
		}
	}
	return User{}, false
}

// FindDesk returns the desk with the given ID.
func (s *Snapshot) FindDesk(id string) (Desk, bool) {
	for _, desk := range s.Desks {
		if desk.ID == id {
			return desk, true
		}
	}
	return Desk{}, false
}

// ReservationIndex returns the position of the reservation with the given ID or -1.
func (s *Snapshot) ReservationIndex(id string) int {
	for i, reservation := range s.Reservations {
		if reservation.ID == id {
			return i
		}
	}
	return -1
}

// RemoveReservation deletes the reservation at index i, preserving order.
func (s *Snapshot) RemoveReservation(i int) {
	s.Reservations = append(s.Reservations[:i], s.Reservations[i+1:]...)
}

// MetaValue returns the value stored under key.
func (s *Snapshot) MetaValue(key string) (string, bool) {
	for _, entry := range s.Meta {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return "", false
}

// SetMeta inserts or replaces the value stored under key.
func (s *Snapshot) SetMeta(key, value string) {
	for i := range s.Meta {
		if s.Meta[i].Key == key {
			s.Meta[i].Value = value
			return
		}
	}
	s.Meta = append(s.Meta, MetaEntry{Key: key, Value: value})
}
