package application

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/scheduler"
)

type slotKey struct {
	deskID string
	date   time.Time
	slot   scheduler.Slot
}

type absenceKey struct {
	ownerID string
	deskID  string
	date    time.Time
	slot    scheduler.Slot
}

// autoReservationID is stable for a given desk, date and slot.
func autoReservationID(deskID string, date time.Time, slot scheduler.Slot) string {
	return fmt.Sprintf("auto-%s-%s-%s", deskID, scheduler.FormatDate(date), slot)
}

// effectiveReservations merges the explicit reservations dated within
// [start, end] with a synthesized owner reservation for every enabled named
// desk, workday and half-day not already booked or released.
func effectiveReservations(snapshot *persistence.Snapshot, start, end, stamp time.Time) []persistence.Reservation {
	start = scheduler.DateOf(start)
	end = scheduler.DateOf(end)

	result := make([]persistence.Reservation, 0, len(snapshot.Reservations))
	booked := make(map[slotKey]struct{})
	for _, r := range snapshot.Reservations {
		d := scheduler.DateOf(r.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		result = append(result, r)
		booked[slotKey{r.DeskID, d, r.Slot}] = struct{}{}
	}

	released := make(map[absenceKey]struct{})
	for _, a := range snapshot.Absences {
		released[absenceKey{a.OwnerUserID, a.DeskID, scheduler.DateOf(a.Date), a.Slot}] = struct{}{}
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if !scheduler.IsWorkday(day) {
			continue
		}
		for _, desk := range snapshot.Desks {
			if !desk.Enabled || !desk.IsNamed() {
				continue
			}
			for _, slot := range scheduler.StoredSlots {
				if _, ok := booked[slotKey{desk.ID, day, slot}]; ok {
					continue
				}
				if _, ok := released[absenceKey{desk.OwnerUserID, desk.ID, day, slot}]; ok {
					continue
				}
				result = append(result, persistence.Reservation{
					ID:        autoReservationID(desk.ID, day, slot),
					UserID:    desk.OwnerUserID,
					DeskID:    desk.ID,
					Date:      day,
					Slot:      slot,
					CreatedAt: stamp,
					UpdatedAt: stamp,
					Auto:      true,
				})
			}
		}
	}

	sortReservations(result)
	return result
}

// sortReservations orders by date, slot, desk and reservation ID.
func sortReservations(rows []persistence.Reservation) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Slot != b.Slot {
			return a.Slot.Order() < b.Slot.Order()
		}
		if a.DeskID != b.DeskID {
			return a.DeskID < b.DeskID
		}
		return a.ID < b.ID
	})
}

func isReleased(snapshot *persistence.Snapshot, desk persistence.Desk, date time.Time, slot scheduler.Slot) bool {
	date = scheduler.DateOf(date)
	for _, a := range snapshot.Absences {
		if a.OwnerUserID == desk.OwnerUserID && a.DeskID == desk.ID && a.Slot == slot && scheduler.DateOf(a.Date).Equal(date) {
			return true
		}
	}
	return false
}

func toBookings(rows []persistence.Reservation) []scheduler.Booking {
	bookings := make([]scheduler.Booking, 0, len(rows))
	for _, r := range rows {
		bookings = append(bookings, scheduler.Booking{
			ID:     r.ID,
			UserID: r.UserID,
			DeskID: r.DeskID,
			Date:   r.Date,
			Slot:   r.Slot,
		})
	}
	return bookings
}
