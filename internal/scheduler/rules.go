package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Slot identifies a bookable half-day. FULL is accepted on requests only.
type Slot string

const (
	// SlotAM is the morning half-day.
	SlotAM Slot = "AM"
	// SlotPM is the afternoon half-day.
	SlotPM Slot = "PM"
	// SlotFull requests both half-days of a date.
	SlotFull Slot = "FULL"
)

// DateLayout is the ISO-8601 calendar date format used on disk and on the wire.
const DateLayout = "2006-01-02"

// BookingWindowDays is the number of days after today that remain bookable.
const BookingWindowDays = 6

// ErrUnsupportedSlot is returned when a slot is not AM, PM or FULL.
var ErrUnsupportedSlot = errors.New("scheduler: unsupported slot")

// StoredSlots lists the slots a persisted row may carry, in display order.
var StoredSlots = []Slot{SlotAM, SlotPM}

var workdays = map[time.Weekday]struct{}{
	time.Sunday:    {},
	time.Monday:    {},
	time.Tuesday:   {},
	time.Wednesday: {},
	time.Thursday:  {},
}

// IsWorkday reports whether the date falls on Sunday through Thursday.
func IsWorkday(date time.Time) bool {
	_, ok := workdays[date.Weekday()]
	return ok
}

// InBookingWindow reports whether date lies within today and today+6, inclusive.
func InBookingWindow(date, today time.Time) bool {
	d := DateOf(date)
	start := DateOf(today)
	end := start.AddDate(0, 0, BookingWindowDays)
	return !d.Before(start) && !d.After(end)
}

// WindowEnd returns the last bookable date for the given processing date.
func WindowEnd(today time.Time) time.Time {
	return DateOf(today).AddDate(0, 0, BookingWindowDays)
}

// ExpandRequestSlot converts a requested slot into the stored slots it covers.
func ExpandRequestSlot(slot Slot) ([]Slot, error) {
	switch slot {
	case SlotFull:
		return []Slot{SlotAM, SlotPM}, nil
	case SlotAM, SlotPM:
		return []Slot{slot}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSlot, string(slot))
	}
}

// Valid reports whether the slot may be persisted.
func (s Slot) Valid() bool {
	return s == SlotAM || s == SlotPM
}

// ParseSlot decodes a stored slot value.
func ParseSlot(raw string) (Slot, error) {
	slot := Slot(strings.ToUpper(strings.TrimSpace(raw)))
	if !slot.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSlot, raw)
	}
	return slot, nil
}

// Order returns a sort key placing AM before PM.
func (s Slot) Order() int {
	switch s {
	case SlotAM:
		return 0
	case SlotPM:
		return 1
	default:
		return 2
	}
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date. Timestamps are accepted and truncated.
func ParseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid date %q", raw)
	}
	return DateOf(t), nil
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NormalizeBool coerces loosely typed stored values into a boolean.
//
// Booleans pass through, numbers are true when non-zero, and strings are true
// for "1", "true", "yes" or "y" in any case. Anything else is false.
func NormalizeBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int8:
		return v != 0
	case int16:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case uint:
		return v != 0
	case uint8:
		return v != 0
	case uint16:
		return v != 0
	case uint32:
		return v != 0
	case uint64:
		return v != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y":
			return true
		}
		return false
	default:
		return false
	}
}
