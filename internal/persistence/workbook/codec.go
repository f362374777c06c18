package workbook

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/scheduler"
)

// Sheet names in the order they are written.
const (
	SheetUsers        = "users"
	SheetDesks        = "desks"
	SheetReservations = "reservations"
	SheetAbsences     = "absences"
	SheetMeta         = "meta"
)

var (
	usersHeaders        = []string{"user_id", "name", "email", "enabled", "is_admin", "created_at"}
	desksHeaders        = []string{"desk_id", "label", "enabled", "owner_user_id"}
	reservationsHeaders = []string{"reservation_id", "user_id", "desk_id", "date", "slot", "created_at", "updated_at"}
	absencesHeaders     = []string{"absence_id", "owner_user_id", "desk_id", "date", "slot", "created_at"}
	metaHeaders         = []string{"key", "value"}
)

type sheetLayout struct {
	name    string
	headers []string
}

var layouts = []sheetLayout{
	{SheetUsers, usersHeaders},
	{SheetDesks, desksHeaders},
	{SheetReservations, reservationsHeaders},
	{SheetAbsences, absencesHeaders},
	{SheetMeta, metaHeaders},
}

var errMissingValue = errors.New("value is required")

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// row gives header-addressed access to one decoded sheet row.
type row struct {
	sheet  string
	number int
	index  map[string]int
	cells  []string
}

func (r row) value(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func (r row) fail(column string, err error) error {
	return &persistence.DecodeError{Sheet: r.sheet, Row: r.number, Column: column, Err: err}
}

func (r row) required(column string) (string, error) {
	v := r.value(column)
	if v == "" {
		return "", r.fail(column, errMissingValue)
	}
	return v, nil
}

func (r row) date(column string) (time.Time, error) {
	v, err := r.required(column)
	if err != nil {
		return time.Time{}, err
	}
	if serial, numErr := strconv.ParseFloat(v, 64); numErr == nil {
		t, convErr := excelize.ExcelDateToTime(serial, false)
		if convErr != nil {
			return time.Time{}, r.fail(column, convErr)
		}
		return scheduler.DateOf(t), nil
	}
	t, err := scheduler.ParseDate(v)
	if err != nil {
		return time.Time{}, r.fail(column, err)
	}
	return t, nil
}

func (r row) timestamp(column string) (time.Time, error) {
	v, err := r.required(column)
	if err != nil {
		return time.Time{}, err
	}
	if serial, numErr := strconv.ParseFloat(v, 64); numErr == nil {
		t, convErr := excelize.ExcelDateToTime(serial, false)
		if convErr != nil {
			return time.Time{}, r.fail(column, convErr)
		}
		return t.UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, parseErr := time.Parse(layout, v); parseErr == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, r.fail(column, fmt.Errorf("invalid timestamp %q", v))
}

func (r row) slot(column string) (scheduler.Slot, error) {
	v, err := r.required(column)
	if err != nil {
		return "", err
	}
	slot, err := scheduler.ParseSlot(v)
	if err != nil {
		return "", r.fail(column, err)
	}
	return slot, nil
}

func (r row) flag(column string) bool {
	return scheduler.NormalizeBool(r.value(column))
}

func encodeTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optional(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// readRows returns the data rows of a sheet. A missing sheet decodes as empty.
// Rows whose first column (the record identifier) is blank are skipped with a
// warning.
func readRows(f *excelize.File, layout sheetLayout, logger *slog.Logger) ([]row, error) {
	idx, err := f.GetSheetIndex(layout.name)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}

	raw, err := f.GetRows(layout.name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(layout.headers))
	for i, header := range raw[0] {
		name := strings.ToLower(strings.TrimSpace(header))
		if _, seen := index[name]; name != "" && !seen {
			index[name] = i
		}
	}
	rows := make([]row, 0, len(raw)-1)
	for i, cells := range raw[1:] {
		if blank(cells) {
			continue
		}
		r := row{sheet: layout.name, number: i + 2, index: index, cells: cells}
		if idColumn := layout.headers[0]; r.value(idColumn) == "" {
			logger.Warn("skipping workbook row without identifier",
				"sheet", r.sheet,
				"row", r.number,
				"column", idColumn,
			)
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func blank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// decode converts every sheet of the workbook into typed records. Any
// identified row that cannot be decoded fails the whole snapshot.
func decode(f *excelize.File, logger *slog.Logger) (persistence.Snapshot, error) {
	var snapshot persistence.Snapshot

	rows, err := readRows(f, layouts[0], logger)
	if err != nil {
		return snapshot, err
	}
	for _, r := range rows {
		user, err := decodeUser(r)
		if err != nil {
			return snapshot, err
		}
		snapshot.Users = append(snapshot.Users, user)
	}

	if rows, err = readRows(f, layouts[1], logger); err != nil {
		return snapshot, err
	}
	for _, r := range rows {
		id, err := r.required("desk_id")
		if err != nil {
			return snapshot, err
		}
		snapshot.Desks = append(snapshot.Desks, persistence.Desk{
			ID:          id,
			Label:       r.value("label"),
			Enabled:     r.flag("enabled"),
			OwnerUserID: r.value("owner_user_id"),
		})
	}

	if rows, err = readRows(f, layouts[2], logger); err != nil {
		return snapshot, err
	}
	for _, r := range rows {
		reservation, err := decodeReservation(r)
		if err != nil {
			return snapshot, err
		}
		snapshot.Reservations = append(snapshot.Reservations, reservation)
	}

	if rows, err = readRows(f, layouts[3], logger); err != nil {
		return snapshot, err
	}
	for _, r := range rows {
		absence, err := decodeAbsence(r)
		if err != nil {
			return snapshot, err
		}
		snapshot.Absences = append(snapshot.Absences, absence)
	}

	if rows, err = readRows(f, layouts[4], logger); err != nil {
		return snapshot, err
	}
	for _, r := range rows {
		key, err := r.required("key")
		if err != nil {
			return snapshot, err
		}
		snapshot.Meta = append(snapshot.Meta, persistence.MetaEntry{Key: key, Value: r.value("value")})
	}

	return snapshot, nil
}

func decodeUser(r row) (persistence.User, error) {
	id, err := r.required("user_id")
	if err != nil {
		return persistence.User{}, err
	}
	created, err := r.timestamp("created_at")
	if err != nil {
		return persistence.User{}, err
	}
	email := r.value("email")
	return persistence.User{
		ID:        id,
		Name:      userName(r.value("name"), email),
		Email:     email,
		Enabled:   r.flag("enabled"),
		IsAdmin:   r.flag("is_admin"),
		CreatedAt: created,
	}, nil
}

// userName falls back to the local part of the email when the name cell is blank.
func userName(name, email string) string {
	if name != "" {
		return name
	}
	if local, _, ok := strings.Cut(email, "@"); ok {
		return local
	}
	if email != "" {
		return email
	}
	return "user"
}

func decodeReservation(r row) (persistence.Reservation, error) {
	var out persistence.Reservation
	var err error
	if out.ID, err = r.required("reservation_id"); err != nil {
		return out, err
	}
	if out.UserID, err = r.required("user_id"); err != nil {
		return out, err
	}
	if out.DeskID, err = r.required("desk_id"); err != nil {
		return out, err
	}
	if out.Date, err = r.date("date"); err != nil {
		return out, err
	}
	if out.Slot, err = r.slot("slot"); err != nil {
		return out, err
	}
	if out.CreatedAt, err = r.timestamp("created_at"); err != nil {
		return out, err
	}
	if out.UpdatedAt, err = r.timestamp("updated_at"); err != nil {
		return out, err
	}
	return out, nil
}

func decodeAbsence(r row) (persistence.Absence, error) {
	var out persistence.Absence
	var err error
	if out.ID, err = r.required("absence_id"); err != nil {
		return out, err
	}
	if out.OwnerUserID, err = r.required("owner_user_id"); err != nil {
		return out, err
	}
	if out.DeskID, err = r.required("desk_id"); err != nil {
		return out, err
	}
	if out.Date, err = r.date("date"); err != nil {
		return out, err
	}
	if out.Slot, err = r.slot("slot"); err != nil {
		return out, err
	}
	if out.CreatedAt, err = r.timestamp("created_at"); err != nil {
		return out, err
	}
	return out, nil
}

// encode builds a fresh workbook holding the snapshot.
func encode(snapshot persistence.Snapshot) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", layouts[0].name); err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, layout := range layouts[1:] {
		if _, err := f.NewSheet(layout.name); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	sheets := map[string][][]any{
		SheetUsers:        userRows(snapshot.Users),
		SheetDesks:        deskRows(snapshot.Desks),
		SheetReservations: reservationRows(snapshot.Reservations),
		SheetAbsences:     absenceRows(snapshot.Absences),
		SheetMeta:         metaRows(snapshot.Meta),
	}
	for _, layout := range layouts {
		if err := writeSheet(f, layout, sheets[layout.name]); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, layout sheetLayout, rows [][]any) error {
	header := make([]any, len(layout.headers))
	for i, h := range layout.headers {
		header[i] = h
	}
	if err := f.SetSheetRow(layout.name, "A1", &header); err != nil {
		return err
	}
	for i, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(layout.name, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func userRows(users []persistence.User) [][]any {
	out := make([][]any, 0, len(users))
	for _, u := range users {
		out = append(out, []any{u.ID, u.Name, optional(u.Email), u.Enabled, u.IsAdmin, encodeTimestamp(u.CreatedAt)})
	}
	return out
}

func deskRows(desks []persistence.Desk) [][]any {
	out := make([][]any, 0, len(desks))
	for _, d := range desks {
		out = append(out, []any{d.ID, d.Label, d.Enabled, optional(d.OwnerUserID)})
	}
	return out
}

func reservationRows(reservations []persistence.Reservation) [][]any {
	out := make([][]any, 0, len(reservations))
	for _, r := range reservations {
		if r.Auto {
			continue
		}
		out = append(out, []any{
			r.ID, r.UserID, r.DeskID, scheduler.FormatDate(r.Date), string(r.Slot),
			encodeTimestamp(r.CreatedAt), encodeTimestamp(r.UpdatedAt),
		})
	}
	return out
}

func absenceRows(absences []persistence.Absence) [][]any {
	out := make([][]any, 0, len(absences))
	for _, a := range absences {
		out = append(out, []any{
			a.ID, a.OwnerUserID, a.DeskID, scheduler.FormatDate(a.Date), string(a.Slot), encodeTimestamp(a.CreatedAt),
		})
	}
	return out
}

func metaRows(entries []persistence.MetaEntry) [][]any {
	out := make([][]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, []any{e.Key, optional(e.Value)})
	}
	return out
}
