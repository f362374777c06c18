package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/persistence/workbook"
)

// WorkbookHarness provides a workbook store rooted in a temporary directory.
type WorkbookHarness struct {
	Store *workbook.Store
	Clock *Clock
	Dir   string
}

// NewWorkbookHarness opens an initialized store whose backup names follow the
// supplied clock. A nil clock starts at ReferenceTime. The store is closed via
// tb.Cleanup.
func NewWorkbookHarness(tb testing.TB, clock *Clock) *WorkbookHarness {
	tb.Helper()

	if clock == nil {
		clock = NewClock(time.Time{})
	}
	dir := tb.TempDir()
	store, err := workbook.Open(workbook.Options{
		DataFile:       filepath.Join(dir, "reservations.xlsx"),
		BackupDir:      filepath.Join(dir, "backups"),
		LockFile:       filepath.Join(dir, "reservations.lock"),
		LockTimeout:    5 * time.Second,
		LockRetryDelay: 5 * time.Millisecond,
		Now:            clock.Now,
		Logger:         DiscardLogger(),
	})
	if err != nil {
		tb.Fatalf("failed to open workbook store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := store.Init(context.Background()); err != nil {
		tb.Fatalf("failed to initialize workbook store: %v", err)
	}
	return &WorkbookHarness{Store: store, Clock: clock, Dir: dir}
}

// Seed appends the records of the snapshot to the store.
func (h *WorkbookHarness) Seed(tb testing.TB, seed persistence.Snapshot) {
	tb.Helper()
	err := h.Store.Mutate(context.Background(), func(snapshot *persistence.Snapshot) error {
		snapshot.Users = append(snapshot.Users, seed.Users...)
		snapshot.Desks = append(snapshot.Desks, seed.Desks...)
		snapshot.Reservations = append(snapshot.Reservations, seed.Reservations...)
		snapshot.Absences = append(snapshot.Absences, seed.Absences...)
		snapshot.Meta = append(snapshot.Meta, seed.Meta...)
		return nil
	})
	if err != nil {
		tb.Fatalf("failed to seed workbook store: %v", err)
	}
}

// Snapshot reads the current store content.
func (h *WorkbookHarness) Snapshot(tb testing.TB) persistence.Snapshot {
	tb.Helper()
	snapshot, err := h.Store.Read(context.Background())
	if err != nil {
		tb.Fatalf("failed to read workbook store: %v", err)
	}
	return snapshot
}

// BackupCount returns the number of files in the backup directory.
func (h *WorkbookHarness) BackupCount(tb testing.TB) int {
	tb.Helper()
	entries, err := os.ReadDir(h.Store.BackupDir())
	if err != nil {
		tb.Fatalf("failed to list backups: %v", err)
	}
	return len(entries)
}

// DataFileBytes returns the raw content of the main workbook.
func (h *WorkbookHarness) DataFileBytes(tb testing.TB) []byte {
	tb.Helper()
	data, err := os.ReadFile(h.Store.DataFile())
	if err != nil {
		tb.Fatalf("failed to read data file: %v", err)
	}
	return data
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
