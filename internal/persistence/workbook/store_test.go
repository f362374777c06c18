package workbook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/persistence/workbook"
	"github.com/example/desk-reservations/internal/scheduler"
)

var fixedNow = time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T, mutate ...func(*workbook.Options)) *workbook.Store {
	t.Helper()
	dir := t.TempDir()
	opts := workbook.Options{
		DataFile:       filepath.Join(dir, "data", "reservations.xlsx"),
		BackupDir:      filepath.Join(dir, "data", "backups"),
		LockFile:       filepath.Join(dir, "data", "reservations.lock"),
		LockTimeout:    2 * time.Second,
		LockRetryDelay: 5 * time.Millisecond,
		Now:            func() time.Time { return fixedNow },
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	store, err := workbook.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func backupCount(t *testing.T, store *workbook.Store) int {
	t.Helper()
	entries, err := os.ReadDir(store.BackupDir())
	require.NoError(t, err)
	return len(entries)
}

func sampleSnapshot() persistence.Snapshot {
	day := scheduler.DateOf(fixedNow)
	created := fixedNow.Add(123456 * time.Nanosecond)
	return persistence.Snapshot{
		Users: []persistence.User{
			{ID: "u-owner", Name: "Owner", Email: "owner@ide-tech.com", Enabled: true, CreatedAt: created},
			{ID: "u-admin", Name: "Admin", Email: "admin@ide-tech.com", Enabled: true, IsAdmin: true, CreatedAt: created},
			{ID: "u-off", Name: "Retired", Enabled: false, CreatedAt: created},
		},
		Desks: []persistence.Desk{
			{ID: "D1", Label: "Window", Enabled: true, OwnerUserID: "u-owner"},
			{ID: "D2", Label: "Door", Enabled: false},
		},
		Reservations: []persistence.Reservation{
			{ID: "r-1", UserID: "u-admin", DeskID: "D2", Date: day, Slot: scheduler.SlotAM, CreatedAt: created, UpdatedAt: created},
		},
		Absences: []persistence.Absence{
			{ID: "a-1", OwnerUserID: "u-owner", DeskID: "D1", Date: day.AddDate(0, 0, 1), Slot: scheduler.SlotPM, CreatedAt: created},
		},
		Meta: []persistence.MetaEntry{{Key: "schema_version", Value: "1"}},
	}
}

func TestStoreInit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx))

	f, err := excelize.OpenFile(store.DataFile())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"users", "desks", "reservations", "absences", "meta"}, f.GetSheetList())
	rows, err := f.GetRows("reservations")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"reservation_id", "user_id", "desk_id", "date", "slot", "created_at", "updated_at"}, rows[0])

	snapshot, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Users)
	assert.Empty(t, snapshot.Reservations)
	assert.Equal(t, 0, backupCount(t, store))
}

func TestStoreReadInitializesMissingFile(t *testing.T) {
	store := openStore(t)

	snapshot, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Desks)

	_, err = os.Stat(store.DataFile())
	assert.NoError(t, err)
}

func TestStoreMutateRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	want := sampleSnapshot()

	err := store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
		*snapshot = sampleSnapshot()
		snapshot.Reservations = append(snapshot.Reservations, persistence.Reservation{
			ID: "auto-D1", UserID: "u-owner", DeskID: "D1", Date: scheduler.DateOf(fixedNow), Slot: scheduler.SlotPM, Auto: true,
		})
		return nil
	})
	require.NoError(t, err)

	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, backupCount(t, store))
}

func TestStoreMutateBackups(t *testing.T) {
	t.Run("each successful mutation adds exactly one backup", func(t *testing.T) {
		store := openStore(t)
		ctx := context.Background()
		require.NoError(t, store.Init(ctx))

		for i := 1; i <= 3; i++ {
			err := store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
				snapshot.SetMeta("counter", string(rune('0'+i)))
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, i, backupCount(t, store))
		}

		entries, err := os.ReadDir(store.BackupDir())
		require.NoError(t, err)
		names := []string{entries[0].Name(), entries[1].Name(), entries[2].Name()}
		assert.Contains(t, names, workbook.BackupName(fixedNow))
		assert.Contains(t, names, workbook.BackupName(fixedNow.Add(time.Microsecond)))
		assert.Contains(t, names, workbook.BackupName(fixedNow.Add(2*time.Microsecond)))
	})

	t.Run("failed mutation leaves file and backups untouched", func(t *testing.T) {
		store := openStore(t)
		ctx := context.Background()
		require.NoError(t, store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
			*snapshot = sampleSnapshot()
			return nil
		}))

		before, err := os.ReadFile(store.DataFile())
		require.NoError(t, err)
		backups := backupCount(t, store)

		boom := errors.New("rule violated")
		err = store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
			snapshot.Reservations = nil
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, errors.Is(err, persistence.ErrStoreIO))

		after, err := os.ReadFile(store.DataFile())
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Equal(t, backups, backupCount(t, store))

		entries, err := os.ReadDir(filepath.Dir(store.DataFile()))
		require.NoError(t, err)
		for _, entry := range entries {
			assert.NotContains(t, entry.Name(), ".tmp")
		}
	})
}

func TestBackupName(t *testing.T) {
	stamp := time.Date(2026, time.October, 18, 9, 5, 7, 123456789, time.UTC)
	assert.Equal(t, "reservations-20261018090507123456.xlsx", workbook.BackupName(stamp))
}

func TestStoreLockTimeout(t *testing.T) {
	store := openStore(t, func(opts *workbook.Options) {
		opts.LockTimeout = 100 * time.Millisecond
	})
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))

	holder := flock.New(filepath.Join(filepath.Dir(store.DataFile()), "reservations.lock"))
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Unlock()

	called := false
	err = store.Mutate(ctx, func(*persistence.Snapshot) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrLockTimeout)
	assert.ErrorIs(t, err, persistence.ErrStoreIO)
	assert.False(t, called)

	_, err = store.Read(ctx)
	assert.NoError(t, err, "reads do not wait for the lock")
}

func TestStoreConcurrentMutations(t *testing.T) {
	store := openStore(t, func(opts *workbook.Options) {
		opts.LockTimeout = 30 * time.Second
	})
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
				snapshot.Meta = append(snapshot.Meta, persistence.MetaEntry{Key: string(rune('a' + i)), Value: "x"})
				return nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snapshot, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot.Meta, writers)
	assert.Equal(t, writers, backupCount(t, store))
}

func writeRawWorkbook(t *testing.T, path string, sheets map[string][][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, values := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))
	require.NoError(t, f.SaveAs(path))
}

func TestStoreDecoding(t *testing.T) {
	userHeader := []any{"user_id", "name", "email", "enabled", "is_admin", "created_at"}

	t.Run("tolerates loose booleans, blank rows and missing sheets", func(t *testing.T) {
		store := openStore(t)
		writeRawWorkbook(t, store.DataFile(), map[string][][]any{
			"users": {
				userHeader,
				{"u1", "", "alice@ide-tech.com", "yes", "0", "2026-10-01T08:00:00Z"},
				{nil, "", nil},
				{"u2", "Bob", nil, 1, true, "2026-10-01 08:00:00"},
				{"u3", "Carol", nil, "n", "Y", "2026-10-01T08:00:00.5+02:00"},
			},
			"desks": {
				{"desk_id", "label", "enabled", "owner_user_id"},
				{"D1", "Window", "TRUE", "u1"},
			},
		})

		snapshot, err := store.Read(context.Background())
		require.NoError(t, err)
		require.Len(t, snapshot.Users, 3)

		assert.Equal(t, "alice", snapshot.Users[0].Name)
		assert.True(t, snapshot.Users[0].Enabled)
		assert.False(t, snapshot.Users[0].IsAdmin)
		assert.True(t, snapshot.Users[1].Enabled)
		assert.True(t, snapshot.Users[1].IsAdmin)
		assert.Equal(t, "", snapshot.Users[1].Email)
		assert.False(t, snapshot.Users[2].Enabled)
		assert.True(t, snapshot.Users[2].IsAdmin)
		assert.Equal(t, time.Date(2026, time.October, 1, 6, 0, 0, 500000000, time.UTC), snapshot.Users[2].CreatedAt)

		require.Len(t, snapshot.Desks, 1)
		assert.Equal(t, "u1", snapshot.Desks[0].OwnerUserID)
		assert.Empty(t, snapshot.Reservations)
		assert.Empty(t, snapshot.Meta)
	})

	t.Run("skips rows without an identifier and keeps the rest", func(t *testing.T) {
		var logs bytes.Buffer
		store := openStore(t, func(o *workbook.Options) {
			o.Logger = slog.New(slog.NewTextHandler(&logs, nil))
		})
		writeRawWorkbook(t, store.DataFile(), map[string][][]any{
			"users": {
				userHeader,
				{"u1", "Alice", "alice@ide-tech.com", true, false, "2026-10-01T08:00:00Z"},
				{"u2", "Bob", "bob@ide-tech.com", true, false, "2026-10-01T08:00:00Z"},
				{"u3", "Carol", "carol@ide-tech.com", true, false, "2026-10-01T08:00:00Z"},
				{nil, "Ghost", "ghost@ide-tech.com", true, false, "2026-10-01T08:00:00Z"},
			},
			"reservations": {
				{"reservation_id", "user_id", "desk_id", "date", "slot", "created_at", "updated_at"},
				{"  ", "u1", "D1", "not-a-date", "AM", "", ""},
			},
		})

		snapshot, err := store.Read(context.Background())
		require.NoError(t, err)
		require.Len(t, snapshot.Users, 3)
		for _, u := range snapshot.Users {
			assert.NotEqual(t, "Ghost", u.Name)
		}
		assert.Empty(t, snapshot.Reservations)
		assert.Contains(t, logs.String(), "sheet=users row=5 column=user_id")
		assert.Contains(t, logs.String(), "sheet=reservations row=2 column=reservation_id")

		require.NoError(t, store.Mutate(context.Background(), func(*persistence.Snapshot) error { return nil }))
		snapshot, err = store.Read(context.Background())
		require.NoError(t, err)
		assert.Len(t, snapshot.Users, 3)
	})

	t.Run("rejects identified rows with missing fields", func(t *testing.T) {
		store := openStore(t)
		writeRawWorkbook(t, store.DataFile(), map[string][][]any{
			"reservations": {
				{"reservation_id", "user_id", "desk_id", "date", "slot", "created_at", "updated_at"},
				{"r1", "u1", "D1", nil, "AM", "2026-10-18T09:00:00Z", "2026-10-18T09:00:00Z"},
			},
		})

		_, err := store.Read(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, persistence.ErrStoreIO)

		var decodeErr *persistence.DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, "reservations", decodeErr.Sheet)
		assert.Equal(t, 2, decodeErr.Row)
		assert.Equal(t, "date", decodeErr.Column)
	})

	t.Run("rejects unsupported stored slots", func(t *testing.T) {
		store := openStore(t)
		writeRawWorkbook(t, store.DataFile(), map[string][][]any{
			"reservations": {
				{"reservation_id", "user_id", "desk_id", "date", "slot", "created_at", "updated_at"},
				{"r1", "u1", "D1", "2026-10-19", "FULL", "2026-10-18T09:00:00Z", "2026-10-18T09:00:00Z"},
			},
		})

		_, err := store.Read(context.Background())
		var decodeErr *persistence.DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, "slot", decodeErr.Column)
		assert.ErrorIs(t, err, scheduler.ErrUnsupportedSlot)
	})

	t.Run("mutations refuse to run over undecodable data", func(t *testing.T) {
		store := openStore(t)
		writeRawWorkbook(t, store.DataFile(), map[string][][]any{
			"absences": {
				{"absence_id", "owner_user_id", "desk_id", "date", "slot", "created_at"},
				{"a1", "u1", "D1", "someday", "AM", "2026-10-18T09:00:00Z"},
			},
		})

		called := false
		err := store.Mutate(context.Background(), func(*persistence.Snapshot) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, persistence.ErrStoreIO)
		assert.False(t, called)
		assert.Equal(t, 0, backupCount(t, store))
	})
}
