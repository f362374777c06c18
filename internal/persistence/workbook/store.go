// Package workbook persists the reservation data set in a single xlsx file.
//
// Reads open the current file without locking; writers serialize on a lock
// file, reload the data, and replace the main file through a temp file and an
// atomic rename after copying the previous version into the backup directory.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/xuri/excelize/v2"

	"github.com/example/desk-reservations/internal/persistence"
)

const (
	defaultLockTimeout    = 10 * time.Second
	defaultLockRetryDelay = 50 * time.Millisecond
	backupPrefix          = "reservations-"
	backupStampLayout     = "20060102150405"
)

// Options configures a Store.
type Options struct {
	DataFile       string
	BackupDir      string
	LockFile       string
	LockTimeout    time.Duration
	LockRetryDelay time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

// Store is a persistence.Store backed by an xlsx workbook on local disk.
type Store struct {
	dataFile       string
	backupDir      string
	lockTimeout    time.Duration
	lockRetryDelay time.Duration
	now            func() time.Time
	logger         *slog.Logger

	// sem serializes writers inside this process; the flock only excludes
	// other processes because it is re-entrant for its holder.
	sem  chan struct{}
	lock *flock.Flock
}

var _ persistence.Store = (*Store)(nil)

// Open validates options and prepares the data, backup and lock directories.
// The workbook itself is created lazily by Init, Read or Mutate.
func Open(opts Options) (*Store, error) {
	if opts.DataFile == "" {
		return nil, fmt.Errorf("workbook: data file is required")
	}
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(filepath.Dir(opts.DataFile), "backups")
	}
	if opts.LockFile == "" {
		opts.LockFile = opts.DataFile + ".lock"
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.LockRetryDelay <= 0 {
		opts.LockRetryDelay = defaultLockRetryDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	for _, dir := range []string{filepath.Dir(opts.DataFile), opts.BackupDir, filepath.Dir(opts.LockFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &persistence.IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	return &Store{
		dataFile:       opts.DataFile,
		backupDir:      opts.BackupDir,
		lockTimeout:    opts.LockTimeout,
		lockRetryDelay: opts.LockRetryDelay,
		now:            opts.Now,
		logger:         opts.Logger.With("component", "workbook_store"),
		sem:            make(chan struct{}, 1),
		lock:           flock.New(opts.LockFile),
	}, nil
}

// DataFile returns the path of the main workbook.
func (s *Store) DataFile() string {
	return s.dataFile
}

// BackupDir returns the directory receiving pre-write copies.
func (s *Store) BackupDir() string {
	return s.backupDir
}

// Close releases the lock file handle.
func (s *Store) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	return s.lock.Close()
}

// Init creates an empty workbook with all header rows when none exists yet.
func (s *Store) Init(ctx context.Context) error {
	if s.exists() {
		return nil
	}
	return s.withLock(ctx, func() error {
		return s.initLocked()
	})
}

// Read decodes the current workbook without taking the write lock.
func (s *Store) Read(ctx context.Context) (persistence.Snapshot, error) {
	if err := s.Init(ctx); err != nil {
		return persistence.Snapshot{}, err
	}
	return s.load()
}

// Mutate reloads the workbook under the lock and applies fn. When fn returns an
// error nothing is written and the error is returned unchanged. Otherwise the
// snapshot is encoded to a temp file, the previous workbook is copied into the
// backup directory and the temp file is renamed over the main file.
func (s *Store) Mutate(ctx context.Context, fn persistence.MutateFunc) error {
	if fn == nil {
		return fmt.Errorf("workbook: mutate function is nil")
	}
	return s.withLock(ctx, func() error {
		if err := s.initLocked(); err != nil {
			return err
		}
		snapshot, err := s.load()
		if err != nil {
			return err
		}
		if err := fn(&snapshot); err != nil {
			return err
		}
		return s.persist(snapshot)
	})
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
	case <-lockCtx.Done():
		return s.lockError(ctx, lockCtx.Err())
	}
	defer func() { <-s.sem }()

	locked, err := s.lock.TryLockContext(lockCtx, s.lockRetryDelay)
	if err != nil || !locked {
		if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return s.lockError(ctx, lockCtx.Err())
		}
		return &persistence.IOError{Op: "lock", Path: s.lock.Path(), Err: err}
	}
	defer func() {
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			s.logger.ErrorContext(ctx, "failed to release store lock", "error", unlockErr)
		}
	}()

	return fn()
}

func (s *Store) lockError(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return &persistence.IOError{Op: "lock", Path: s.lock.Path(), Err: ctx.Err()}
	}
	s.logger.WarnContext(ctx, "store lock wait exceeded", "timeout", s.lockTimeout.String(), "cause", cause)
	return &persistence.IOError{Op: "lock", Path: s.lock.Path(), Err: persistence.ErrLockTimeout}
}

func (s *Store) exists() bool {
	_, err := os.Stat(s.dataFile)
	return err == nil
}

func (s *Store) initLocked() error {
	if s.exists() {
		return nil
	}
	f, err := encode(persistence.Snapshot{})
	if err != nil {
		return &persistence.IOError{Op: "encode", Path: s.dataFile, Err: err}
	}
	defer f.Close()

	tmpPath, err := s.writeTemp(f)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.dataFile); err != nil {
		_ = os.Remove(tmpPath)
		return &persistence.IOError{Op: "rename", Path: s.dataFile, Err: err}
	}
	syncDir(filepath.Dir(s.dataFile))
	s.logger.Info("workbook initialized", "path", s.dataFile)
	return nil
}

func (s *Store) load() (persistence.Snapshot, error) {
	f, err := excelize.OpenFile(s.dataFile)
	if err != nil {
		return persistence.Snapshot{}, &persistence.IOError{Op: "open", Path: s.dataFile, Err: err}
	}
	defer f.Close()

	snapshot, err := decode(f, s.logger)
	if err != nil {
		return persistence.Snapshot{}, &persistence.IOError{Op: "decode", Path: s.dataFile, Err: err}
	}
	return snapshot, nil
}

func (s *Store) persist(snapshot persistence.Snapshot) error {
	f, err := encode(snapshot)
	if err != nil {
		return &persistence.IOError{Op: "encode", Path: s.dataFile, Err: err}
	}
	defer f.Close()

	tmpPath, err := s.writeTemp(f)
	if err != nil {
		return err
	}

	backupPath, err := s.backup()
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.dataFile); err != nil {
		_ = os.Remove(tmpPath)
		return &persistence.IOError{Op: "rename", Path: s.dataFile, Err: err}
	}
	syncDir(filepath.Dir(s.dataFile))

	s.logger.Debug("workbook replaced", "path", s.dataFile, "backup", backupPath)
	return nil
}

// writeTemp encodes the workbook into a synced temp file next to the data file
// so the final rename never crosses filesystems.
func (s *Store) writeTemp(f *excelize.File) (string, error) {
	dir := filepath.Dir(s.dataFile)
	tmp, err := os.CreateTemp(dir, ".reservations-*.xlsx.tmp")
	if err != nil {
		return "", &persistence.IOError{Op: "create temp", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", &persistence.IOError{Op: "write temp", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", &persistence.IOError{Op: "sync temp", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", &persistence.IOError{Op: "close temp", Path: tmpPath, Err: err}
	}
	return tmpPath, nil
}

// backup copies the current main file into a uniquely named backup file.
func (s *Store) backup() (string, error) {
	src, err := os.Open(s.dataFile)
	if err != nil {
		return "", &persistence.IOError{Op: "open", Path: s.dataFile, Err: err}
	}
	defer src.Close()

	dst, path, err := s.createBackupFile()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", &persistence.IOError{Op: "copy backup", Path: path, Err: err}
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(path)
		return "", &persistence.IOError{Op: "sync backup", Path: path, Err: err}
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", &persistence.IOError{Op: "close backup", Path: path, Err: err}
	}
	return path, nil
}

// createBackupFile picks the first free microsecond stamp at or after now.
func (s *Store) createBackupFile() (*os.File, string, error) {
	stamp := s.now().UTC()
	for attempt := 0; attempt < 1000; attempt++ {
		path := filepath.Join(s.backupDir, BackupName(stamp))
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", &persistence.IOError{Op: "create backup", Path: path, Err: err}
		}
		stamp = stamp.Add(time.Microsecond)
	}
	return nil, "", &persistence.IOError{Op: "create backup", Path: s.backupDir, Err: fs.ErrExist}
}

// BackupName returns the backup file name for the given instant.
func BackupName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%s%06d.xlsx", backupPrefix, t.Format(backupStampLayout), t.Nanosecond()/1000)
}

func syncDir(path string) {
	dir, err := os.Open(path)
	if err != nil {
		return
	}
	_ = dir.Sync()
	_ = dir.Close()
}
