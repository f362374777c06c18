package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/desk-reservations/internal/persistence"
)

// errAlreadyRegistered aborts a provisioning mutation that raced with another
// login for the same email; nothing is written.
var errAlreadyRegistered = errors.New("application: user already registered")

// DirectoryService answers user and desk lookups for authenticated callers and
// provisions accounts on first login.
type DirectoryService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewDirectoryService constructs a directory service with the provided dependencies.
func NewDirectoryService(store persistence.Store, idGenerator func() string, now func() time.Time) *DirectoryService {
	return NewDirectoryServiceWithLogger(store, idGenerator, now, nil)
}

// NewDirectoryServiceWithLogger constructs a directory service with a specified logger.
func NewDirectoryServiceWithLogger(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *DirectoryService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &DirectoryService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *DirectoryService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "DirectoryService", operation, attrs...)
}

func (s *DirectoryService) read(ctx context.Context) (persistence.Snapshot, error) {
	if s == nil {
		return persistence.Snapshot{}, fmt.Errorf("DirectoryService is nil")
	}
	if s.store == nil {
		return persistence.Snapshot{}, fmt.Errorf("directory store not configured")
	}
	return s.store.Read(ctx)
}

// ListUsers returns enabled users ordered by name.
func (s *DirectoryService) ListUsers(ctx context.Context) ([]User, error) {
	snapshot, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]User, 0, len(snapshot.Users))
	for _, record := range snapshot.Users {
		if record.Enabled {
			users = append(users, userFromRecord(record))
		}
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := strings.ToLower(users[i].Name), strings.ToLower(users[j].Name)
		if a != b {
			return a < b
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// ListDesks returns enabled desks ordered by label.
func (s *DirectoryService) ListDesks(ctx context.Context) ([]Desk, error) {
	snapshot, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	desks := make([]Desk, 0, len(snapshot.Desks))
	for _, record := range snapshot.Desks {
		if record.Enabled {
			desks = append(desks, deskFromRecord(record))
		}
	}
	sort.SliceStable(desks, func(i, j int) bool {
		if desks[i].Label != desks[j].Label {
			return desks[i].Label < desks[j].Label
		}
		return desks[i].ID < desks[j].ID
	})
	return desks, nil
}

// GetActiveUser returns the user with the given ID when it exists and is enabled.
func (s *DirectoryService) GetActiveUser(ctx context.Context, id string) (User, error) {
	snapshot, err := s.read(ctx)
	if err != nil {
		return User{}, err
	}
	record, ok := snapshot.FindUser(id)
	if !ok {
		return User{}, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	if !record.Enabled {
		return User{}, ErrAccountDisabled
	}
	return userFromRecord(record), nil
}

// FindUserByEmail returns the user registered with the email, ignoring case.
func (s *DirectoryService) FindUserByEmail(ctx context.Context, email string) (User, error) {
	snapshot, err := s.read(ctx)
	if err != nil {
		return User{}, err
	}
	if record, ok := findUserByEmail(&snapshot, email); ok {
		return userFromRecord(record), nil
	}
	return User{}, fmt.Errorf("user with email %q: %w", email, ErrNotFound)
}

func findUserByEmail(snapshot *persistence.Snapshot, email string) (persistence.User, bool) {
	email = strings.TrimSpace(email)
	if email == "" {
		return persistence.User{}, false
	}
	for _, record := range snapshot.Users {
		if strings.EqualFold(record.Email, email) {
			return record, true
		}
	}
	return persistence.User{}, false
}

// EnsureUserForEmail returns the account registered with the email, creating
// an enabled non-admin account on first use. Disabled accounts are rejected.
func (s *DirectoryService) EnsureUserForEmail(ctx context.Context, email string) (user User, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if s == nil {
		err = fmt.Errorf("DirectoryService is nil")
		return
	}

	logger := s.loggerWith(ctx, "EnsureUserForEmail", "email", email)
	created := false
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to resolve user for email", err)
			return
		}
		if created {
			logger.With("user_id", user.ID).InfoContext(ctx, "user self-registered")
		}
	}()

	if email == "" {
		err = newValidationError("email", "email is required")
		return
	}

	var snapshot persistence.Snapshot
	snapshot, err = s.read(ctx)
	if err != nil {
		return
	}
	if record, ok := findUserByEmail(&snapshot, email); ok {
		if !record.Enabled {
			err = ErrAccountDisabled
			return
		}
		user = userFromRecord(record)
		return
	}

	err = s.store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
		if record, ok := findUserByEmail(snapshot, email); ok {
			if !record.Enabled {
				return ErrAccountDisabled
			}
			user = userFromRecord(record)
			return errAlreadyRegistered
		}
		record := persistence.User{
			ID:        s.idGenerator(),
			Name:      defaultUserName("", email),
			Email:     email,
			Enabled:   true,
			CreatedAt: s.now().UTC(),
		}
		snapshot.Users = append(snapshot.Users, record)
		user = userFromRecord(record)
		created = true
		return nil
	})
	if errors.Is(err, errAlreadyRegistered) {
		err = nil
	}
	if err != nil {
		user = User{}
	}
	return
}
