package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/desk-reservations/internal/persistence"
)

// AdminService exposes directory maintenance and reporting to administrators.
// Every method rejects non-admin principals before touching the store.
type AdminService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAdminService constructs an admin service with the provided dependencies.
func NewAdminService(store persistence.Store, idGenerator func() string, now func() time.Time) *AdminService {
	return NewAdminServiceWithLogger(store, idGenerator, now, nil)
}

// NewAdminServiceWithLogger constructs an admin service with a specified logger.
func NewAdminServiceWithLogger(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AdminService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &AdminService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *AdminService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AdminService", operation, attrs...)
}

func requireAdmin(principal Principal) error {
	if !principal.IsAdmin {
		return fmt.Errorf("admin required: %w", ErrForbidden)
	}
	return nil
}

// UpsertUser updates the user matching the email (or, without email, the
// name) or creates a new one.
func (s *AdminService) UpsertUser(ctx context.Context, principal Principal, input UserInput) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}

	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	logger := s.loggerWith(ctx, "UpsertUser",
		"principal_id", principal.UserID,
		"email", email,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to upsert user", err)
			return
		}
		logger.With("user_id", user.ID, "enabled", user.Enabled, "is_admin", user.IsAdmin).InfoContext(ctx, "user upserted")
	}()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if vErr := validateUserInput(name, email); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.store == nil {
		err = fmt.Errorf("admin store not configured")
		return
	}

	err = s.store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
		for i := range snapshot.Users {
			existing := &snapshot.Users[i]
			if !sameUser(*existing, name, email) {
				continue
			}
			if name != "" {
				existing.Name = name
			}
			if email != "" {
				existing.Email = email
			}
			existing.Enabled = input.Enabled
			existing.IsAdmin = input.IsAdmin
			user = userFromRecord(*existing)
			return nil
		}

		record := persistence.User{
			ID:        s.idGenerator(),
			Name:      defaultUserName(name, email),
			Email:     email,
			Enabled:   input.Enabled,
			IsAdmin:   input.IsAdmin,
			CreatedAt: s.now().UTC(),
		}
		snapshot.Users = append(snapshot.Users, record)
		user = userFromRecord(record)
		return nil
	})
	if err != nil {
		user = User{}
	}
	return
}

func validateUserInput(name, email string) *ValidationError {
	vErr := &ValidationError{}
	if name == "" && email == "" {
		vErr.add("email", "email or name is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
			vErr.add("email", "email is invalid")
		}
	}
	return vErr
}

func sameUser(record persistence.User, name, email string) bool {
	if email != "" {
		return strings.EqualFold(record.Email, email)
	}
	return strings.EqualFold(strings.TrimSpace(record.Name), name)
}

func defaultUserName(name, email string) string {
	if name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// UpsertDesk updates the desk with the given ID or creates a new desk. A named
// desk owner must be an existing user.
func (s *AdminService) UpsertDesk(ctx context.Context, principal Principal, input DeskInput) (desk Desk, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}

	deskID := strings.TrimSpace(input.ID)
	label := strings.TrimSpace(input.Label)
	ownerID := strings.TrimSpace(input.OwnerUserID)
	logger := s.loggerWith(ctx, "UpsertDesk",
		"principal_id", principal.UserID,
		"desk_id", deskID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to upsert desk", err)
			return
		}
		logger.With("desk_id", desk.ID, "enabled", desk.Enabled, "owner_user_id", desk.OwnerUserID).InfoContext(ctx, "desk upserted")
	}()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if label == "" {
		err = newValidationError("label", "label is required")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("admin store not configured")
		return
	}

	err = s.store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
		if ownerID != "" {
			if _, ok := snapshot.FindUser(ownerID); !ok {
				return fmt.Errorf("desk owner user not found: %w", ErrNotFound)
			}
		}

		if deskID != "" {
			for i := range snapshot.Desks {
				existing := &snapshot.Desks[i]
				if existing.ID != deskID {
					continue
				}
				existing.Label = label
				existing.Enabled = input.Enabled
				existing.OwnerUserID = ownerID
				desk = deskFromRecord(*existing)
				return nil
			}
		}

		record := persistence.Desk{
			ID:          deskID,
			Label:       label,
			Enabled:     input.Enabled,
			OwnerUserID: ownerID,
		}
		if record.ID == "" {
			record.ID = s.idGenerator()
		}
		snapshot.Desks = append(snapshot.Desks, record)
		desk = deskFromRecord(record)
		return nil
	})
	if err != nil {
		desk = Desk{}
	}
	return
}

// ForceCancel deletes any explicit reservation.
func (s *AdminService) ForceCancel(ctx context.Context, principal Principal, reservationID string) (err error) {
	if s == nil {
		return fmt.Errorf("AdminService is nil")
	}

	reservationID = strings.TrimSpace(reservationID)
	logger := s.loggerWith(ctx, "ForceCancel",
		"principal_id", principal.UserID,
		"reservation_id", reservationID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to force cancel reservation", err)
			return
		}
		logger.InfoContext(ctx, "reservation force cancelled")
	}()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if s.store == nil {
		return fmt.Errorf("admin store not configured")
	}

	return s.store.Mutate(ctx, func(snapshot *persistence.Snapshot) error {
		idx := snapshot.ReservationIndex(reservationID)
		if idx < 0 {
			return fmt.Errorf("reservation %q: %w", reservationID, ErrNotFound)
		}
		snapshot.RemoveReservation(idx)
		return nil
	})
}

// Stats counts stored reservations, enabled users and enabled desks.
func (s *AdminService) Stats(ctx context.Context, principal Principal) (stats Stats, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Stats", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to compute stats", err)
		}
	}()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if s.store == nil {
		err = fmt.Errorf("admin store not configured")
		return
	}

	var snapshot persistence.Snapshot
	snapshot, err = s.store.Read(ctx)
	if err != nil {
		return
	}

	stats.TotalReservations = len(snapshot.Reservations)
	for _, u := range snapshot.Users {
		if u.Enabled {
			stats.ActiveUsers++
		}
	}
	for _, d := range snapshot.Desks {
		if d.Enabled {
			stats.EnabledDesks++
		}
	}
	return
}
