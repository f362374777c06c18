package application

import (
	"errors"
	"testing"
	"time"

	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/scheduler"
	"github.com/example/desk-reservations/internal/testfixtures"
)

const (
	aliceID = "u-alice"
	bobID   = "u-bob"
	ownerID = "u-owner"
	adminID = "u-admin"
	carolID = "u-carol"

	deskFree      = "D1"
	deskSpare     = "D2"
	deskNamed     = "N1"
	deskDisabled  = "X1"
	deskNamedOff  = "N2"
	missingDeskID = "nope"
)

var (
	alicePrincipal = Principal{UserID: aliceID}
	bobPrincipal   = Principal{UserID: bobID}
	ownerPrincipal = Principal{UserID: ownerID}
	adminPrincipal = Principal{UserID: adminID, IsAdmin: true}
)

type testEnv struct {
	harness      *testfixtures.WorkbookHarness
	clock        *testfixtures.Clock
	ids          *testfixtures.IDGenerator
	reservations *ReservationService
	admin        *AdminService
	directory    *DirectoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	harness := testfixtures.NewWorkbookHarness(t, clock)
	harness.Seed(t, persistence.Snapshot{
		Users: []persistence.User{
			testfixtures.NewUser(testfixtures.WithUserID(aliceID), testfixtures.WithUserName("Alice"), testfixtures.WithUserEmail("alice@ide-tech.com")),
			testfixtures.NewUser(testfixtures.WithUserID(bobID), testfixtures.WithUserName("Bob"), testfixtures.WithUserEmail("bob@ide-tech.com")),
			testfixtures.NewUser(testfixtures.WithUserID(ownerID), testfixtures.WithUserName("Olga"), testfixtures.WithUserEmail("olga@ide-tech.com")),
			testfixtures.NewUser(testfixtures.WithUserID(adminID), testfixtures.WithUserName("Ada"), testfixtures.WithUserEmail("ada@ide-tech.com"), testfixtures.WithUserAdmin(true)),
			testfixtures.NewUser(testfixtures.WithUserID(carolID), testfixtures.WithUserName("Carol"), testfixtures.WithUserEmail("carol@ide-tech.com"), testfixtures.WithUserDisabled()),
		},
		Desks: []persistence.Desk{
			testfixtures.NewDesk(testfixtures.WithDeskID(deskFree), testfixtures.WithDeskLabel("Window 1")),
			testfixtures.NewDesk(testfixtures.WithDeskID(deskSpare), testfixtures.WithDeskLabel("Window 2")),
			testfixtures.NewDesk(testfixtures.WithDeskID(deskNamed), testfixtures.WithDeskLabel("Corner"), testfixtures.WithDeskOwner(ownerID)),
			testfixtures.NewDesk(testfixtures.WithDeskID(deskDisabled), testfixtures.WithDeskLabel("Broken"), testfixtures.WithDeskDisabled()),
			testfixtures.NewDesk(testfixtures.WithDeskID(deskNamedOff), testfixtures.WithDeskLabel("Storage"), testfixtures.WithDeskOwner(bobID), testfixtures.WithDeskDisabled()),
		},
	})

	ids := testfixtures.NewIDGenerator("res")
	logger := testfixtures.DiscardLogger()
	return &testEnv{
		harness:      harness,
		clock:        clock,
		ids:          ids,
		reservations: NewReservationServiceWithLogger(harness.Store, ids.Next, clock.Now, logger),
		admin:        NewAdminServiceWithLogger(harness.Store, ids.Next, clock.Now, logger),
		directory:    NewDirectoryServiceWithLogger(harness.Store, ids.Next, clock.Now, logger),
	}
}

func (e *testEnv) mustCreate(t *testing.T, principal Principal, deskID string, day int, slot scheduler.Slot) []Reservation {
	t.Helper()
	created, err := e.reservations.CreateReservation(t.Context(), CreateReservationParams{
		Principal: principal,
		DeskID:    deskID,
		Date:      e.clock.Day(day),
		Slot:      slot,
	})
	if err != nil {
		t.Fatalf("CreateReservation(%s, %s, day %d, %s) failed: %v", principal.UserID, deskID, day, slot, err)
	}
	return created
}

func (e *testEnv) mustRelease(t *testing.T, deskID string, day int, slot scheduler.Slot, released bool) []Absence {
	t.Helper()
	absences, err := e.reservations.UpsertAbsence(t.Context(), UpsertAbsenceParams{
		Principal: ownerPrincipal,
		DeskID:    deskID,
		Date:      e.clock.Day(day),
		Slot:      slot,
		Released:  released,
	})
	if err != nil {
		t.Fatalf("UpsertAbsence failed: %v", err)
	}
	return absences
}

func requireValidationField(t *testing.T, err error, field string) *ValidationError {
	t.Helper()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors[field]; !ok {
		t.Fatalf("expected field %q in validation error, got %#v", field, vErr.FieldErrors)
	}
	return vErr
}

func requireConflictKind(t *testing.T, err error, kind ConflictKind) *ConflictError {
	t.Helper()
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if cErr.Kind != kind {
		t.Fatalf("expected %s conflict, got %s (%s)", kind, cErr.Kind, cErr.Message)
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict error to match ErrConflict")
	}
	return cErr
}
