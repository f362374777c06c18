package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/desk-reservations/internal/application"
	"github.com/example/desk-reservations/internal/persistence"
	"github.com/example/desk-reservations/internal/testfixtures"
)

type recordingMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *recordingMailer) SendCode(ctx context.Context, recipient, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[recipient] = code
	return nil
}

func (m *recordingMailer) code(recipient string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[recipient]
}

type apiFixture struct {
	server  http.Handler
	auth    *application.AuthService
	mailer  *recordingMailer
	harness *testfixtures.WorkbookHarness
	clock   *testfixtures.Clock
}

func newAPIFixture(t *testing.T, otpPerMinute int) *apiFixture {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	harness := testfixtures.NewWorkbookHarness(t, clock)
	harness.Seed(t, persistence.Snapshot{
		Users: []persistence.User{
			testfixtures.NewUser(testfixtures.WithUserID("u-alice"), testfixtures.WithUserName("Alice"), testfixtures.WithUserEmail("alice@ide-tech.com")),
			testfixtures.NewUser(testfixtures.WithUserID("u-bob"), testfixtures.WithUserName("Bob"), testfixtures.WithUserEmail("bob@ide-tech.com")),
			testfixtures.NewUser(testfixtures.WithUserID("u-admin"), testfixtures.WithUserName("Ada"), testfixtures.WithUserEmail("ada@ide-tech.com"), testfixtures.WithUserAdmin(true)),
		},
		Desks: []persistence.Desk{
			testfixtures.NewDesk(testfixtures.WithDeskID("D1"), testfixtures.WithDeskLabel("Window")),
			testfixtures.NewDesk(testfixtures.WithDeskID("N1"), testfixtures.WithDeskLabel("Corner"), testfixtures.WithDeskOwner("u-bob")),
		},
	})

	logger := testfixtures.DiscardLogger()
	ids := testfixtures.NewIDGenerator("res")
	directory := application.NewDirectoryServiceWithLogger(harness.Store, ids.Next, clock.Now, logger)
	reservations := application.NewReservationServiceWithLogger(harness.Store, ids.Next, clock.Now, logger)
	admin := application.NewAdminServiceWithLogger(harness.Store, ids.Next, clock.Now, logger)
	mailer := &recordingMailer{}
	auth := application.NewAuthServiceWithLogger(application.AuthConfig{
		AllowedDomain:  "ide-tech.com",
		CodeHashParams: application.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
	}, directory, mailer, testfixtures.NewIDGenerator("tok").Next, clock.Now, logger)
	t.Cleanup(auth.Close)

	router := NewRouter(RouterConfig{
		Auth:         NewAuthHandler(auth, logger),
		Reservations: NewReservationHandler(reservations, logger),
		Directory:    NewDirectoryHandler(directory, logger),
		Admin:        NewAdminHandler(admin, logger),
		Sessions:     auth,
		Users:        directory,
		OTPLimiter:   PerMinute(otpPerMinute),
		Logger:       logger,
	})

	return &apiFixture{server: router, auth: auth, mailer: mailer, harness: harness, clock: clock}
}

func (f *apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	session, err := f.auth.CreateSession(context.Background(), userID)
	require.NoError(t, err)
	return session.Token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.RemoteAddr = "192.0.2.10:4242"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestRouter_HealthAndAuthentication(t *testing.T) {
	t.Parallel()
	api := newAPIFixture(t, 10)

	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[statusResponse](t, rec).Status)

	rec = api.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/me", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_OTPLoginFlow(t *testing.T) {
	t.Parallel()
	api := newAPIFixture(t, 10)

	rec := api.do(t, http.MethodPost, "/api/auth/request-otp", "", map[string]string{"email": "alice@ide-tech.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	code := api.mailer.code("alice@ide-tech.com")
	require.Len(t, code, 6)

	rec = api.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": "alice@ide-tech.com", "code": "000000x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_OTP", decodeBody[errorResponse](t, rec).ErrorCode)

	rec = api.do(t, http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": "alice@ide-tech.com", "code": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeBody[authTokenResponse](t, rec)
	assert.Equal(t, "u-alice", login.User.UserID)
	assert.NotEmpty(t, login.Token)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookieName, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: login.Token})
	cookieRec := httptest.NewRecorder()
	api.server.ServeHTTP(cookieRec, req)
	require.Equal(t, http.StatusOK, cookieRec.Code)
	assert.Equal(t, "alice@ide-tech.com", decodeBody[userDTO](t, cookieRec).Email)

	rec = api.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, "/api/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RequestOTPRejectsForeignDomains(t *testing.T) {
	t.Parallel()
	api := newAPIFixture(t, 10)

	rec := api.do(t, http.MethodPost, "/api/auth/request-otp", "", map[string]string{"email": "eve@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DOMAIN_NOT_ALLOWED", decodeBody[errorResponse](t, rec).ErrorCode)
}

func TestRouter_RateLimitsCodeRequests(t *testing.T) {
	t.Parallel()
	api := newAPIFixture(t, 2)

	body := map[string]string{"email": "alice@ide-tech.com"}
	for i := 0; i < 2; i++ {
		rec := api.do(t, http.MethodPost, "/api/auth/request-otp", "", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := api.do(t, http.MethodPost, "/api/auth/request-otp", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeBody[errorResponse](t, rec).ErrorCode)
}

func TestRouter_ReservationLifecycle(t *testing.T) {
	t.Parallel()
	api := newAPIFixture(t, 10)
	alice := api.token(t, "u-alice")
	bob := api.token(t, "u-bob")
	admin := api.token(t, "u-admin")

	rec := api.do(t, http.MethodPost, "/api/reservations", alice, map[string]string{"desk_id": "D1", "date": "2026-10-19", "slot": "FULL"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decodeBody[[]reservationDTO](t, rec)
	require.Len(t, created, 2)
	assert.Equal(t, "AM", created[0].Slot)
	assert.Equal(t, "2026-10-19", created[0].Date)

	rec = api.do(t, http.MethodPost, "/api/reservations", admin, map[string]string{"desk_id": "D1", "date": "2026-10-19", "slot": "PM"})
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "CONFLICT_DESK", conflict.ErrorCode)
	assert.Equal(t, created[1].ReservationID, conflict.ConflictWith)

	rec = api.do(t, http.MethodPost, "/api/reservations", alice, map[string]string{"desk_id": "N1", "date": "2026-10-20", "slot": "AM"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT_NOT_RELEASED", decodeBody[errorResponse](t, rec).ErrorCode)

	rec = api.do(t, http.MethodPost, "/api/reservations", alice, map[string]string{"desk_id": "D1", "date": "2026-10-23", "slot": "AM"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	invalid := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "VALIDATION_FAILED", invalid.ErrorCode)
	assert.Contains(t, invalid.Errors, "date")

	rec = api.do(t, http.MethodPost, "/api/reservations", alice, map[string]string{"desk_id": "D1", "date": "19/10/2026", "slot": "AM"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/reservations?start_date=2026-10-19&end_date=2026-10-19", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[[]reservationDTO](t, rec)
	require.Len(t, listed, 4)
	autoRows := 0
	for _, row := range listed {
		if row.Auto {
			autoRows++
			assert.Equal(t, "u-bob", row.UserID)
		}
	}
	assert.Equal(t, 2, autoRows)

	rec = api.do(t, http.MethodPatch, "/api/reservations/"+created[0].ReservationID, bob, map[string]string{"date": "2026-10-21"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPatch, "/api/reservations/"+created[0].ReservationID, alice, map[string]string{"date": "2026-10-21"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2026-10-21", decodeBody[reservationDTO](t, rec).Date)

	rec = api.do(t, http.MethodDelete, "/api/reservations/"+created[1].ReservationID, alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodDelete, "/api/reservations/"+created[1].ReservationID, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_NamedDeskAbsences(t *testing.T) {
	t.Parallel()
	api := newAPIFixture(t, 10)
	bob := api.token(t, "u-bob")
	alice := api.token(t, "u-alice")

	rec := api.do(t, http.MethodPut, "/api/named-desk/absences", alice, map[string]any{"desk_id": "N1", "date": "2026-10-20", "slot": "AM", "released": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/named-desk/absences", bob, map[string]any{"desk_id": "N1", "date": "2026-10-20", "slot": "AM"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/named-desk/absences", bob, map[string]any{"desk_id": "N1", "date": "2026-10-20", "slot": "FULL", "released": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[[]absenceDTO](t, rec), 2)

	rec = api.do(t, http.MethodPost, "/api/reservations", alice, map[string]string{"desk_id": "N1", "date": "2026-10-20", "slot": "AM"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouter_AdminEndpoints(t *testing.T) {
	t.Parallel()
	api := newAPIFixture(t, 10)
	alice := api.token(t, "u-alice")
	admin := api.token(t, "u-admin")

	rec := api.do(t, http.MethodGet, "/api/admin/stats", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[statsResponse](t, rec)
	assert.Equal(t, 3, stats.ActiveUsers)
	assert.Equal(t, 2, stats.EnabledDesks)

	rec = api.do(t, http.MethodPost, "/api/admin/desks", admin, map[string]any{"label": "Annex", "owner_user_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/admin/desks", admin, map[string]any{"desk_id": "D2", "label": "Annex"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	desk := decodeBody[deskDTO](t, rec)
	assert.Equal(t, "D2", desk.DeskID)
	assert.True(t, desk.Enabled)
	assert.Nil(t, desk.OwnerUserID)

	rec = api.do(t, http.MethodGet, "/api/desks", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]deskDTO](t, rec), 3)

	rec = api.do(t, http.MethodPost, "/api/admin/users", admin, map[string]any{"email": "alice@ide-tech.com", "enabled": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[userDTO](t, rec).Enabled)

	rec = api.do(t, http.MethodGet, "/api/me", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_DISABLED", decodeBody[errorResponse](t, rec).ErrorCode)

	rec = api.do(t, http.MethodGet, "/api/users", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]userDTO](t, rec), 2)

	rec = api.do(t, http.MethodPost, "/api/admin/force-cancel", admin, map[string]string{"reservation_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
