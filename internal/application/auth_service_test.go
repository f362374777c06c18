package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/desk-reservations/internal/testfixtures"
)

var fastCodeHashParams = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *captureMailer) SendCode(ctx context.Context, recipient, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[recipient] = code
	return nil
}

func (m *captureMailer) last(recipient string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[recipient]
}

type authEnv struct {
	*testEnv
	auth   *AuthService
	mailer *captureMailer
}

func newAuthEnv(t *testing.T, cfg AuthConfig) *authEnv {
	t.Helper()
	env := newTestEnv(t)
	if cfg.AllowedDomain == "" {
		cfg.AllowedDomain = "ide-tech.com"
	}
	cfg.CodeHashParams = fastCodeHashParams
	mailer := &captureMailer{}
	tokens := testfixtures.NewIDGenerator("tok")
	svc := NewAuthServiceWithLogger(cfg, env.directory, mailer, tokens.Next, env.clock.Now, testfixtures.DiscardLogger())
	t.Cleanup(svc.Close)
	return &authEnv{testEnv: env, auth: svc, mailer: mailer}
}

func TestAuthService_IssueAndVerifyCode(t *testing.T) {
	t.Parallel()

	t.Run("codes are single use", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{})

		code, err := env.auth.IssueCode(t.Context(), " Alice@IDE-Tech.com ")
		require.NoError(t, err)
		assert.Len(t, code, 6)

		ok, err := env.auth.VerifyCode(t.Context(), "alice@ide-tech.com", code)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = env.auth.VerifyCode(t.Context(), "alice@ide-tech.com", code)
		require.NoError(t, err)
		assert.False(t, ok, "consumed code must not verify twice")
	})

	t.Run("wrong guesses exhaust the code", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{MaxAttempts: 2})

		code, err := env.auth.IssueCode(t.Context(), "alice@ide-tech.com")
		require.NoError(t, err)
		wrong := "x" + code[1:]

		for i := 0; i < 2; i++ {
			ok, err := env.auth.VerifyCode(t.Context(), "alice@ide-tech.com", wrong)
			require.NoError(t, err)
			assert.False(t, ok)
		}
		ok, err := env.auth.VerifyCode(t.Context(), "alice@ide-tech.com", code)
		require.NoError(t, err)
		assert.False(t, ok, "exhausted code must be rejected")
	})

	t.Run("expired codes are rejected", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{CodeTTL: 5 * time.Minute})

		code, err := env.auth.IssueCode(t.Context(), "alice@ide-tech.com")
		require.NoError(t, err)
		env.clock.Advance(5*time.Minute + time.Second)

		ok, err := env.auth.VerifyCode(t.Context(), "alice@ide-tech.com", code)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("a new code replaces the pending one", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{})

		first, err := env.auth.IssueCode(t.Context(), "alice@ide-tech.com")
		require.NoError(t, err)
		second, err := env.auth.IssueCode(t.Context(), "alice@ide-tech.com")
		require.NoError(t, err)

		if first != second {
			ok, err := env.auth.VerifyCode(t.Context(), "alice@ide-tech.com", first)
			require.NoError(t, err)
			assert.False(t, ok)
		}
		ok, err := env.auth.VerifyCode(t.Context(), "alice@ide-tech.com", second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown emails never verify", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{})

		ok, err := env.auth.VerifyCode(t.Context(), "nobody@ide-tech.com", "123456")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("enforces the allowed domain", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{AllowedDomain: "@IDE-Tech.com"})

		_, err := env.auth.IssueCode(t.Context(), "alice@example.com")
		assert.ErrorIs(t, err, ErrDomainNotAllowed)

		_, err = env.auth.IssueCode(t.Context(), "alice@sub.ide-tech.com.evil")
		assert.ErrorIs(t, err, ErrDomainNotAllowed)

		_, err = env.auth.IssueCode(t.Context(), "not an email")
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)

		_, err = env.auth.IssueCode(t.Context(), "")
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestAuthService_LoginFlow(t *testing.T) {
	t.Parallel()

	t.Run("issues a session for a delivered code", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{SessionTTL: time.Hour})

		require.NoError(t, env.auth.RequestLogin(t.Context(), "Alice@ide-tech.com"))
		code := env.mailer.last("alice@ide-tech.com")
		require.NotEmpty(t, code)

		result, err := env.auth.Login(t.Context(), "alice@ide-tech.com", code)
		require.NoError(t, err)
		assert.Equal(t, aliceID, result.User.ID)
		assert.Equal(t, "tok-001", result.Session.Token)
		assert.Equal(t, env.clock.Now().Add(time.Hour), result.Session.ExpiresAt)

		userID, ok := env.auth.ResolveSession(t.Context(), result.Session.Token)
		require.True(t, ok)
		assert.Equal(t, aliceID, userID)

		env.auth.EndSession(t.Context(), result.Session.Token)
		_, ok = env.auth.ResolveSession(t.Context(), result.Session.Token)
		assert.False(t, ok)
	})

	t.Run("sessions expire with the clock", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{SessionTTL: time.Hour})

		session, err := env.auth.CreateSession(t.Context(), aliceID)
		require.NoError(t, err)
		env.clock.Advance(time.Hour + time.Second)

		_, ok := env.auth.ResolveSession(t.Context(), session.Token)
		assert.False(t, ok)
	})

	t.Run("registers first-time users", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{})

		code, err := env.auth.IssueCode(t.Context(), "newbie@ide-tech.com")
		require.NoError(t, err)
		result, err := env.auth.Login(t.Context(), "newbie@ide-tech.com", code)
		require.NoError(t, err)
		assert.Equal(t, "newbie", result.User.Name)

		snapshot := env.harness.Snapshot(t)
		_, found := snapshot.FindUser(result.User.ID)
		assert.True(t, found)
	})

	t.Run("rejects wrong codes and disabled users", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{})

		_, err := env.auth.IssueCode(t.Context(), "bob@ide-tech.com")
		require.NoError(t, err)
		_, err = env.auth.Login(t.Context(), "bob@ide-tech.com", "not-it")
		assert.ErrorIs(t, err, ErrInvalidCode)

		code, err := env.auth.IssueCode(t.Context(), "carol@ide-tech.com")
		require.NoError(t, err)
		_, err = env.auth.Login(t.Context(), "carol@ide-tech.com", code)
		assert.ErrorIs(t, err, ErrAccountDisabled)
	})

	t.Run("surfaces delivery failures", func(t *testing.T) {
		t.Parallel()
		env := newAuthEnv(t, AuthConfig{})
		env.mailer.err = errors.New("smtp down")

		err := env.auth.RequestLogin(t.Context(), "alice@ide-tech.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "smtp down")
	})
}

func TestCodeHash(t *testing.T) {
	t.Parallel()

	encoded, err := HashCode("424242", fastCodeHashParams)
	require.NoError(t, err)
	assert.NoError(t, CompareCodeHash(encoded, "424242"))
	assert.ErrorIs(t, CompareCodeHash(encoded, "424243"), ErrInvalidCode)
	assert.ErrorIs(t, CompareCodeHash("plain", "424242"), ErrInvalidCodeHash)
	assert.ErrorIs(t, CompareCodeHash("$argon2id$v=1$m=1,t=1,p=1$c2FsdA$aGFzaA", "424242"), ErrIncompatibleHashVersion)
}

func TestBuildCodeMessage(t *testing.T) {
	t.Parallel()

	msg := string(buildCodeMessage("desk@ide-tech.com", "alice@ide-tech.com", "123456", 10*time.Minute))
	assert.Contains(t, msg, "From: desk@ide-tech.com\r\n")
	assert.Contains(t, msg, "To: alice@ide-tech.com\r\n")
	assert.Contains(t, msg, "Subject: Your Desk Reservation OTP\r\n")
	assert.Contains(t, msg, "Your OTP code is 123456. It expires in 10 minutes.")
}

func TestLogMailerNeverFails(t *testing.T) {
	t.Parallel()

	mailer := NewLogMailer(testfixtures.DiscardLogger())
	assert.NoError(t, mailer.SendCode(context.Background(), "alice@ide-tech.com", "123456", time.Minute))
}
