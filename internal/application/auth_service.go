package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// UserProvisioner resolves the account behind a verified email address.
type UserProvisioner interface {
	EnsureUserForEmail(ctx context.Context, email string) (User, error)
}

// AuthConfig tunes one-time codes and sessions.
type AuthConfig struct {
	AllowedDomain  string
	CodeTTL        time.Duration
	MaxAttempts    int
	CodeLength     int
	SessionTTL     time.Duration
	CodeHashParams Argon2idParams
}

func (c AuthConfig) withDefaults() AuthConfig {
	c.AllowedDomain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.AllowedDomain), "@"))
	if c.CodeTTL <= 0 {
		c.CodeTTL = 10 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.CodeLength <= 0 {
		c.CodeLength = 6
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 12 * time.Hour
	}
	if c.CodeHashParams.isZero() {
		c.CodeHashParams = DefaultCodeHashParams
	}
	return c
}

type pendingCode struct {
	hash         string
	expiresAt    time.Time
	attemptsLeft int
}

type sessionState struct {
	userID    string
	createdAt time.Time
	expiresAt time.Time
}

// AuthService issues one-time email codes and the sessions they unlock.
// Pending codes and sessions live in memory and are lost on restart.
type AuthService struct {
	cfg            AuthConfig
	users          UserProvisioner
	mailer         Mailer
	tokenGenerator func() string
	now            func() time.Time
	logger         *slog.Logger

	mu       sync.Mutex
	codes    *cache.Cache
	sessions *cache.Cache
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(cfg AuthConfig, users UserProvisioner, mailer Mailer, tokenGenerator func() string, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(cfg, users, mailer, tokenGenerator, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(cfg AuthConfig, users UserProvisioner, mailer Mailer, tokenGenerator func() string, now func() time.Time, logger *slog.Logger) *AuthService {
	cfg = cfg.withDefaults()
	logger = defaultLogger(logger)
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	if tokenGenerator == nil {
		tokenGenerator = randomToken
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		cfg:            cfg,
		users:          users,
		mailer:         mailer,
		tokenGenerator: tokenGenerator,
		now:            now,
		logger:         logger,
		codes:          cache.New(cfg.CodeTTL, cfg.CodeTTL),
		sessions:       cache.New(cfg.SessionTTL, time.Hour),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Close drops every pending code and session.
func (s *AuthService) Close() {
	if s == nil {
		return
	}
	s.codes.Flush()
	s.sessions.Flush()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) checkEmail(email string) error {
	if email == "" {
		return newValidationError("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return newValidationError("email", "email is invalid")
	}
	if s.cfg.AllowedDomain != "" && !strings.HasSuffix(email, "@"+s.cfg.AllowedDomain) {
		return fmt.Errorf("only @%s emails are allowed: %w", s.cfg.AllowedDomain, ErrDomainNotAllowed)
	}
	return nil
}

// IssueCode generates a fresh numeric code for the email, replacing any
// pending one, and returns it in clear text for delivery.
func (s *AuthService) IssueCode(ctx context.Context, email string) (code string, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "IssueCode", "email", email)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to issue code", err)
			return
		}
		logger.InfoContext(ctx, "code issued")
	}()

	if err = s.checkEmail(email); err != nil {
		return
	}

	code, err = randomDigits(s.cfg.CodeLength)
	if err != nil {
		return
	}
	var hash string
	hash, err = HashCode(code, s.cfg.CodeHashParams)
	if err != nil {
		code = ""
		return
	}

	s.mu.Lock()
	s.codes.Set(email, &pendingCode{
		hash:         hash,
		expiresAt:    s.now().Add(s.cfg.CodeTTL),
		attemptsLeft: s.cfg.MaxAttempts,
	}, s.cfg.CodeTTL)
	s.mu.Unlock()
	return
}

// VerifyCode reports whether code is the pending code for email. A correct
// code is consumed. A wrong code uses up one attempt, and expired or exhausted
// codes are discarded.
func (s *AuthService) VerifyCode(ctx context.Context, email, code string) (ok bool, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "VerifyCode", "email", email)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to verify code", err)
			return
		}
		logger.With("verified", ok).InfoContext(ctx, "code checked")
	}()

	if err = s.checkEmail(email); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, found := s.codes.Get(email)
	if !found {
		return
	}
	pending := value.(*pendingCode)
	if s.now().After(pending.expiresAt) || pending.attemptsLeft <= 0 {
		s.codes.Delete(email)
		return
	}
	if CompareCodeHash(pending.hash, strings.TrimSpace(code)) != nil {
		pending.attemptsLeft--
		return
	}

	s.codes.Delete(email)
	ok = true
	return
}

// CreateSession issues an opaque session token for the user.
func (s *AuthService) CreateSession(ctx context.Context, userID string) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if strings.TrimSpace(userID) == "" {
		err = newValidationError("user_id", "user_id is required")
		return
	}

	now := s.now()
	session = Session{
		Token:     s.tokenGenerator(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if session.Token == "" {
		err = fmt.Errorf("token generator returned an empty token")
		session = Session{}
		return
	}

	s.sessions.Set(session.Token, sessionState{userID: userID, createdAt: now, expiresAt: session.ExpiresAt}, s.cfg.SessionTTL)
	s.loggerWith(ctx, "CreateSession", "user_id", userID).InfoContext(ctx, "session created")
	return
}

// ResolveSession returns the user bound to a live session token.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (string, bool) {
	if s == nil {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	value, found := s.sessions.Get(token)
	if !found {
		return "", false
	}
	state := value.(sessionState)
	if s.now().After(state.expiresAt) {
		s.sessions.Delete(token)
		s.loggerWith(ctx, "ResolveSession", "user_id", state.userID).DebugContext(ctx, "session expired")
		return "", false
	}
	return state.userID, true
}

// EndSession revokes a session token. Unknown tokens are ignored.
func (s *AuthService) EndSession(ctx context.Context, token string) {
	if s == nil {
		return
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	s.sessions.Delete(token)
	s.loggerWith(ctx, "EndSession").InfoContext(ctx, "session ended")
}

// RequestLogin issues a code for the email and hands it to the mailer.
func (s *AuthService) RequestLogin(ctx context.Context, email string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	email = normalizeEmail(email)
	code, err := s.IssueCode(ctx, email)
	if err != nil {
		return err
	}
	if err := s.mailer.SendCode(ctx, email, code, s.cfg.CodeTTL); err != nil {
		s.loggerWith(ctx, "RequestLogin", "email", email).ErrorContext(ctx, "failed to deliver code", "error", err)
		return fmt.Errorf("deliver code: %w", err)
	}
	return nil
}

// Login exchanges a valid code for a session, registering the user on first login.
func (s *AuthService) Login(ctx context.Context, email, code string) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user provisioner not configured")
		return
	}

	email = normalizeEmail(email)
	var ok bool
	ok, err = s.VerifyCode(ctx, email, code)
	if err != nil {
		return
	}
	if !ok {
		err = ErrInvalidCode
		return
	}

	var user User
	user, err = s.users.EnsureUserForEmail(ctx, email)
	if err != nil {
		return
	}

	var session Session
	session, err = s.CreateSession(ctx, user.ID)
	if err != nil {
		return
	}
	result = LoginResult{User: user, Session: session}
	return
}

func randomDigits(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("generate session token: %v", err))
	}
	return hex.EncodeToString(buf)
}
