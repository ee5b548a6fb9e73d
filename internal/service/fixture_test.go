package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/training-auth/internal/auth"
	"github.com/spec-kit/training-auth/internal/config"
	"github.com/spec-kit/training-auth/internal/domain"
	"github.com/spec-kit/training-auth/internal/events"
	"github.com/spec-kit/training-auth/internal/repository"
)

const (
	testEmail    = "a@x.com"
	testPassword = "correct-horse"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMail struct {
	identity domain.Identity
	kind     TemplateKind
	payload  map[string]string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, identity domain.Identity, kind TemplateKind, payload map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{identity: identity, kind: kind, payload: payload})
	return m.err
}

func (m *fakeMailer) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *fakeMailer) count(kind TemplateKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

// lastResetToken returns the token of the most recent reset email, sent or failed.
func (m *fakeMailer) lastResetToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == TemplatePasswordReset {
			return m.sent[i].payload["token"]
		}
	}
	t.Fatal("no reset email sent")
	return ""
}

type stubLimiter struct{ err error }

func (l stubLimiter) Allow(context.Context, string) error { return l.err }

type eventLog struct {
	mu    sync.Mutex
	types []events.EventType
}

func (l *eventLog) record(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, e.Type)
	return nil
}

func (l *eventLog) has(eventType events.EventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.types {
		if t == eventType {
			return true
		}
	}
	return false
}

type fixture struct {
	cfg        config.Config
	clock      *testClock
	codec      *auth.Codec
	store      repository.CredentialStore
	users      repository.UserRepository
	directory  *UserDirectory
	mailer     *fakeMailer
	dispatcher events.Dispatcher
	events     *eventLog
	sessions   *SessionService
	resets     *PasswordResetService
	user       *domain.User
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:               "service-test-secret-service-test-secret",
			JWTIssuer:               "training-auth",
			AccessTokenTTLMinutes:   15,
			RefreshTokenTTLHours:    168,
			PasswordResetTTLMinutes: 15,
			BcryptCost:              bcrypt.MinCost,
			UpstreamTimeoutSeconds:  1,
		},
		Notification: config.NotificationConfig{
			EmailFrom:    "no-reply@x.com",
			ResetURLBase: "https://app.x.com/reset",
		},
	}
}

type fixtureOption func(*fixture, *SessionDependencies, *PasswordResetDependencies)

func withLoginLimiter(l stubLimiter) fixtureOption {
	return func(_ *fixture, s *SessionDependencies, _ *PasswordResetDependencies) { s.LoginLimiter = l }
}

func withResetLimiter(l stubLimiter) fixtureOption {
	return func(_ *fixture, _ *SessionDependencies, r *PasswordResetDependencies) { r.RequestLimiter = l }
}

func withDirectory(d IdentityDirectory) fixtureOption {
	return func(_ *fixture, s *SessionDependencies, r *PasswordResetDependencies) {
		s.Directory = d
		r.Directory = d
	}
}

func withCredentials(c CredentialUpdater) fixtureOption {
	return func(_ *fixture, _ *SessionDependencies, r *PasswordResetDependencies) { r.Credentials = c }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		cfg:        testConfig(),
		clock:      &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		store:      repository.NewMemoryCredentialStore(),
		users:      repository.NewMemoryUserRepository(),
		mailer:     &fakeMailer{},
		dispatcher: events.NewInMemoryDispatcher(),
		events:     &eventLog{},
	}
	for _, eventType := range events.AllEventTypes {
		f.dispatcher.Subscribe(eventType, f.events.record)
	}

	codec, err := auth.NewCodec(f.cfg.Auth.JWTSecret, f.cfg.Auth.JWTIssuer, f.clock.Now)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	f.codec = codec
	f.directory = NewUserDirectory(f.users, f.cfg.Auth.BcryptCost)

	user, err := f.directory.Register(context.Background(), "Ada", testEmail, testPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.user = user

	sessionDeps := SessionDependencies{
		Codec:      f.codec,
		Store:      f.store,
		Directory:  f.directory,
		Dispatcher: f.dispatcher,
		Now:        f.clock.Now,
	}
	resetDeps := PasswordResetDependencies{
		Codec:       f.codec,
		Store:       f.store,
		Directory:   f.directory,
		Credentials: f.directory,
		Mailer:      f.mailer,
		Dispatcher:  f.dispatcher,
		Now:         f.clock.Now,
	}
	for _, opt := range opts {
		opt(f, &sessionDeps, &resetDeps)
	}

	f.sessions = NewSessionService(f.cfg.Auth, sessionDeps)
	resetDeps.Sessions = f.sessions
	f.resets = NewPasswordResetService(f.cfg, resetDeps)
	return f
}

func (f *fixture) login(t *testing.T) *domain.TokenPair {
	t.Helper()
	pair, err := f.sessions.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return pair
}

func (f *fixture) requestReset(t *testing.T) string {
	t.Helper()
	if err := f.resets.RequestReset(context.Background(), testEmail); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	return f.mailer.lastResetToken(t)
}
