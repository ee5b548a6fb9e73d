package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/training-auth/internal/auth"
	"github.com/spec-kit/training-auth/internal/config"
	"github.com/spec-kit/training-auth/internal/domain"
	"github.com/spec-kit/training-auth/internal/events"
	"github.com/spec-kit/training-auth/internal/limiter"
	"github.com/spec-kit/training-auth/internal/repository"
)

// SessionService issues, rotates and revokes login sessions.
//
// Access tokens are verified by signature only and live until their own
// expiry. Refresh tokens are persisted and single-use: every successful
// Refresh revokes the presented token and issues a new pair.
type SessionService struct {
	codec           *auth.Codec
	store           repository.CredentialStore
	directory       IdentityDirectory
	loginLimiter    limiter.Limiter
	dispatcher      events.Dispatcher
	logger          *zap.Logger
	now             func() time.Time
	accessTTL       time.Duration
	refreshTTL      time.Duration
	upstreamTimeout time.Duration
}

// SessionDependencies encapsulates collaborators for the session service.
type SessionDependencies struct {
	Codec        *auth.Codec
	Store        repository.CredentialStore
	Directory    IdentityDirectory
	LoginLimiter limiter.Limiter
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Now          func() time.Time
}

// NewSessionService builds the service.
func NewSessionService(cfg config.AuthConfig, deps SessionDependencies) *SessionService {
	s := &SessionService{
		codec:           deps.Codec,
		store:           deps.Store,
		directory:       deps.Directory,
		loginLimiter:    deps.LoginLimiter,
		dispatcher:      deps.Dispatcher,
		logger:          deps.Logger,
		now:             deps.Now,
		accessTTL:       cfg.AccessTokenTTL(),
		refreshTTL:      cfg.RefreshTokenTTL(),
		upstreamTimeout: cfg.UpstreamTimeout(),
	}
	if s.loginLimiter == nil {
		s.loginLimiter = limiter.Noop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Login verifies credentials and opens a new session. Existing sessions of
// the same identity stay valid.
func (s *SessionService) Login(ctx context.Context, principal, secret string) (*domain.TokenPair, error) {
	principal = strings.ToLower(strings.TrimSpace(principal))
	if principal == "" || secret == "" {
		return nil, ErrInvalidCredentials
	}

	if err := s.loginLimiter.Allow(ctx, principal); err != nil {
		if errors.Is(err, limiter.ErrLimited) {
			return nil, ErrRateLimited
		}
		return nil, upstream(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	identity, err := s.directory.VerifyCredentials(callCtx, principal, secret)
	cancel()
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.publish(ctx, events.Event{Type: events.EventLoginFailed})
			return nil, ErrInvalidCredentials
		}
		s.logger.Warn("identity directory unavailable", zap.Error(err))
		return nil, upstream(err)
	}

	pair, row, err := s.mintPair(identity)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, row); err != nil {
		return nil, err
	}

	s.logger.Info("session opened", zap.String("user_id", identity.ID), zap.String("token_id", row.ID))
	s.publish(ctx, events.Event{
		Type:    events.EventLoginSucceeded,
		Subject: identity,
		Payload: events.TokenPayload{TokenID: row.ID, TokenType: domain.TokenTypeRefresh},
	})
	return pair, nil
}

// Refresh rotates a live refresh token into a new pair. Concurrent calls with
// the same value produce exactly one success; the rest get ErrTokenRevoked.
func (s *SessionService) Refresh(ctx context.Context, refreshValue string) (*domain.TokenPair, error) {
	claims, err := parseAs(s.codec, refreshValue, domain.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	now := s.now()
	stored, err := s.store.FindByValue(ctx, refreshValue, domain.TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if stored.Subject != claims.Identity() {
		return nil, ErrInvalidToken
	}
	if stored.Expired(now) {
		return nil, ErrTokenExpired
	}
	if !stored.Live(now) {
		s.rejectReplay(ctx, stored)
		return nil, ErrTokenRevoked
	}

	pair, next, err := s.mintPair(stored.Subject)
	if err != nil {
		return nil, err
	}
	if err := s.store.Rotate(ctx, stored.ID, next, now); err != nil {
		if errors.Is(err, repository.ErrNotLive) {
			s.rejectReplay(ctx, stored)
			return nil, ErrTokenRevoked
		}
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventTokenRefreshed,
		Subject: stored.Subject,
		Payload: events.RotationPayload{PreviousTokenID: stored.ID, NextTokenID: next.ID},
	})
	return pair, nil
}

// Logout revokes the single session behind refreshValue. Logging out an
// already revoked or expired session succeeds.
func (s *SessionService) Logout(ctx context.Context, refreshValue string) error {
	_, err := parseAs(s.codec, refreshValue, domain.TokenTypeRefresh)
	if errors.Is(err, ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return err
	}

	stored, err := s.store.FindByValue(ctx, refreshValue, domain.TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if err := s.store.MarkRevoked(ctx, stored.ID, s.now()); err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventSessionLoggedOut,
		Subject: stored.Subject,
		Payload: events.TokenPayload{TokenID: stored.ID, TokenType: domain.TokenTypeRefresh, Reason: "logout"},
	})
	return nil
}

// RevokeAllSessions revokes every live refresh token of subject.
func (s *SessionService) RevokeAllSessions(ctx context.Context, subject domain.Identity) (int64, error) {
	if subject.IsZero() {
		return 0, ErrSubjectNotFound
	}
	n, err := s.store.RevokeLiveForSubject(ctx, subject, domain.TokenTypeRefresh, s.now())
	if err != nil {
		return 0, err
	}

	s.logger.Info("sessions revoked", zap.String("user_id", subject.ID), zap.Int64("count", n))
	s.publish(ctx, events.Event{
		Type:    events.EventSessionsRevoked,
		Subject: subject,
		Payload: events.RevocationPayload{Count: n, Reason: "revoke_all"},
	})
	return n, nil
}

// ListSessions returns the live refresh tokens of subject, newest first.
func (s *SessionService) ListSessions(ctx context.Context, subject domain.Identity) ([]*domain.Token, error) {
	return s.store.FindLiveForSubject(ctx, subject, domain.TokenTypeRefresh, s.now())
}

// ValidateAccess verifies an access token without touching the store.
func (s *SessionService) ValidateAccess(_ context.Context, accessValue string) (domain.Identity, error) {
	claims, err := parseAs(s.codec, accessValue, domain.TokenTypeAccess)
	if err != nil {
		return domain.Identity{}, err
	}
	return claims.Identity(), nil
}

func (s *SessionService) mintPair(subject domain.Identity) (*domain.TokenPair, *domain.Token, error) {
	access, accessClaims, err := s.codec.Mint(subject, domain.TokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshClaims, err := s.codec.Mint(subject, domain.TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, nil, err
	}

	row := tokenFromClaims(refresh, refreshClaims)
	return &domain.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessClaims.ExpiresAtTime(),
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshClaims.ExpiresAtTime(),
		Subject:          subject,
	}, row, nil
}

func (s *SessionService) rejectReplay(ctx context.Context, stored *domain.Token) {
	s.logger.Warn("refresh token replay rejected",
		zap.String("user_id", stored.Subject.ID), zap.String("token_id", stored.ID))
	s.publish(ctx, events.Event{
		Type:    events.EventRefreshReplayRejected,
		Subject: stored.Subject,
		Payload: events.TokenPayload{TokenID: stored.ID, TokenType: domain.TokenTypeRefresh},
	})
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.logger, event)
}

// parseAs decodes value and insists on the expected token family, so a token
// of one family never passes for another.
func parseAs(codec *auth.Codec, value string, want domain.TokenType) (*auth.Claims, error) {
	claims, err := codec.Parse(value)
	if err != nil {
		if errors.Is(err, auth.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken.Wrap(err)
	}
	if claims.Type != want {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func tokenFromClaims(value string, claims *auth.Claims) *domain.Token {
	return &domain.Token{
		ID:        claims.ID,
		Value:     value,
		Type:      claims.Type,
		Subject:   claims.Identity(),
		IssuedAt:  claims.IssuedAtTime(),
		ExpiresAt: claims.ExpiresAtTime(),
	}
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("audit handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
