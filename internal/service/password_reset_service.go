package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/training-auth/internal/auth"
	"github.com/spec-kit/training-auth/internal/config"
	"github.com/spec-kit/training-auth/internal/domain"
	"github.com/spec-kit/training-auth/internal/events"
	"github.com/spec-kit/training-auth/internal/limiter"
	"github.com/spec-kit/training-auth/internal/repository"
	apperrors "github.com/spec-kit/training-auth/pkg/util"
)

const (
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72
)

// PasswordResetService issues single-use reset grants and redeems them.
type PasswordResetService struct {
	codec           *auth.Codec
	store           repository.CredentialStore
	directory       IdentityDirectory
	credentials     CredentialUpdater
	mailer          Mailer
	sessions        SessionRevoker
	requestLimiter  limiter.Limiter
	dispatcher      events.Dispatcher
	logger          *zap.Logger
	now             func() time.Time
	resetTTL        time.Duration
	upstreamTimeout time.Duration
	resetURLBase    string
}

// PasswordResetDependencies encapsulates collaborators for the reset service.
type PasswordResetDependencies struct {
	Codec          *auth.Codec
	Store          repository.CredentialStore
	Directory      IdentityDirectory
	Credentials    CredentialUpdater
	Mailer         Mailer
	Sessions       SessionRevoker
	RequestLimiter limiter.Limiter
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Now            func() time.Time
}

// NewPasswordResetService builds the service.
func NewPasswordResetService(cfg config.Config, deps PasswordResetDependencies) *PasswordResetService {
	s := &PasswordResetService{
		codec:           deps.Codec,
		store:           deps.Store,
		directory:       deps.Directory,
		credentials:     deps.Credentials,
		mailer:          deps.Mailer,
		sessions:        deps.Sessions,
		requestLimiter:  deps.RequestLimiter,
		dispatcher:      deps.Dispatcher,
		logger:          deps.Logger,
		now:             deps.Now,
		resetTTL:        cfg.Auth.PasswordResetTTL(),
		upstreamTimeout: cfg.Auth.UpstreamTimeout(),
		resetURLBase:    cfg.Notification.ResetURLBase,
	}
	if s.requestLimiter == nil {
		s.requestLimiter = limiter.Noop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RequestReset mails a fresh reset grant to the owner of email and revokes
// any grant issued before it. Unknown addresses succeed silently.
//
// A mailer failure is reported as ErrUpstreamUnavailable; the grant already
// issued stays live.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperrors.NewValidationError("email is required", nil)
	}

	if err := s.requestLimiter.Allow(ctx, email); err != nil {
		if errors.Is(err, limiter.ErrLimited) {
			return ErrRateLimited
		}
		return upstream(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	identity, err := s.directory.ResolveByEmail(callCtx, email)
	cancel()
	if errors.Is(err, ErrSubjectNotFound) {
		s.logger.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		s.logger.Warn("identity directory unavailable", zap.Error(err))
		return upstream(err)
	}

	value, claims, err := s.codec.Mint(identity, domain.TokenTypePasswordReset, s.resetTTL)
	if err != nil {
		return err
	}
	grant := tokenFromClaims(value, claims)
	if err := s.store.Supersede(ctx, grant, s.now()); err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventPasswordResetRequested,
		Subject: identity,
		Payload: events.TokenPayload{TokenID: grant.ID, TokenType: domain.TokenTypePasswordReset},
	})

	mailCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()
	payload := map[string]string{
		"token":      value,
		"expires_at": grant.ExpiresAt.UTC().Format(time.RFC3339),
		"reset_url":  s.resetURL(value),
	}
	if err := s.mailer.Send(mailCtx, identity, TemplatePasswordReset, payload); err != nil {
		s.logger.Error("password reset email failed",
			zap.String("user_id", identity.ID), zap.String("token_id", grant.ID), zap.Error(err))
		return upstream(err)
	}

	s.logger.Info("password reset issued", zap.String("user_id", identity.ID), zap.String("token_id", grant.ID))
	return nil
}

// ConfirmReset redeems a reset grant, sets newPassword and ends every session
// of the grant's subject.
//
// The grant is consumed before the password is written. A failed write
// leaves it consumed and the caller must request another reset.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, resetValue, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	claims, err := parseAs(s.codec, resetValue, domain.TokenTypePasswordReset)
	if err != nil {
		return err
	}

	stored, err := s.store.FindByValue(ctx, resetValue, domain.TokenTypePasswordReset)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if stored.Subject != claims.Identity() {
		return ErrInvalidToken
	}

	now := s.now()
	if err := s.store.ConsumeIfLive(ctx, stored.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotLive) {
			return s.reject(ctx, resetValue, now)
		}
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	err = s.credentials.SetPassword(callCtx, stored.Subject, newPassword)
	cancel()
	if err != nil {
		s.logger.Error("password update failed after reset grant consumed",
			zap.String("user_id", stored.Subject.ID), zap.String("token_id", stored.ID), zap.Error(err))
		if errors.Is(err, ErrSubjectNotFound) {
			return err
		}
		return upstream(err)
	}

	revoked, err := s.sessions.RevokeAllSessions(ctx, stored.Subject)
	if err != nil {
		return err
	}

	s.logger.Info("password reset confirmed",
		zap.String("user_id", stored.Subject.ID), zap.Int64("sessions_revoked", revoked))
	s.publish(ctx, events.Event{
		Type:    events.EventPasswordResetConfirmed,
		Subject: stored.Subject,
		Payload: events.TokenPayload{TokenID: stored.ID, TokenType: domain.TokenTypePasswordReset},
	})

	mailCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()
	if err := s.mailer.Send(mailCtx, stored.Subject, TemplatePasswordChanged, map[string]string{
		"changed_at": now.UTC().Format(time.RFC3339),
	}); err != nil {
		s.logger.Warn("password changed notice failed", zap.String("user_id", stored.Subject.ID), zap.Error(err))
	}
	return nil
}

// reject re-reads a grant that lost ConsumeIfLive and names the reason.
// Expiry outranks consumption and revocation.
func (s *PasswordResetService) reject(ctx context.Context, value string, now time.Time) error {
	row, err := s.store.FindByValue(ctx, value, domain.TokenTypePasswordReset)
	if err != nil {
		return err
	}

	result, reason := ErrTokenRevoked, "revoked"
	switch {
	case row.Expired(now):
		result, reason = ErrTokenExpired, "expired"
	case row.Consumed:
		result, reason = ErrTokenAlreadyUsed, "already_used"
	}

	s.publish(ctx, events.Event{
		Type:    events.EventPasswordResetRejected,
		Subject: row.Subject,
		Payload: events.TokenPayload{TokenID: row.ID, TokenType: domain.TokenTypePasswordReset, Reason: reason},
	})
	return result
}

func (s *PasswordResetService) resetURL(value string) string {
	if s.resetURLBase == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(s.resetURLBase, "?") {
		sep = "&"
	}
	return s.resetURLBase + sep + "token=" + url.QueryEscape(value)
}

func (s *PasswordResetService) publish(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, s.logger, event)
}

func validatePassword(password string) error {
	if n := len(password); n < minPasswordLen || n > maxPasswordLen {
		return apperrors.NewValidationError("password must be between 8 and 72 bytes", map[string]any{
			"min": minPasswordLen,
			"max": maxPasswordLen,
		})
	}
	return nil
}
