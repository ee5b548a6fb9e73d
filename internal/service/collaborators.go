package service

import (
	"context"

	"github.com/spec-kit/training-auth/internal/domain"
)

// IdentityDirectory resolves principals to identities.
type IdentityDirectory interface {
	// VerifyCredentials returns ErrInvalidCredentials for unknown principals
	// and wrong secrets alike.
	VerifyCredentials(ctx context.Context, principal, secret string) (domain.Identity, error)
	// ResolveByEmail returns ErrSubjectNotFound for unknown addresses.
	ResolveByEmail(ctx context.Context, email string) (domain.Identity, error)
}

// CredentialUpdater replaces an identity's secret.
type CredentialUpdater interface {
	SetPassword(ctx context.Context, identity domain.Identity, newSecret string) error
}

// TemplateKind names the email a Mailer renders.
type TemplateKind string

const (
	TemplatePasswordReset   TemplateKind = "password_reset"
	TemplatePasswordChanged TemplateKind = "password_changed"
)

// Mailer delivers templated email to an identity.
type Mailer interface {
	Send(ctx context.Context, identity domain.Identity, kind TemplateKind, payload map[string]string) error
}

// SessionRevoker revokes every live refresh token of a subject.
type SessionRevoker interface {
	RevokeAllSessions(ctx context.Context, subject domain.Identity) (int64, error)
}
