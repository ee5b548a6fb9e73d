package service

import (
	"net/http"

	apperrors "github.com/spec-kit/training-auth/pkg/util"
)

// Failure kinds surfaced by the session and password-reset services. Callers
// match them with errors.Is; wrapped copies keep the same code.
var (
	ErrInvalidCredentials  = apperrors.NewDomainError("INVALID_CREDENTIALS", "invalid credentials", http.StatusUnauthorized, nil)
	ErrInvalidToken        = apperrors.NewDomainError("INVALID_TOKEN", "invalid token", http.StatusUnauthorized, nil)
	ErrTokenExpired        = apperrors.NewDomainError("TOKEN_EXPIRED", "token expired", http.StatusUnauthorized, nil)
	ErrTokenRevoked        = apperrors.NewDomainError("TOKEN_REVOKED", "token revoked", http.StatusUnauthorized, nil)
	ErrTokenAlreadyUsed    = apperrors.NewDomainError("TOKEN_ALREADY_USED", "token already used", http.StatusGone, nil)
	ErrSubjectNotFound     = apperrors.NewDomainError("SUBJECT_NOT_FOUND", "subject not found", http.StatusNotFound, nil)
	ErrUpstreamUnavailable = apperrors.NewDomainError("UPSTREAM_UNAVAILABLE", "upstream service unavailable", http.StatusServiceUnavailable, nil)
	ErrRateLimited         = apperrors.NewDomainError("RATE_LIMITED", "too many attempts", http.StatusTooManyRequests, nil)
)

func upstream(err error) error {
	return ErrUpstreamUnavailable.Wrap(err)
}
