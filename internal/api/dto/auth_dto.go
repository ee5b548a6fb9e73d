package dto

import (
	"time"

	"github.com/spec-kit/training-auth/internal/domain"
)

// LoginRequest payload for POST /auth/login.
type LoginRequest struct {
	Principal string `json:"principal"`
	Password  string `json:"password"`
}

// RefreshRequest carries a refresh token for rotation or logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// PasswordResetRequest payload for starting a reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest payload for redeeming a reset grant. Token may
// instead arrive as the token query parameter.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// TokenPairResponse is returned by login and refresh.
type TokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
	SubjectID        string    `json:"subject_id"`
}

// SessionResponse describes one live session without its token value.
type SessionResponse struct {
	ID        string    `json:"id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenPairResponse maps a domain pair.
func NewTokenPairResponse(pair *domain.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		TokenType:        "Bearer",
		SubjectID:        pair.Subject.ID,
	}
}

// NewSessionResponses maps live refresh tokens.
func NewSessionResponses(tokens []*domain.Token) []SessionResponse {
	out := make([]SessionResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, SessionResponse{ID: t.ID, IssuedAt: t.IssuedAt, ExpiresAt: t.ExpiresAt})
	}
	return out
}
