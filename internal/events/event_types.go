package events

import (
	"time"

	"github.com/spec-kit/training-auth/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLoginSucceeded         EventType = "login_succeeded"
	EventLoginFailed            EventType = "login_failed"
	EventTokenRefreshed         EventType = "token_refreshed"
	EventRefreshReplayRejected  EventType = "refresh_replay_rejected"
	EventSessionLoggedOut       EventType = "session_logged_out"
	EventSessionsRevoked        EventType = "sessions_revoked"
	EventPasswordResetRequested EventType = "password_reset_requested"
	EventPasswordResetConfirmed EventType = "password_reset_confirmed"
	EventPasswordResetRejected  EventType = "password_reset_rejected"
)

// AllEventTypes lists every type, for subscribers that audit everything.
var AllEventTypes = []EventType{
	EventLoginSucceeded,
	EventLoginFailed,
	EventTokenRefreshed,
	EventRefreshReplayRejected,
	EventSessionLoggedOut,
	EventSessionsRevoked,
	EventPasswordResetRequested,
	EventPasswordResetConfirmed,
	EventPasswordResetRejected,
}

// Event represents an audit event emitted by the auth services.
// Payloads carry token ids, never token values.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Subject   domain.Identity `json:"subject"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload,omitempty"`
}

// TokenPayload identifies the token an event is about.
type TokenPayload struct {
	TokenID   string           `json:"token_id,omitempty"`
	TokenType domain.TokenType `json:"token_type"`
	Reason    string           `json:"reason,omitempty"`
}

// RotationPayload links a rotated refresh token to its replacement.
type RotationPayload struct {
	PreviousTokenID string `json:"previous_token_id"`
	NextTokenID     string `json:"next_token_id"`
}

// RevocationPayload reports a bulk revocation.
type RevocationPayload struct {
	Count  int64  `json:"count"`
	Reason string `json:"reason"`
}
