package domain

import (
	"fmt"
	"time"
)

// Identity is the opaque subject reference carried by every token.
type Identity struct {
	ID string
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// TokenType enumerates the token families issued by the core.
type TokenType uint8

const (
	TokenTypeAccess TokenType = iota + 1
	TokenTypeRefresh
	TokenTypePasswordReset
)

// String returns the persisted / wire name of the type.
func (t TokenType) String() string {
	switch t {
	case TokenTypeAccess:
		return "ACCESS"
	case TokenTypeRefresh:
		return "REFRESH"
	case TokenTypePasswordReset:
		return "PASSWORD_RESET"
	default:
		return fmt.Sprintf("TokenType(%d)", uint8(t))
	}
}

// Stateful reports whether tokens of this type are persisted and checked
// against the credential store on every use.
func (t TokenType) Stateful() bool {
	switch t {
	case TokenTypeRefresh, TokenTypePasswordReset:
		return true
	case TokenTypeAccess:
		return false
	default:
		return false
	}
}

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	switch t {
	case TokenTypeAccess, TokenTypeRefresh, TokenTypePasswordReset:
		return true
	default:
		return false
	}
}

// ParseTokenType maps a persisted name back to its TokenType.
func ParseTokenType(s string) (TokenType, error) {
	switch s {
	case "ACCESS":
		return TokenTypeAccess, nil
	case "REFRESH":
		return TokenTypeRefresh, nil
	case "PASSWORD_RESET":
		return TokenTypePasswordReset, nil
	default:
		return 0, fmt.Errorf("unknown token type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t TokenType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid token type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TokenType) UnmarshalText(b []byte) error {
	parsed, err := ParseTokenType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Token is a persisted REFRESH or PASSWORD_RESET credential.
// Value is the raw bearer string; stores persist only its digest.
type Token struct {
	ID         string
	Value      string
	Type       TokenType
	Subject    Identity
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	Consumed   bool
	RevokedAt  *time.Time
	ConsumedAt *time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Live reports whether the token is neither revoked, consumed nor expired.
func (t *Token) Live(now time.Time) bool {
	return !t.Revoked && !t.Consumed && !t.Expired(now)
}

// TokenPair is the result of a login or a refresh rotation.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Subject          Identity
}
