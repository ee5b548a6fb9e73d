package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/training-auth/internal/domain"
)

var (
	// ErrInvalidSignature is returned when the signature does not verify or the algorithm is not HS256.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrMalformed is returned for undecodable tokens and verified tokens with
	// missing or inconsistent claims.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired is returned for tokens that verify but are past their expiry.
	ErrExpired = errors.New("token expired")
	// ErrSigningKey is returned when the codec has no usable key.
	ErrSigningKey = errors.New("signing key misconfigured")
)

// Claims describes JWT payload.
type Claims struct {
	Type domain.TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Identity returns the subject the claims were issued for.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{ID: c.Subject}
}

// IssuedAtTime returns iat as a time.Time.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns exp as a time.Time.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Codec mints and verifies HS256 tokens for every token family.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec builds a codec. now may be nil, in which case time.Now is used.
func NewCodec(secret, issuer string, now func() time.Time) (*Codec, error) {
	if secret == "" {
		return nil, ErrSigningKey
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{
		secret: []byte(secret),
		issuer: issuer,
		now:    now,
		// Claims are checked by Parse itself so signature failures always win.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Mint builds and signs a token of typ for subject, valid for ttl.
func (c *Codec) Mint(subject domain.Identity, typ domain.TokenType, ttl time.Duration) (string, *Claims, error) {
	if subject.IsZero() || !typ.Valid() || ttl <= 0 {
		return "", nil, ErrMalformed
	}

	issuedAt := c.now().UTC()
	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(c.secret)
	if err != nil {
		return "", nil, errors.Join(ErrSigningKey, err)
	}
	return tokenString, claims, nil
}

// Parse verifies the signature, then the claim structure, then expiry.
// The HMAC is checked over the raw segments before any claim is decoded, so
// an edited payload is always ErrInvalidSignature.
func (c *Codec) Parse(tokenStr string) (*Claims, error) {
	if err := c.verifySignature(tokenStr); err != nil {
		return nil, err
	}

	claims := &Claims{}
	parsed, err := c.parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformed
		}
	}
	if !parsed.Valid {
		return nil, ErrInvalidSignature
	}

	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrMalformed
	}
	if !claims.Type.Valid() {
		return nil, ErrMalformed
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil, ErrMalformed
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, ErrMalformed
	}

	if !c.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}
	return claims, nil
}

func (c *Codec) verifySignature(tokenStr string) error {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return ErrMalformed
	}
	for _, seg := range parts[:2] {
		if _, err := c.parser.DecodeSegment(seg); err != nil {
			return ErrMalformed
		}
	}
	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return ErrMalformed
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// Digest returns the hex SHA-256 of a token value. Stores index on the
// digest so raw bearer values are never persisted.
func Digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
