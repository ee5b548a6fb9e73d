package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/training-auth/internal/domain"
)

const testSecret = "test-secret-test-secret-test-secret"

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T) (*Codec, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := NewCodec(testSecret, "training-auth", clock.Now)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec, clock
}

func TestNewCodec_EmptySecret(t *testing.T) {
	if _, err := NewCodec("", "iss", nil); !errors.Is(err, ErrSigningKey) {
		t.Fatalf("want ErrSigningKey, got %v", err)
	}
}

func TestCodec_MintAndParse(t *testing.T) {
	codec, _ := newTestCodec(t)
	subject := domain.Identity{ID: "u1"}

	value, minted, err := codec.Mint(subject, domain.TokenTypeRefresh, 24*time.Hour)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if value == "" || minted.ID == "" {
		t.Fatal("Mint returned empty value or jti")
	}

	claims, err := codec.Parse(value)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Identity() != subject {
		t.Errorf("subject: want %v, got %v", subject, claims.Identity())
	}
	if claims.Type != domain.TokenTypeRefresh {
		t.Errorf("type: want REFRESH, got %s", claims.Type)
	}
	if ttl := claims.ExpiresAtTime().Sub(claims.IssuedAtTime()); ttl != 24*time.Hour {
		t.Errorf("ttl: want 24h, got %s", ttl)
	}
}

func TestCodec_MintIsUnique(t *testing.T) {
	codec, _ := newTestCodec(t)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		value, _, err := codec.Mint(domain.Identity{ID: "u1"}, domain.TokenTypeAccess, time.Minute)
		if err != nil {
			t.Fatalf("Mint: %v", err)
		}
		if _, dup := seen[value]; dup {
			t.Fatal("minted duplicate value within the same instant")
		}
		seen[value] = struct{}{}
	}
}

func TestCodec_MintRejectsBadInput(t *testing.T) {
	codec, _ := newTestCodec(t)
	if _, _, err := codec.Mint(domain.Identity{}, domain.TokenTypeAccess, time.Minute); err == nil {
		t.Error("empty subject should fail")
	}
	if _, _, err := codec.Mint(domain.Identity{ID: "u1"}, domain.TokenType(0), time.Minute); err == nil {
		t.Error("unknown type should fail")
	}
	if _, _, err := codec.Mint(domain.Identity{ID: "u1"}, domain.TokenTypeAccess, 0); err == nil {
		t.Error("zero ttl should fail")
	}
}

func TestCodec_ParseExpired(t *testing.T) {
	codec, clock := newTestCodec(t)
	value, _, err := codec.Mint(domain.Identity{ID: "u1"}, domain.TokenTypeAccess, 15*time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	clock.Advance(15 * time.Minute)
	if _, err := codec.Parse(value); !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}

func TestCodec_TamperedPayloadIsInvalidSignature(t *testing.T) {
	codec, clock := newTestCodec(t)
	value, _, err := codec.Mint(domain.Identity{ID: "u1"}, domain.TokenTypeAccess, time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	// Forge a far-future expiry and a different subject while keeping the original signature.
	parts := strings.Split(value, ".")
	payload := map[string]any{
		"token_type": "ACCESS",
		"sub":        "attacker",
		"jti":        "forged",
		"iat":        clock.Now().Unix(),
		"exp":        clock.Now().Add(365 * 24 * time.Hour).Unix(),
	}
	raw, _ := json.Marshal(payload)
	forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(raw) + "." + parts[2]

	if _, err := codec.Parse(forged); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

func TestCodec_UndecodablePayloadEditIsInvalidSignature(t *testing.T) {
	codec, clock := newTestCodec(t)
	value, _, err := codec.Mint(domain.Identity{ID: "u1"}, domain.TokenTypeAccess, time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	parts := strings.Split(value, ".")

	cases := map[string]map[string]any{
		"unknown token_type": {
			"token_type": "ADMIN",
			"sub":        "u1",
			"jti":        "forged",
			"iat":        clock.Now().Unix(),
			"exp":        clock.Now().Add(time.Minute).Unix(),
		},
		"non-numeric exp": {
			"token_type": "ACCESS",
			"sub":        "u1",
			"jti":        "forged",
			"iat":        clock.Now().Unix(),
			"exp":        "far-future",
		},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			raw, _ := json.Marshal(payload)
			forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(raw) + "." + parts[2]
			if _, err := codec.Parse(forged); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("want ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestCodec_TamperedExpiredTokenIsInvalidSignature(t *testing.T) {
	codec, clock := newTestCodec(t)
	value, _, err := codec.Mint(domain.Identity{ID: "u1"}, domain.TokenTypeAccess, time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	clock.Advance(time.Hour)

	// Flip one signature character: the signature check must run before expiry.
	sig := []byte(value[strings.LastIndex(value, ".")+1:])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := value[:strings.LastIndex(value, ".")+1] + string(sig)

	if _, err := codec.Parse(tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
}

func TestCodec_RejectsOtherKeysAndAlgorithms(t *testing.T) {
	codec, clock := newTestCodec(t)
	claims := &Claims{
		Type: domain.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Subject:   "u1",
			Issuer:    "training-auth",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("another-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Parse(other); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("foreign key: want ErrInvalidSignature, got %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Parse(hs512); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("HS512: want ErrInvalidSignature, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Parse(none); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("alg none: want ErrInvalidSignature, got %v", err)
	}
}

func TestCodec_ParseMalformed(t *testing.T) {
	codec, clock := newTestCodec(t)

	for _, in := range []string{"", "not-a-token", "a.b", "a.b.c"} {
		if _, err := codec.Parse(in); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q): want ErrMalformed, got %v", in, err)
		}
	}

	// Correctly signed but structurally invalid: no subject.
	claims := &Claims{
		Type: domain.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Issuer:    "training-auth",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Parse(value); !errors.Is(err, ErrMalformed) {
		t.Errorf("missing sub: want ErrMalformed, got %v", err)
	}

	// exp not after iat.
	claims.Subject = "u1"
	claims.ExpiresAt = claims.IssuedAt
	value, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Parse(value); !errors.Is(err, ErrMalformed) {
		t.Errorf("exp<=iat: want ErrMalformed, got %v", err)
	}
}

func TestDigest(t *testing.T) {
	a, b := Digest("value-a"), Digest("value-b")
	if len(a) != 64 || a == b {
		t.Fatalf("unexpected digests %q %q", a, b)
	}
	if Digest("value-a") != a {
		t.Fatal("digest must be deterministic")
	}
}
