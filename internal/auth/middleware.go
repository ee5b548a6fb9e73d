package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/training-auth/internal/domain"
	apperrors "github.com/spec-kit/training-auth/pkg/util"
)

const identityKey = "auth_identity"

// AccessValidator verifies an access token and returns its subject.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, accessValue string) (domain.Identity, error)
}

// AuthMiddleware gates routes on a valid bearer access token.
type AuthMiddleware struct {
	validator AccessValidator
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(validator AccessValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, err := BearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}

	identity, err := m.validator.ValidateAccess(c.UserContext(), raw)
	if err != nil {
		return err
	}

	c.Locals(identityKey, identity)
	return c.Next()
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// IdentityFromContext retrieves the identity put there by Handle. Handlers
// pass it explicitly into service calls.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	return identity, ok
}
