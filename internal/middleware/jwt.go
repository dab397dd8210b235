package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lumenbank/onboarding/internal/auth"
)

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (auth.Principal, error)
}

// JWTAuth returns a middleware that validates JWT access tokens and checks token version.
func JWTAuth(verifier AccessVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		principal, err := verifier.VerifyAccess(c.UserContext(), tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals(auth.LocalIdentityID, principal.IdentityID)
		c.Locals(auth.LocalRole, principal.Role)
		return c.Next()
	}
}
