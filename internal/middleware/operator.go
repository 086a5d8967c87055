package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/safetext/internal/auth"
)

const operatorLocal = "operator"

// OperatorAuth requires a valid operator bearer token. A nil issuer leaves
// the group open, which config only allows in development.
func OperatorAuth(issuer *auth.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if issuer == nil {
			return c.Next()
		}
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := issuer.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(operatorLocal, claims.Subject)
		return c.Next()
	}
}

// Operator returns the authenticated operator, if any.
func Operator(c *fiber.Ctx) string {
	sub, _ := c.Locals(operatorLocal).(string)
	return sub
}
