package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"resume-printer/internal/domain"
)

// APIKeyLocal is the fiber local holding the validated X-API-Key.
const APIKeyLocal = "api_key"

// TokenValidator is the read side of the token cache.
type TokenValidator interface {
	Ready() bool
	Validate(token string) bool
}

// ScopeChecker reports whether a token may use a route group.
type ScopeChecker interface {
	Allows(token, scope string) bool
}

// APIKey validates X-API-Key when one is sent. Requests without a key pass
// through and are handled by RequireScope and the user limiter.
func APIKey(v TokenValidator) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: APIKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if !v.Ready() {
				return false, domain.ErrTokenStoreNotReady
			}
			if !v.Validate(key) {
				return false, domain.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may call this with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, domain.ErrTokenStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return jsonError(c, status, err.Error())
		},
	})
}

// RequireScope rejects tokens whose scope does not include scope. Anonymous
// requests are let through only when allowAnonymous is set.
func RequireScope(checker ScopeChecker, scope string, allowAnonymous bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, _ := c.Locals(APIKeyLocal).(string)
		if token == "" {
			if allowAnonymous {
				return c.Next()
			}
			return jsonError(c, fiber.StatusUnauthorized, "Missing API key")
		}
		if !checker.Allows(token, scope) {
			return jsonError(c, fiber.StatusForbidden, "API key not allowed for "+scope)
		}
		return c.Next()
	}
}
