package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RequireLevel ensures the agent holds at least the given workclass level.
func RequireLevel(min int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Agent == nil {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if principal.Agent.MaxLevel() < min {
			return fiber.NewError(http.StatusForbidden, "insufficient workclass level")
		}
		return c.Next()
	}
}

// RequireLevelOrPermission admits agents holding at least the given level or
// the named permission flag.
func RequireLevelOrPermission(min int, flag string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Agent == nil {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if principal.Agent.MaxLevel() < min && !principal.Agent.HasPermission(flag) {
			return fiber.NewError(http.StatusForbidden, "insufficient authority")
		}
		return c.Next()
	}
}

// RequirePermission ensures one of the agent's workclasses grants the flag.
func RequirePermission(flag string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Agent == nil {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if !principal.Agent.HasPermission(flag) {
			return fiber.NewError(http.StatusForbidden, "missing permission")
		}
		return c.Next()
	}
}

// RequireAgent ensures the caller is authenticated.
func RequireAgent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		return c.Next()
	}
}
