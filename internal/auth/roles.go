package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/domain"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

// RequireCitizen ensures a citizen is authenticated.
func RequireCitizen() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Role != domain.RoleCitizen {
			return apperrors.NewForbidden("citizen role required")
		}
		return c.Next()
	}
}

// RequireOfficer ensures an officer or admin is authenticated.
func RequireOfficer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Role != domain.RoleOfficer && principal.Role != domain.RoleAdmin {
			return apperrors.NewForbidden("officer role required")
		}
		return c.Next()
	}
}

// RequireAdmin ensures an admin is authenticated.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Role != domain.RoleAdmin {
			return apperrors.NewForbidden("admin role required")
		}
		return c.Next()
	}
}
