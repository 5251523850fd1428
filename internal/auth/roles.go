package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

// RequireRoles ensures the principal has one of the allowed roles. With no
// roles given any authenticated operator passes.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Staff == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		role := principal.Staff.Role
		if len(allowedSet) == 0 {
			if !role.IsOperator() {
				return apperrors.NewForbidden("operator role required")
			}
			return c.Next()
		}
		if _, exists := allowedSet[role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireManager admits supervisors and administrators.
func RequireManager() fiber.Handler {
	return RequireRoles(domain.RoleAdmin, domain.RoleSupervisor)
}

// RequireOperator admits field staff, supervisors and administrators.
func RequireOperator() fiber.Handler {
	return RequireRoles(domain.RoleAdmin, domain.RoleSupervisor, domain.RoleStaff)
}
