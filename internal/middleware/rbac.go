package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/response"
)

// SelfParam lets a role restricted route also admit the caller whose id equals the
// named path parameter, e.g. a therapist editing their own schedule.
type SelfParam string

// RequireRoles admits callers holding one of roles. Ownership checks finer than a role
// stay in the services.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return rbac("", roles)
}

// RequireRolesOrSelf admits callers holding one of roles or whose id matches param.
func RequireRolesOrSelf(param SelfParam, roles ...models.UserRole) gin.HandlerFunc {
	return rbac(param, roles)
}

func rbac(self SelfParam, roles []models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowed[actor.Role]; ok {
			c.Next()
			return
		}
		if self != "" {
			if target := c.Param(string(self)); target != "" && target == actor.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
