package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agromarket-api/internal/models"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/response"
)

// RequirePermission enforces that the caller's role carries every bit of perm.
func RequirePermission(perm models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.Can(perm) {
			response.Error(c, appErrors.Clone(appErrors.ErrPermissionDenied, "missing "+permissionLabel(perm)+" permission"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdministrator is RequirePermission(models.PermAdmin).
func RequireAdministrator() gin.HandlerFunc {
	return RequirePermission(models.PermAdmin)
}

func permissionLabel(perm models.Permission) string {
	if name := perm.String(); name != "" {
		return name
	}
	return "required"
}
