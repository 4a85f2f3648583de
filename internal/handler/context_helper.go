package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agromarket-api/internal/middleware"
	"github.com/noah-isme/agromarket-api/internal/models"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/response"
)

type userLookup interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// currentUser loads the caller from storage so ownership and wallet checks
// never rely on a stale token. It writes the error response itself.
func currentUser(c *gin.Context, users userLookup) (*models.User, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	user, err := users.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists"))
			return nil, false
		}
		response.Error(c, err)
		return nil, false
	}
	return user, true
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
