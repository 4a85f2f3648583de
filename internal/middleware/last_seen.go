package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Pinger records user activity.
type Pinger interface {
	Ping(ctx context.Context, userID string)
}

// LastSeen updates the caller's last_seen after every successful authenticated request.
func LastSeen(pinger Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}
		if claims := Claims(c); claims != nil {
			pinger.Ping(c.Request.Context(), claims.UserID)
		}
	}
}
