package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/docshare-api/pkg/errors"
	"github.com/noah-isme/docshare-api/pkg/response"
)

// RequireAdmin only lets administrators through. It must run after JWT.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		switch {
		case claims == nil:
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
		case !claims.IsAdmin:
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
		default:
			c.Next()
		}
	}
}
