package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/storefront-checkout/utils"
)

// ContextUserID is the gin context key holding the authenticated user id.
const ContextUserID = "user_id"

// AuthMiddleware requires a Bearer token signed with secret and stores its
// subject under ContextUserID.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			utils.ErrorLogger.Error("JWT_SECRET is not set, rejecting authenticated request")
			utils.AbortWithError(c, http.StatusInternalServerError, "authentication is not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, "authorization header missing")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.AbortWithError(c, http.StatusUnauthorized, "authorization header must be a bearer token")
			return
		}

		claims, err := utils.ParseToken(secret, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			utils.AbortWithError(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Next()
	}
}
