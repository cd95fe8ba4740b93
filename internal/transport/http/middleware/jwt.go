package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docbot/internal/pkg/jwtutil"
	"docbot/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
	ContextEmailKey    = "email"
)

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil || claims.Email == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Set(ContextEmailKey, claims.Email)
		c.Next()
	}
}

// Owner returns the authenticated user's email and display name.
func Owner(c *gin.Context) (email, name string, ok bool) {
	email = c.GetString(ContextEmailKey)
	name = c.GetString(ContextUsernameKey)
	return email, name, email != ""
}
