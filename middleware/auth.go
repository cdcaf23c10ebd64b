package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/lifequest/server/cache"
	"github.com/kasuganosora/lifequest/server/config"
)

const (
	UserIDKey   = "user_id"
	TokenKey    = "token"
	RememberKey = "remember"
)

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := CheckSession(ctx.Request.Context(), c, sec, tokenStr)
		switch {
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrSessionExpired):
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		case err != nil:
			_ = ctx.Error(err)
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}

		ctx.Set(UserIDKey, claims.UserID)
		ctx.Set(TokenKey, tokenStr)
		ctx.Set(RememberKey, claims.Remember)
		ctx.Next()
	}
}

// GetUserID retrieves the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetToken returns the bearer token the request was authenticated with.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
