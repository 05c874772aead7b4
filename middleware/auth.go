package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/cache"
	"github.com/kasuganosora/civmanager/config"
)

const (
	AccountIDKey = "account_id"
	RecoveryKey  = "recovery_session"
	TokenKey     = "session_token"
)

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Check session still valid in cache.
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, "session:"+tokenStr)
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(AccountIDKey, claims.AccountID)
		ctx.Set(RecoveryKey, claims.Recovery)
		ctx.Set(TokenKey, tokenStr)
		ctx.Next()
	}
}

// NoRecovery rejects recovery sessions. Mount it after Auth on every route
// a recovery session must not reach.
func NoRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRecovery(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "recovery session may only update the password"})
			return
		}
		c.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}

// IsRecovery reports whether the request carries a recovery session.
func IsRecovery(c *gin.Context) bool {
	return c.GetBool(RecoveryKey)
}

// GetToken returns the session token accepted by Auth.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
