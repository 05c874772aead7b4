package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/civmanager/cache"
	"go.uber.org/zap"
)

// InFlight rejects a request while the same account already has one
// outstanding on the same route. The lock lives in the cache so it holds
// across instances; ttl bounds how long a crashed request can keep it.
// Mount after Auth.
func InFlight(c cache.Cache, ttl time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		accountID := GetAccountID(ctx)
		if accountID == 0 {
			ctx.Next()
			return
		}
		key := "inflight:" + strconv.FormatInt(accountID, 10) + ":" + ctx.Request.Method + " " + ctx.FullPath()

		owner := GetTraceID(ctx)
		if owner == "" {
			owner = uuid.NewString()
		}
		lockCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		ok, err := c.SetNX(lockCtx, key, owner, ttl)
		cancel()
		if err != nil {
			log.Warn("in-flight lock unavailable", zap.String("key", key), zap.Error(err))
			ctx.Next()
			return
		}
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request already in progress"})
			return
		}
		defer func() {
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// After ttl the lock may belong to a later request; leave it alone.
			if released, err := c.DelIfValue(relCtx, key, owner); err != nil || !released {
				log.Debug("in-flight lock not released", zap.String("key", key), zap.Error(err))
			}
		}()
		ctx.Next()
	}
}
