// Package sse streams auth events of an account to its browser clients so
// that every open tab can react to a password recovery or a sign-out.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/auth"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	auth           *auth.Provider
	allowedOrigins map[string]bool
	keepalive      time.Duration
	logger         *zap.Logger
}

// NewHandler creates a new SSE Handler. An empty allowedOrigins accepts every
// origin.
func NewHandler(p *auth.Provider, allowedOrigins []string, logger *zap.Logger) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{auth: p, allowedOrigins: allowed, keepalive: keepaliveInterval, logger: logger}
}

func (h *Handler) originAllowed(origin string) bool {
	if len(h.allowedOrigins) == 0 || origin == "" {
		return true
	}
	return h.allowedOrigins[origin]
}

// ServeSSE handles GET /sse?token=<jwt>.
// EventSource cannot send headers, so the session token travels in the query.
func (h *Handler) ServeSSE(c *gin.Context) {
	if !h.originAllowed(c.GetHeader("Origin")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := h.auth.Validate(c.Request.Context(), tokenStr)
	if errors.Is(err, auth.ErrInvalidSession) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}
	if err != nil {
		h.logger.Error("sse session check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session check failed"})
		return
	}

	events, unsub, err := h.auth.Events(c.Request.Context(), claims.AccountID)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"account_id\":%d}\n\n", claims.AccountID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
