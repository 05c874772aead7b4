package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/auth"
	"github.com/kasuganosora/civmanager/game/civilization"
	"github.com/kasuganosora/civmanager/game/lifecycle"
	mw "github.com/kasuganosora/civmanager/middleware"
	"go.uber.org/zap"
)

// SessionHandler tells a (re)connecting client which screen to show.
type SessionHandler struct {
	auth   *auth.Provider
	civs   *civilization.Service
	logger *zap.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(p *auth.Provider, civs *civilization.Service, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{auth: p, civs: civs, logger: logger}
}

type sessionResponse struct {
	State     lifecycle.State `json:"state"`
	AccountID int64           `json:"account_id,omitempty"`
	Recovery  bool            `json:"recovery,omitempty"`
}

// Get handles GET /api/session. Anonymous callers and dead tokens are routed
// to login rather than rejected.
func (h *SessionHandler) Get(c *gin.Context) {
	token := mw.BearerToken(c)
	if token == "" {
		c.JSON(http.StatusOK, sessionResponse{State: lifecycle.Route(false, false, lifecycle.Lookup{})})
		return
	}
	claims, err := h.auth.Validate(c.Request.Context(), token)
	if errors.Is(err, auth.ErrInvalidSession) {
		c.JSON(http.StatusOK, sessionResponse{State: lifecycle.Route(false, false, lifecycle.Lookup{})})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	var lookup lifecycle.Lookup
	if !claims.Recovery {
		lookup.Exists, lookup.Err = h.civs.HasCivilization(c.Request.Context(), claims.AccountID)
		if lookup.Err != nil {
			h.logger.Warn("civilization lookup failed, routing to setup",
				zap.Int64("account_id", claims.AccountID), zap.Error(lookup.Err))
		}
	}
	c.JSON(http.StatusOK, sessionResponse{
		State:     lifecycle.Route(true, claims.Recovery, lookup),
		AccountID: claims.AccountID,
		Recovery:  claims.Recovery,
	})
}
