package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/auth"
	"github.com/kasuganosora/civmanager/metrics"
	mw "github.com/kasuganosora/civmanager/middleware"
	"go.uber.org/zap"
)

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	auth   *auth.Provider
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(p *auth.Provider, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: p, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"    binding:"required,max=128"`
	Password string `json:"password" binding:"required,max=72"`
}

// SignUp handles POST /api/auth/signup.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	metrics.ObserveAuth("signup", err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// SignIn handles POST /api/auth/signin.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	metrics.ObserveAuth("signin", err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SignOut handles POST /api/auth/signout. It always succeeds: a provider
// failure is logged and the client drops its token regardless.
func (h *AuthHandler) SignOut(c *gin.Context) {
	token := mw.BearerToken(c)
	if token != "" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err := h.auth.SignOut(ctx, token)
		metrics.ObserveAuth("signout", err)
		if err != nil {
			h.logger.Warn("sign out failed", zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

type resetRequest struct {
	Email string `json:"email" binding:"required"`
}

// RequestReset handles POST /api/auth/password/reset. Apart from a malformed
// address the answer is always 202 so accounts cannot be probed.
func (h *AuthHandler) RequestReset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email)
	metrics.ObserveAuth("password_reset", err)
	if errors.Is(err, auth.ErrInvalidEmail) {
		respondError(c, err)
		return
	}
	if err != nil {
		h.logger.Error("password reset request failed", zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "if the address is registered a recovery link has been sent"})
}

type recoverRequest struct {
	Token string `json:"token" binding:"required"`
}

// Recover handles POST /api/auth/password/recover: it redeems the token of a
// recovery link for a recovery session.
func (h *AuthHandler) Recover(c *gin.Context) {
	var req recoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.auth.OpenRecovery(c.Request.Context(), req.Token)
	metrics.ObserveAuth("recover", err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type updatePasswordRequest struct {
	Password string `json:"password" binding:"required,max=72"`
}

// UpdatePassword handles POST /api/auth/password/update. The bearer must be
// a recovery session; every session of the account is revoked afterwards.
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	token := mw.BearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := h.auth.UpdatePassword(c.Request.Context(), token, req.Password)
	metrics.ObserveAuth("password_update", err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}
