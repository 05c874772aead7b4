package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/audit"
	"github.com/kasuganosora/civmanager/game/civilization"
	"github.com/kasuganosora/civmanager/game/errs"
	"github.com/kasuganosora/civmanager/metrics"
	mw "github.com/kasuganosora/civmanager/middleware"
)

// CivilizationIDKey is the gin context key set by RequireCivilization.
const CivilizationIDKey = "civilization_id"

// RequireCivilization resolves the civilization of the authenticated account
// and stores its id in the context. Accounts that have not founded one get 404
// so the client routes them to setup. Mount after mw.Auth.
func RequireCivilization(civs *civilization.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := civs.ByUser(c.Request.Context(), mw.GetAccountID(c))
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set(CivilizationIDKey, view.ID)
		c.Next()
	}
}

// GetCivilizationID returns the civilization id set by RequireCivilization.
func GetCivilizationID(c *gin.Context) int64 {
	return c.GetInt64(CivilizationIDKey)
}

// CivilizationHandler handles founding and reading the player's civilization.
type CivilizationHandler struct {
	civs  *civilization.Service
	audit *audit.Service
}

// NewCivilizationHandler creates a CivilizationHandler.
func NewCivilizationHandler(civs *civilization.Service, auditSvc *audit.Service) *CivilizationHandler {
	return &CivilizationHandler{civs: civs, audit: auditSvc}
}

type civilizationRequest struct {
	Name string `json:"name" binding:"required"`
}

// Found handles POST /api/civilization.
func (h *CivilizationHandler) Found(c *gin.Context) {
	start := time.Now()
	var req civilizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	view, err := h.civs.Found(c.Request.Context(), mw.GetAccountID(c), req.Name)
	var civID int64
	if view != nil {
		civID = view.ID
	}
	recordAudit(h.audit, c, "civilization.found", civID, req, view, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.ObserveFounding()
	c.JSON(http.StatusCreated, view)
}

// Get handles GET /api/civilization.
func (h *CivilizationHandler) Get(c *gin.Context) {
	view, err := h.civs.ByUser(c.Request.Context(), mw.GetAccountID(c))
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no civilization founded"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Rename handles PATCH /api/civilization.
func (h *CivilizationHandler) Rename(c *gin.Context) {
	start := time.Now()
	var req civilizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	civ, err := h.civs.Rename(c.Request.Context(), mw.GetAccountID(c), req.Name)
	var civID int64
	if civ != nil {
		civID = civ.ID
	}
	recordAudit(h.audit, c, "civilization.rename", civID, req, civ, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, civ)
}
