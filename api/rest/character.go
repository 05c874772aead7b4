package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/audit"
	"github.com/kasuganosora/civmanager/game/assignment"
	"github.com/kasuganosora/civmanager/metrics"
)

// CharacterHandler handles roster and job-assignment endpoints. Routes must be
// mounted behind RequireCivilization.
type CharacterHandler struct {
	mgr   *assignment.Manager
	audit *audit.Service
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(mgr *assignment.Manager, auditSvc *audit.Service) *CharacterHandler {
	return &CharacterHandler{mgr: mgr, audit: auditSvc}
}

func characterID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid character id"})
		return 0, false
	}
	return id, true
}

// List handles GET /api/characters.
func (h *CharacterHandler) List(c *gin.Context) {
	roster, err := h.mgr.Roster(c.Request.Context(), GetCivilizationID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": roster})
}

// Recruit handles POST /api/characters.
func (h *CharacterHandler) Recruit(c *gin.Context) {
	start := time.Now()
	var req assignment.RecruitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	civID := GetCivilizationID(c)
	char, err := h.mgr.Recruit(c.Request.Context(), civID, req)
	recordAudit(h.audit, c, "character.recruit", civID, req, char, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, char)
}

// Delete handles DELETE /api/characters/:id.
func (h *CharacterHandler) Delete(c *gin.Context) {
	start := time.Now()
	charID, ok := characterID(c)
	if !ok {
		return
	}
	civID := GetCivilizationID(c)
	err := h.mgr.Delete(c.Request.Context(), civID, charID)
	recordAudit(h.audit, c, "character.delete", civID, gin.H{"character_id": charID}, nil, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type assignRequest struct {
	JobID int64 `json:"job_id" binding:"required"`
}

// Assign handles PUT /api/characters/:id/job.
func (h *CharacterHandler) Assign(c *gin.Context) {
	start := time.Now()
	charID, ok := characterID(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	civID := GetCivilizationID(c)
	char, err := h.mgr.Assign(c.Request.Context(), civID, charID, req.JobID)
	metrics.ObserveAssignment(err)
	recordAudit(h.audit, c, "character.assign",
		civID, gin.H{"character_id": charID, "job_id": req.JobID}, char, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, char)
}

// Unassign handles DELETE /api/characters/:id/job.
func (h *CharacterHandler) Unassign(c *gin.Context) {
	start := time.Now()
	charID, ok := characterID(c)
	if !ok {
		return
	}
	civID := GetCivilizationID(c)
	char, err := h.mgr.Unassign(c.Request.Context(), civID, charID)
	recordAudit(h.audit, c, "character.unassign", civID, gin.H{"character_id": charID}, char, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, char)
}

// CompatibleJobs handles GET /api/characters/:id/jobs.
func (h *CharacterHandler) CompatibleJobs(c *gin.Context) {
	charID, ok := characterID(c)
	if !ok {
		return
	}
	list, err := h.mgr.CompatibleJobs(c.Request.Context(), GetCivilizationID(c), charID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}
