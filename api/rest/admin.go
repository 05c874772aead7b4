package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/audit"
	"github.com/kasuganosora/civmanager/auth"
	"github.com/kasuganosora/civmanager/catalog"
	"github.com/kasuganosora/civmanager/model"
	"github.com/kasuganosora/civmanager/scheduler"
	"github.com/kasuganosora/civmanager/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	st     *store.Store
	auth   *auth.Provider
	audit  *audit.Service
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	st *store.Store,
	p *auth.Provider,
	auditSvc *audit.Service,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{st: st, auth: p, audit: auditSvc, sched: sched, logger: logger}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// Metrics returns row counts and scheduler state.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	db := h.st.DB().WithContext(c.Request.Context())
	var accounts, civs, chars int64
	if err := db.Model(&model.Account{}).Count(&accounts).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := db.Model(&model.Civilization{}).Count(&civs).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := db.Model(&model.Character{}).Count(&chars).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts":        accounts,
		"civilizations":   civs,
		"characters":      chars,
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// Prometheus serves the Prometheus exposition format.
// GET /api/admin/prometheus
func (h *AdminHandler) Prometheus() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// UpsertJob creates or updates a catalog entry by name.
// POST /api/admin/jobs
func (h *AdminHandler) UpsertJob(c *gin.Context) {
	var entry catalog.Entry
	if err := c.ShouldBindJSON(&entry); err != nil {
		badRequest(c, err)
		return
	}
	if err := catalog.Validate([]catalog.Entry{entry}); err != nil {
		badRequest(c, err)
		return
	}
	job := entry.Job()
	if err := h.st.UpsertJob(c.Request.Context(), job); err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("admin upserted job", zap.String("job", job.Name))
	c.JSON(http.StatusOK, job)
}

// DeleteJob removes a catalog entry. Holders become unemployed.
// DELETE /api/admin/jobs/:id
func (h *AdminHandler) DeleteJob(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.st.DeleteJob(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("admin deleted job", zap.Int64("job_id", id))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// BanAccount bans or unbans a player account. Banning revokes its sessions.
// POST /api/admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	accountID, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.auth.SetBanned(c.Request.Context(), accountID, req.Ban); err != nil {
		respondError(c, err)
		return
	}
	status := model.AccountActive
	if req.Ban {
		status = model.AccountBanned
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// AccountAudit returns the latest audit entries of an account.
// GET /api/admin/accounts/:id/audit?limit=
func (h *AdminHandler) AccountAudit(c *gin.Context) {
	accountID, ok := pathID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.audit.Recent(c.Request.Context(), accountID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs})
}

// ListSchedulerTasks returns every registered task with its run statistics.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// RunSchedulerTask runs a registered task immediately.
// POST /api/admin/scheduler/:name/run
func (h *AdminHandler) RunSchedulerTask(c *gin.Context) {
	name := c.Param("name")
	if err := h.sched.RunNow(c.Request.Context(), name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scheduler.ErrUnknownTask) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints are disabled (503) so the server
// cannot be deployed without protection by accident.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
