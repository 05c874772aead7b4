package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/store"
)

// JobHandler serves the global job catalog.
type JobHandler struct {
	st *store.Store
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(st *store.Store) *JobHandler {
	return &JobHandler{st: st}
}

// List handles GET /api/jobs.
func (h *JobHandler) List(c *gin.Context) {
	list, err := h.st.Jobs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}
