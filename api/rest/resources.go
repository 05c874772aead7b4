package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/audit"
	"github.com/kasuganosora/civmanager/game/ledger"
)

// ResourceHandler exposes the resource ledger of the caller's civilization.
// Routes must be mounted behind RequireCivilization.
type ResourceHandler struct {
	ledger *ledger.Ledger
	audit  *audit.Service
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler(l *ledger.Ledger, auditSvc *audit.Service) *ResourceHandler {
	return &ResourceHandler{ledger: l, audit: auditSvc}
}

type amountRequest struct {
	Resource string `json:"resource" binding:"required"`
	Amount   int64  `json:"amount"`
}

type adjustRequest struct {
	Deltas map[string]int64 `json:"deltas"`
}

// Balance handles GET /api/resources.
func (h *ResourceHandler) Balance(c *gin.Context) {
	b, err := h.ledger.Balance(c.Request.Context(), GetCivilizationID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Add handles POST /api/resources/add.
func (h *ResourceHandler) Add(c *gin.Context) {
	h.single(c, "resources.add", h.ledger.Add)
}

// Consume handles POST /api/resources/consume.
func (h *ResourceHandler) Consume(c *gin.Context) {
	h.single(c, "resources.consume", h.ledger.Consume)
}

type singleOp func(ctx context.Context, civID int64, r ledger.Resource, amount int64) (ledger.Balance, error)

func (h *ResourceHandler) single(c *gin.Context, action string, op singleOp) {
	start := time.Now()
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	civID := GetCivilizationID(c)
	r, err := ledger.ParseResource(req.Resource)
	if err != nil {
		recordAudit(h.audit, c, action, civID, req, nil, err, start)
		respondError(c, err)
		return
	}
	b, err := op(c.Request.Context(), civID, r, req.Amount)
	recordAudit(h.audit, c, action, civID, req, b, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Adjust handles POST /api/resources/adjust.
func (h *ResourceHandler) Adjust(c *gin.Context) {
	start := time.Now()
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	civID := GetCivilizationID(c)
	deltas := make(map[ledger.Resource]int64, len(req.Deltas))
	for name, d := range req.Deltas {
		deltas[ledger.Resource(name)] = d
	}
	b, err := h.ledger.Adjust(c.Request.Context(), civID, deltas)
	recordAudit(h.audit, c, "resources.adjust", civID, req, b, err, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
