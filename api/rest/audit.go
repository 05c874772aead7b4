package rest

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/audit"
	mw "github.com/kasuganosora/civmanager/middleware"
)

// recordAudit enqueues an audit entry for the current request. A nil service
// disables auditing.
func recordAudit(svc *audit.Service, c *gin.Context, action string, civID int64,
	req, resp interface{}, err error, start time.Time) {
	if svc == nil {
		return
	}
	entry := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		Action:     action,
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if id := mw.GetAccountID(c); id != 0 {
		entry.AccountID = &id
	}
	if civID != 0 {
		entry.CivilizationID = &civID
	}
	if err != nil {
		entry.Error = err.Error()
		entry.Response = nil
	}
	svc.Log(entry)
}
