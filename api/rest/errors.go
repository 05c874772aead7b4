package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/auth"
	"github.com/kasuganosora/civmanager/game/errs"
)

// statusOf maps domain and auth errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrInsufficientResource):
		return http.StatusConflict
	case errors.Is(err, errs.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotEligible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidSession):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAccountBanned),
		errors.Is(err, auth.ErrRecoveryRequired):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrInvalidResetToken):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": ...} for err. Unclassified errors are hidden
// behind "internal error"; the cause is attached to the context for the
// request logger.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	body := gin.H{"error": err.Error()}
	var ire *errs.InsufficientResourceError
	if errors.As(err, &ire) {
		body["resource"] = ire.Resource
		body["requested"] = ire.Requested
		body["available"] = ire.Available
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
