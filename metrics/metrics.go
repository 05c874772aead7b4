// Package metrics exposes Prometheus counters for the civilization model.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/game/errs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civ_ledger_operations_total",
			Help: "Ledger operations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	assignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civ_job_assignments_total",
			Help: "Job assignment attempts by outcome.",
		},
		[]string{"outcome"},
	)

	civilizationsFoundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civ_civilizations_founded_total",
		Help: "Total number of civilizations founded.",
	})

	authEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civ_auth_events_total",
			Help: "Auth provider events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civ_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Outcome classifies an error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrInsufficientResource):
		return "insufficient"
	case errors.Is(err, errs.ErrInvalidOperation):
		return "invalid"
	case errors.Is(err, errs.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}

// ObserveLedger matches ledger.Observer.
func ObserveLedger(op string, _ int64, err error) {
	ledgerOperationsTotal.WithLabelValues(op, Outcome(err)).Inc()
}

// ObserveAssignment counts one assignment attempt.
func ObserveAssignment(err error) {
	assignmentsTotal.WithLabelValues(Outcome(err)).Inc()
}

// ObserveFounding counts a successful founding.
func ObserveFounding() {
	civilizationsFoundedTotal.Inc()
}

// ObserveAuth counts one auth provider call.
func ObserveAuth(typ string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	authEventsTotal.WithLabelValues(typ, outcome).Inc()
}

// Middleware records request latency labelled by the matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
