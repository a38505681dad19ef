// Package metrics provides Prometheus instrumentation for the session
// service: counters for store operations, a latency histogram, and gauges for
// the selected backend and connected watch clients.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StoreOps counts session store operations, labeled by operation
	// ("get", "set", "snapshot", "set_links", "list_recent"), backend
	// ("redis", "file") and outcome ("ok", "error").
	StoreOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmrpt_session_store_ops_total",
		Help: "Total number of session store operations",
	}, []string{"op", "backend", "outcome"})

	// StoreOpDuration records store operation latency in seconds.
	StoreOpDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatmrpt_session_store_op_seconds",
		Help:    "Session store operation latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// BackendSelected reports which backend the store chose at startup
	// (value 1 for the active backend).
	BackendSelected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chatmrpt_session_backend_selected",
		Help: "Selected session store backend (1 for active)",
	}, []string{"backend"})

	// WatchClients tracks the current number of connected session-watch
	// WebSocket clients.
	WatchClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatmrpt_session_watch_clients",
		Help: "Current number of connected session-watch clients",
	})

	// AuditWrites counts audit trail inserts, labeled by outcome.
	AuditWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmrpt_session_audit_writes_total",
		Help: "Total number of audit trail writes",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		StoreOps,
		StoreOpDuration,
		BackendSelected,
		WatchClients,
		AuditWrites,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
