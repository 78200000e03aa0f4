// Package metrics exposes Prometheus metrics for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the backend.
type Registry struct {
	// Connectivity
	RemoteReachable prometheus.Gauge
	RemoteChecks    *prometheus.CounterVec

	// Dual-write coordinator
	DualWritesTotal *prometheus.CounterVec

	// Reconciliation engine
	PendingChanges prometheus.Gauge
	SyncRunsTotal  *prometheus.CounterVec
	ReplaysTotal   *prometheus.CounterVec
	SyncDuration   prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Registry with all metrics registered.
func New() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.RemoteReachable = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "stayops_remote_reachable",
			Help: "Whether the remote store is currently reachable (1) or not (0)",
		},
	)

	r.RemoteChecks = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayops_remote_checks_total",
			Help: "Total remote reachability checks",
		},
		[]string{"result"},
	)

	r.DualWritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayops_dual_writes_total",
			Help: "Total dual-write operations",
		},
		[]string{"operation", "mode"},
	)

	r.PendingChanges = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "stayops_sync_pending_changes",
			Help: "Number of change records awaiting remote replay",
		},
	)

	r.SyncRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayops_sync_runs_total",
			Help: "Total reconciliation passes",
		},
		[]string{"trigger", "outcome"},
	)

	r.ReplaysTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "stayops_sync_replays_total",
			Help: "Total change replays against the remote store",
		},
		[]string{"entity_type", "outcome"},
	)

	r.SyncDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stayops_sync_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
		},
	)

	return r
}

// Handler returns an HTTP handler serving the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
