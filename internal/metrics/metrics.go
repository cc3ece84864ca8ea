package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	starts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jarmgr",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful starts.",
		}, []string{"id"},
	)
	stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jarmgr",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of stops by mode (graceful or kill).",
		}, []string{"id", "mode"},
	)
	spawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jarmgr",
			Subsystem: "process",
			Name:      "spawn_failures_total",
			Help:      "Starts that could not launch or exited within the grace period.",
		}, []string{"id"},
	)
	evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jarmgr",
			Subsystem: "registry",
			Name:      "evictions_total",
			Help:      "Stale pid entries removed on read.",
		}, []string{"id"},
	)
	liveProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jarmgr",
			Subsystem: "registry",
			Name:      "live_processes",
			Help:      "Live managed processes seen by the last health check.",
		},
	)
	rotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jarmgr",
			Subsystem: "logs",
			Name:      "rotations_total",
			Help:      "Log files rotated to .1.",
		}, []string{"id"},
	)
	retentionDeletes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jarmgr",
			Subsystem: "logs",
			Name:      "retention_deletes_total",
			Help:      "Log files deleted by the retention window.",
		},
	)
	maintenanceRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jarmgr",
			Subsystem: "daemon",
			Name:      "maintenance_runs_total",
			Help:      "Completed maintenance cycles.",
		},
	)
	maintenanceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jarmgr",
			Subsystem: "daemon",
			Name:      "maintenance_duration_seconds",
			Help:      "Wall time of one maintenance cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		starts, stops, spawnFailures, evictions, liveProcesses,
		rotations, retentionDeletes, maintenanceRuns, maintenanceDuration,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has succeeded.

func IncStart(id string) {
	if regOK.Load() {
		starts.WithLabelValues(id).Inc()
	}
}

func IncStop(id string, forced bool) {
	if regOK.Load() {
		mode := "graceful"
		if forced {
			mode = "kill"
		}
		stops.WithLabelValues(id, mode).Inc()
	}
}

func IncSpawnFailure(id string) {
	if regOK.Load() {
		spawnFailures.WithLabelValues(id).Inc()
	}
}

func IncEviction(id string) {
	if regOK.Load() {
		evictions.WithLabelValues(id).Inc()
	}
}

func SetLiveProcesses(n int) {
	if regOK.Load() {
		liveProcesses.Set(float64(n))
	}
}

func IncRotation(id string) {
	if regOK.Load() {
		rotations.WithLabelValues(id).Inc()
	}
}

func AddRetentionDeletes(n int) {
	if regOK.Load() && n > 0 {
		retentionDeletes.Add(float64(n))
	}
}

func ObserveMaintenance(seconds float64) {
	if regOK.Load() {
		maintenanceRuns.Inc()
		maintenanceDuration.Observe(seconds)
	}
}
