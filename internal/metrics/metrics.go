// Package metrics defines the Prometheus instrumentation surface for a
// single reconciliation run: counts of created/removed/replaced servers,
// reconciliation duration, capacity conflicts, cloud API call latency and
// outcome, SSH command outcomes, and HTCondor drain timeouts. Grounded on imamik-k8zner's
// internal/operator/controller/metrics.go (namespaced CounterVec/GaugeVec/
// HistogramVec registered in an init) and cuemby-warren's pkg/metrics
// (package-level Timer helper, promhttp Handler).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vgcnbwc"

var (
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by result (success, partial_failure, capacity_conflict, config_error)",
		},
		[]string{"result"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "duration_seconds",
			Help:      "Duration of a full reconciliation run in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		},
	)

	GroupDesiredCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "desired_count",
			Help:      "Effective desired server count for a group, after time-window resolution",
		},
		[]string{"group"},
	)

	GroupObservedCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "observed_count",
			Help:      "Observed server count for a group at the start of a reconciliation pass",
		},
		[]string{"group"},
	)

	ServersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "servers_created_total",
			Help:      "Total number of servers created, by group and outcome (active, error)",
		},
		[]string{"group", "outcome"},
	)

	ServersRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "servers_removed_total",
			Help:      "Total number of servers removed, by group and termination mode (graceful, brutal)",
		},
		[]string{"group", "mode"},
	)

	ServersReplacedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "servers_replaced_total",
			Help:      "Total number of servers replaced due to a stale image",
		},
		[]string{"group"},
	)

	CapacityConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capacity",
			Name:      "conflicts_total",
			Help:      "Total number of capacity conflicts detected, by flavor",
		},
		[]string{"flavor"},
	)

	CloudAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cloud",
			Name:      "api_requests_total",
			Help:      "Total number of OpenStack cloud API calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	CloudAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cloud",
			Name:      "api_duration_seconds",
			Help:      "Latency of OpenStack cloud API calls by operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SSHCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ssh",
			Name:      "commands_total",
			Help:      "Total number of remote commands executed by result",
		},
		[]string{"result"},
	)

	CondorDrainTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "condor",
			Name:      "drain_timeouts_total",
			Help:      "Total number of HTCondor graceful drains that exceeded their deadline",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ReconcileTotal,
		ReconcileDuration,
		GroupDesiredCount,
		GroupObservedCount,
		ServersCreatedTotal,
		ServersRemovedTotal,
		ServersReplacedTotal,
		CapacityConflictsTotal,
		CloudAPIRequestsTotal,
		CloudAPIDuration,
		SSHCommandsTotal,
		CondorDrainTimeoutsTotal,
	)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labelValues ...string) {
	histogram.WithLabelValues(labelValues...).Observe(time.Since(t.start).Seconds())
}
