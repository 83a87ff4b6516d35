// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Launch metrics
	LaunchesStarted prometheus.Counter
	LaunchRetries   prometheus.Counter
	LaunchOutcomes  *prometheus.CounterVec
	StageAdvances   *prometheus.CounterVec
	LaunchFailures  *prometheus.CounterVec

	// Sell metrics
	SellsDispatched *prometheus.CounterVec
	SellRejections  *prometheus.CounterVec

	// Pool metrics
	PoolAddressesTotal prometheus.Gauge
	PoolAddressesUsed  prometheus.Gauge
	PoolAllocations    prometheus.Counter
	PoolReleases       prometheus.Counter
	PoolExhaustions    prometheus.Counter

	// Queue metrics
	JobsEnqueued     *prometheus.CounterVec
	JobsDeduplicated *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency  *prometheus.HistogramVec
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Ledger metrics
	LedgerRowsRecorded *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "launch_engine"
	}

	return &Metrics{
		LaunchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "launches_started_total",
			Help:      "Total number of launch campaigns started",
		}),
		LaunchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "launch_retries_total",
			Help:      "Total number of launch retries dispatched",
		}),
		LaunchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "launch_outcomes_total",
			Help:      "Launch outcome reports by type and result",
		}, []string{"type", "result"}),
		StageAdvances: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "stage_advances_total",
			Help:      "Launch stage advances by target stage",
		}, []string{"stage"}),
		LaunchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "launch_failures_total",
			Help:      "Launch failures by classification",
		}, []string{"classification"}),
		SellsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "sells_dispatched_total",
			Help:      "Sell jobs dispatched by operation",
		}, []string{"operation"}),
		SellRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "sell_rejections_total",
			Help:      "Sell submissions rejected while the advisory lock was held",
		}, []string{"operation"}),
		PoolAddressesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "addresses_total",
			Help:      "Total provisioned pool addresses",
		}),
		PoolAddressesUsed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "addresses_used",
			Help:      "Pool addresses currently reserved",
		}),
		PoolAllocations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "allocations_total",
			Help:      "Total successful pool allocations",
		}),
		PoolReleases: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "releases_total",
			Help:      "Total pool address releases",
		}),
		PoolExhaustions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "exhaustions_total",
			Help:      "Allocation attempts that found no free address",
		}),
		JobsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_enqueued_total",
			Help:      "Jobs handed to the execution queue by operation",
		}, []string{"operation"}),
		JobsDeduplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_deduplicated_total",
			Help:      "Enqueues skipped because the job identity was already dispatched",
		}, []string{"operation"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Blockchain RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Database query errors",
		}, []string{"database", "operation"}),
		LedgerRowsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rows_recorded_total",
			Help:      "Transaction ledger rows appended by type and result",
		}, []string{"type", "result"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordLaunchStarted increments the launches started counter.
func RecordLaunchStarted() {
	DefaultMetrics.LaunchesStarted.Inc()
}

// RecordLaunchRetry increments the launch retries counter.
func RecordLaunchRetry() {
	DefaultMetrics.LaunchRetries.Inc()
}

// RecordLaunchOutcome records a worker outcome report.
func RecordLaunchOutcome(txType string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	DefaultMetrics.LaunchOutcomes.WithLabelValues(txType, result).Inc()
	DefaultMetrics.LedgerRowsRecorded.WithLabelValues(txType, result).Inc()
}

// RecordLaunchFailure records a classified launch failure.
func RecordLaunchFailure(permanent bool) {
	classification := "transient"
	if permanent {
		classification = "permanent"
	}
	DefaultMetrics.LaunchFailures.WithLabelValues(classification).Inc()
}

// RecordSellDispatched increments the sells dispatched counter.
func RecordSellDispatched(operation string) {
	DefaultMetrics.SellsDispatched.WithLabelValues(operation).Inc()
}

// RecordSellRejection increments the lock-held rejection counter.
func RecordSellRejection(operation string) {
	DefaultMetrics.SellRejections.WithLabelValues(operation).Inc()
}

// UpdatePoolStats updates the pool occupancy gauges.
func UpdatePoolStats(total, used int) {
	DefaultMetrics.PoolAddressesTotal.Set(float64(total))
	DefaultMetrics.PoolAddressesUsed.Set(float64(used))
}

// RecordPoolAllocation increments the pool allocation counter.
func RecordPoolAllocation() {
	DefaultMetrics.PoolAllocations.Inc()
}

// RecordPoolRelease increments the pool release counter.
func RecordPoolRelease() {
	DefaultMetrics.PoolReleases.Inc()
}

// RecordPoolExhaustion increments the pool exhaustion counter.
func RecordPoolExhaustion() {
	DefaultMetrics.PoolExhaustions.Inc()
}

// RecordJobEnqueued increments the jobs enqueued counter.
func RecordJobEnqueued(operation string) {
	DefaultMetrics.JobsEnqueued.WithLabelValues(operation).Inc()
}

// RecordJobDeduplicated increments the deduplicated jobs counter.
func RecordJobDeduplicated(operation string) {
	DefaultMetrics.JobsDeduplicated.WithLabelValues(operation).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
