// internal/monitoring/metrics.go
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run outcomes
const (
	OutcomeSuccess = "success"
	OutcomeDryRun  = "dry_run"
	OutcomeFailure = "failure"
)

// MetricsManager holds the sync metrics on a private registry. All record
// methods are no-ops on a nil manager.
type MetricsManager struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	runsInProgress prometheus.Gauge
	lastSuccess    prometheus.Gauge

	listings      *prometheus.CounterVec
	tableRows     prometheus.Gauge
	scrollCycles  prometheus.Histogram
	scrollWaits   prometheus.Counter
	storageCalls  *prometheus.CounterVec
	storageTiming *prometheus.HistogramVec

	namespace string
}

// MetricsConfig configuration for metrics
type MetricsConfig struct {
	Enabled         bool              `yaml:"enabled" json:"enabled"`
	Namespace       string            `yaml:"namespace" json:"namespace"`
	Labels          map[string]string `yaml:"labels" json:"labels"`
	EnableGoMetrics bool              `yaml:"go_metrics" json:"go_metrics"`
	PushgatewayURL  string            `yaml:"pushgateway_url" json:"pushgateway_url"`
	PushJob         string            `yaml:"push_job" json:"push_job"`
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(config MetricsConfig) *MetricsManager {
	if config.Namespace == "" {
		config.Namespace = "listingsync"
	}

	registry := prometheus.NewRegistry()
	if config.EnableGoMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var registerer prometheus.Registerer = registry
	if len(config.Labels) > 0 {
		registerer = prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)
	}

	mm := &MetricsManager{registry: registry, namespace: config.Namespace}
	mm.initializeMetrics(promauto.With(registerer))
	return mm
}

// initializeMetrics initializes all Prometheus metrics
func (mm *MetricsManager) initializeMetrics(factory promauto.Factory) {
	mm.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Name:      "runs_total",
			Help:      "Sync runs by outcome",
		},
		[]string{"outcome", "error_code"},
	)

	mm.runDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: mm.namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a sync run",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	mm.runsInProgress = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: mm.namespace,
			Name:      "runs_in_progress",
			Help:      "Sync runs currently executing",
		},
	)

	mm.lastSuccess = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: mm.namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		},
	)

	mm.listings = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Name:      "listings_total",
			Help:      "Listings seen per pipeline stage",
		},
		[]string{"stage"},
	)

	mm.tableRows = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: mm.namespace,
			Name:      "table_records",
			Help:      "Records in the table after the last run",
		},
	)

	mm.scrollCycles = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: mm.namespace,
			Subsystem: "scroll",
			Name:      "cycles",
			Help:      "Scroll cycles needed for the list to settle",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 8),
		},
	)

	mm.scrollWaits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: "scroll",
			Name:      "wait_timeouts_total",
			Help:      "Growth waits that timed out",
		},
	)

	mm.storageCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: mm.namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage backend calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	mm.storageTiming = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: mm.namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage backend call duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
}

// RecordRunStart marks a run as in progress
func (mm *MetricsManager) RecordRunStart() {
	if mm == nil {
		return
	}
	mm.runsInProgress.Inc()
}

// RecordRunEnd records a finished run; errorCode is empty on success
func (mm *MetricsManager) RecordRunEnd(outcome, errorCode string, duration time.Duration) {
	if mm == nil {
		return
	}
	mm.runsInProgress.Dec()
	mm.runsTotal.WithLabelValues(outcome, errorCode).Inc()
	mm.runDuration.Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		mm.lastSuccess.SetToCurrentTime()
	}
}

// RecordListings adds n listings to a pipeline stage counter
func (mm *MetricsManager) RecordListings(stage string, n int) {
	if mm == nil || n <= 0 {
		return
	}
	mm.listings.WithLabelValues(stage).Add(float64(n))
}

// SetTableRecords records the size of the written table
func (mm *MetricsManager) SetTableRecords(n int) {
	if mm == nil {
		return
	}
	mm.tableRows.Set(float64(n))
}

// RecordScroll records one scroll controller run
func (mm *MetricsManager) RecordScroll(cycles, timeouts int) {
	if mm == nil {
		return
	}
	mm.scrollCycles.Observe(float64(cycles))
	mm.scrollWaits.Add(float64(timeouts))
}

// RecordStorageCall records one storage backend call
func (mm *MetricsManager) RecordStorageCall(operation string, err error, duration time.Duration) {
	if mm == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	mm.storageCalls.WithLabelValues(operation, status).Inc()
	mm.storageTiming.WithLabelValues(operation).Observe(duration.Seconds())
}

// Registry exposes the underlying registry
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

// MetricsHandler returns the Prometheus metrics HTTP handler
func (mm *MetricsManager) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{})
}

// Push sends the current metrics to a Pushgateway. Used after one-shot runs
// that exit before a scrape could happen.
func (mm *MetricsManager) Push(ctx context.Context, url, job string) error {
	if job == "" {
		job = mm.namespace
	}
	if err := push.New(url, job).Gatherer(mm.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// GetMetrics returns a flat snapshot of counter and gauge values, keyed by
// metric name plus labels.
func (mm *MetricsManager) GetMetrics() (map[string]float64, error) {
	families, err := mm.registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, family := range families {
		for _, m := range family.GetMetric() {
			key := family.GetName()
			for _, label := range m.GetLabel() {
				if label.GetValue() == "" {
					continue
				}
				key += fmt.Sprintf(",%s=%s", label.GetName(), label.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key+",count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
