package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "terralens_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	siteWritesTotal    *prometheus.CounterVec
	siteSubscriptions  prometheus.Gauge
	siteSnapshotsTotal prometheus.Counter
	flowRunsTotal      *prometheus.CounterVec
	flowLatency        *prometheus.HistogramVec
	exportTotal        *prometheus.CounterVec
	exportLatency      *prometheus.HistogramVec
	notificationsTotal *prometheus.CounterVec
	promptReloadsTotal *prometheus.CounterVec
)

// Init registers metrics and, when counter is non-nil, per-collection document gauges.
func Init(counter DocumentCounter, logger *zap.Logger) {
	registerOnce.Do(func() {
		siteWritesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "site_writes_total",
				Help: "Total site writes by operation and result",
			},
			[]string{"op", "result"},
		)
		siteSubscriptions = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "site_subscriptions_active",
				Help: "Open live site subscriptions",
			},
		)
		siteSnapshotsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "site_snapshots_total",
				Help: "Total site snapshots delivered to subscribers",
			},
		)
		flowRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "flow_runs_total",
				Help: "Total flow runs by flow and result",
			},
			[]string{"flow", "result"},
		)
		flowLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "flow_latency_seconds",
				Help:    "Flow latency in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"flow", "result"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomaly_notifications_total",
				Help: "Total anomaly notifications by result",
			},
			[]string{"result"},
		)
		promptReloadsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "prompt_reloads_total",
				Help: "Total prompt library reloads by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			siteWritesTotal,
			siteSubscriptions,
			siteSnapshotsTotal,
			flowRunsTotal,
			flowLatency,
			exportTotal,
			exportLatency,
			notificationsTotal,
			promptReloadsTotal,
		)

		if counter != nil {
			registerDocumentMetrics(counter, logger)
		}
	})
}

// ObserveSiteWrite counts a create, update or delete.
func ObserveSiteWrite(op, result string) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if siteWritesTotal != nil {
		siteWritesTotal.WithLabelValues(op, result).Inc()
	}
}

// IncSubscriptions marks a subscription as opened.
func IncSubscriptions() {
	if siteSubscriptions != nil {
		siteSubscriptions.Inc()
	}
}

// DecSubscriptions marks a subscription as released.
func DecSubscriptions() {
	if siteSubscriptions != nil {
		siteSubscriptions.Dec()
	}
}

// IncSnapshot counts a delivered snapshot.
func IncSnapshot() {
	if siteSnapshotsTotal != nil {
		siteSnapshotsTotal.Inc()
	}
}

// ObserveFlow records flow latency and result.
func ObserveFlow(flow, result string, duration time.Duration) {
	if flow == "" {
		flow = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if flowRunsTotal != nil {
		flowRunsTotal.WithLabelValues(flow, result).Inc()
	}
	if flowLatency != nil {
		flowLatency.WithLabelValues(flow, result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncNotification counts an anomaly notification attempt.
func IncNotification(result string) {
	if result == "" {
		result = "unknown"
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(result).Inc()
	}
}

// IncPromptReload counts a prompt library reload.
func IncPromptReload(result string) {
	if result == "" {
		result = "unknown"
	}
	if promptReloadsTotal != nil {
		promptReloadsTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	// ResultSkipped marks a notification suppressed by settings or cooldown.
	ResultSkipped = "skipped"
)
