package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for workflow execution, namespaced
// under "workflow_":
//
//	superstep_latency_ms (histogram): duration of one scheduler iteration.
//	  Labels: workflow_id, status (success/error).
//	deliveries_total (counter): messages delivered to executors.
//	  Labels: workflow_id, executor_id.
//	warnings_total (counter): routing warnings (dropped messages).
//	  Labels: workflow_id.
//	outbox_depth (gauge): pending messages at the start of a superstep.
//	inflight_executors (gauge): executors currently processing.
//
// A nil *Metrics disables recording; every method is nil-safe so the
// scheduler never branches on whether metrics were configured.
//
// Expose via HTTP for scraping:
//
//	registry := prometheus.NewRegistry()
//	metrics := workflow.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	superstepLatency *prometheus.HistogramVec
	deliveries       *prometheus.CounterVec
	warnings         *prometheus.CounterVec
	outboxDepth      prometheus.Gauge
	inflight         prometheus.Gauge
}

// NewMetrics creates and registers the workflow metrics with registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		superstepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow",
			Name:      "superstep_latency_ms",
			Help:      "Duration of one superstep (drain, route, process) in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"workflow_id", "status"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "deliveries_total",
			Help:      "Messages delivered to executors",
		}, []string{"workflow_id", "executor_id"}),
		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "warnings_total",
			Help:      "Routing warnings: undeliverable or dropped messages",
		}, []string{"workflow_id"}),
		outboxDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow",
			Name:      "outbox_depth",
			Help:      "Pending messages at the start of the current superstep",
		}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow",
			Name:      "inflight_executors",
			Help:      "Executors currently processing a message",
		}),
	}
}

func (m *Metrics) recordSuperstep(workflowID string, latency time.Duration, status string) {
	if m == nil {
		return
	}
	m.superstepLatency.WithLabelValues(workflowID, status).Observe(float64(latency.Milliseconds()))
}

func (m *Metrics) incDelivery(workflowID, executorID string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(workflowID, executorID).Inc()
}

func (m *Metrics) incWarning(workflowID string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(workflowID).Inc()
}

func (m *Metrics) setOutboxDepth(depth int) {
	if m == nil {
		return
	}
	m.outboxDepth.Set(float64(depth))
}

func (m *Metrics) setInflight(count int) {
	if m == nil {
		return
	}
	m.inflight.Set(float64(count))
}
