// Package metrics registers the Prometheus gauges/counters/histograms
// for queue depth, enqueue/dequeue latency, retries, and dead-letter
// count named in SPEC_FULL.md §4.10. Grounded on the teacher's
// internal/background/metrics.go WorkerPoolMetrics/promauto pattern,
// re-namespaced from helixagent_background_* to reviewqueue_*.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueMetrics holds every metric the core exports. Only QueueDepth,
// LiveVisibilityKeys and MaintenanceCycles are updated (by the
// maintenance loop); DequeueLatency, EnqueueLatency, Retries,
// DeadLettered and PipelineDuration are registered but no component in
// this repository observes or increments them, so they stay at zero.
type QueueMetrics struct {
	QueueDepth         *prometheus.GaugeVec
	LiveVisibilityKeys prometheus.Gauge
	DequeueLatency     prometheus.Histogram
	EnqueueLatency     prometheus.Histogram
	Retries            prometheus.Counter
	DeadLettered       prometheus.Counter
	MaintenanceCycles  *prometheus.CounterVec
	PipelineDuration   prometheus.Histogram
}

// New registers and returns a QueueMetrics. Construct once per process;
// re-registering the same names panics (promauto's default registry).
func New() *QueueMetrics {
	return &QueueMetrics{
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reviewqueue",
			Name:      "queue_depth",
			Help:      "Number of envelopes in each logical queue",
		}, []string{"queue"}),

		LiveVisibilityKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "reviewqueue",
			Name:      "live_visibility_keys",
			Help:      "Number of live visibility keys (claims currently in flight)",
		}),

		DequeueLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reviewqueue",
			Name:      "claim_latency_seconds",
			Help:      "Time spent blocked inside Claim",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2},
		}),

		EnqueueLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reviewqueue",
			Name:      "enqueue_latency_seconds",
			Help:      "Time spent inside Enqueue",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		Retries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewqueue",
			Name:      "retries_total",
			Help:      "Total number of envelope retries (nacks that scheduled a retry)",
		}),

		DeadLettered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewqueue",
			Name:      "dead_lettered_total",
			Help:      "Total number of envelopes moved to the failed queue",
		}),

		MaintenanceCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewqueue",
			Name:      "maintenance_cycles_total",
			Help:      "Total number of maintenance cycles run, by outcome",
		}, []string{"outcome"}), // outcome: ok, store_unavailable

		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reviewqueue",
			Name:      "pipeline_duration_seconds",
			Help:      "Time spent inside Pipeline.Process",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}
}

// UpdateQueueDepth sets the per-queue depth gauges from a queue.Stats-
// shaped snapshot without importing the queue package (avoids a cyclic
// dependency; callers pass the four counts plus the live visibility key
// count directly).
func (m *QueueMetrics) UpdateQueueDepth(main, processing, retry, failed, liveVisibilityKeys int64) {
	m.QueueDepth.WithLabelValues("main").Set(float64(main))
	m.QueueDepth.WithLabelValues("processing").Set(float64(processing))
	m.QueueDepth.WithLabelValues("retry").Set(float64(retry))
	m.QueueDepth.WithLabelValues("failed").Set(float64(failed))
	m.LiveVisibilityKeys.Set(float64(liveVisibilityKeys))
}

// global is the process-wide metrics instance used by the serve command
// and by maintenance.New when it is given a nil QueueMetrics, following
// the teacher's GetGlobalMetrics/SetGlobalMetrics singleton-for-tests
// convention.
var global *QueueMetrics

// GetGlobal returns the global metrics instance, creating it if
// necessary.
func GetGlobal() *QueueMetrics {
	if global == nil {
		global = New()
	}
	return global
}

// SetGlobal overrides the global metrics instance, so that a test can
// install a shared instance and avoid promauto's "duplicate metrics
// collector registration" panic. The tests in this repository construct
// their own shared instance with New instead of calling it.
func SetGlobal(m *QueueMetrics) {
	global = m
}
