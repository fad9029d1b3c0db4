package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics the hub exposes: sample
// pushes, buffer eviction, handler fan-out latency, and namespace cache
// hit rate.
type Metrics struct {
	PushesTotal        *prometheus.CounterVec
	PushErrorsTotal    *prometheus.CounterVec
	BufferOverflows    *prometheus.CounterVec
	BufferSize         *prometheus.GaugeVec
	HandlerFanoutTime  *prometheus.HistogramVec
	HandlersActive     *prometheus.GaugeVec
	NamespaceCacheHits prometheus.Counter
	NamespaceCacheMiss prometheus.Counter
	ClientsKilled      *prometheus.CounterVec
	ResourceCount      *prometheus.GaugeVec
}

// NewMetrics creates the hub's metric instruments. They are registered in a
// MetricsRegistry via NewMetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		PushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datahub",
				Subsystem: "push",
				Name:      "total",
				Help:      "Total number of samples accepted by the push pipeline",
			},
			[]string{"kind"},
		),

		PushErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datahub",
				Subsystem: "push",
				Name:      "errors_total",
				Help:      "Total number of rejected pushes, by status",
			},
			[]string{"status"},
		),

		BufferOverflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datahub",
				Subsystem: "buffer",
				Name:      "overflow_total",
				Help:      "Total number of buffer entries evicted for size or window",
			},
			[]string{"reason"},
		),

		BufferSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "datahub",
				Subsystem: "buffer",
				Name:      "entries",
				Help:      "Current number of entries retained in an observation's buffer",
			},
			[]string{"path"},
		),

		HandlerFanoutTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "datahub",
				Subsystem: "handler",
				Name:      "fanout_seconds",
				Help:      "Time spent invoking all push handlers registered on a resource",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"},
		),

		HandlersActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "datahub",
				Subsystem: "handler",
				Name:      "active",
				Help:      "Number of push handlers currently registered on a resource",
			},
			[]string{"path"},
		),

		NamespaceCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "datahub",
				Subsystem: "namespace",
				Name:      "cache_hits_total",
				Help:      "Total number of client-namespace bindings resolved from cache",
			},
		),

		NamespaceCacheMiss: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "datahub",
				Subsystem: "namespace",
				Name:      "cache_misses_total",
				Help:      "Total number of client-namespace bindings resolved by tree walk",
			},
		),

		ClientsKilled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datahub",
				Subsystem: "session",
				Name:      "killed_total",
				Help:      "Total number of client sessions terminated for a contract violation",
			},
			[]string{"reason"},
		),

		ResourceCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "datahub",
				Subsystem: "tree",
				Name:      "resources",
				Help:      "Current number of entries in the resource tree, by role",
			},
			[]string{"role"},
		),
	}
}

// RecordPush increments the accepted-push counter for kind.
func (m *Metrics) RecordPush(kind string) {
	m.PushesTotal.WithLabelValues(kind).Inc()
}

// RecordPushError increments the rejected-push counter for status.
func (m *Metrics) RecordPushError(status string) {
	m.PushErrorsTotal.WithLabelValues(status).Inc()
}

// RecordBufferOverflow increments the eviction counter for reason ("size" or "window").
func (m *Metrics) RecordBufferOverflow(reason string) {
	m.BufferOverflows.WithLabelValues(reason).Inc()
}

// SetBufferSize records the current entry count of the buffer at path.
func (m *Metrics) SetBufferSize(path string, size int) {
	m.BufferSize.WithLabelValues(path).Set(float64(size))
}

// RecordHandlerFanout records how long fan-out to all handlers on path took.
func (m *Metrics) RecordHandlerFanout(path string, d time.Duration) {
	m.HandlerFanoutTime.WithLabelValues(path).Observe(d.Seconds())
}

// SetHandlersActive records the current handler count on path.
func (m *Metrics) SetHandlersActive(path string, count int) {
	m.HandlersActive.WithLabelValues(path).Set(float64(count))
}

// RecordNamespaceCacheHit increments the namespace binding cache hit counter.
func (m *Metrics) RecordNamespaceCacheHit() {
	m.NamespaceCacheHits.Inc()
}

// RecordNamespaceCacheMiss increments the namespace binding cache miss counter.
func (m *Metrics) RecordNamespaceCacheMiss() {
	m.NamespaceCacheMiss.Inc()
}

// RecordClientKilled increments the killed-session counter for reason.
func (m *Metrics) RecordClientKilled(reason string) {
	m.ClientsKilled.WithLabelValues(reason).Inc()
}

// SetResourceCount records the current resource tree entry count for role.
func (m *Metrics) SetResourceCount(role string, count int) {
	m.ResourceCount.WithLabelValues(role).Set(float64(count))
}
