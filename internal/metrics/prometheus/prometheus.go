// Package prometheus implements cache.Metrics with Prometheus collectors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leonardcser/memo/internal/cache"
	"github.com/leonardcser/memo/internal/metrics"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Computations wrapped by the cache are usually network calls, so the
// buckets reach further than typical request latencies.
var wrapBuckets = []float64{
	.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30,
}

type cacheMetrics struct {
	lookups        *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	wrapDuration   *prometheus.HistogramVec
	wraps          *prometheus.CounterVec
	cleanupRemoved *prometheus.CounterVec
}

// NewCacheMetrics registers the cache collectors with reg.
func NewCacheMetrics(reg prometheus.Registerer) cache.Metrics {
	m := &cacheMetrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memo_cache_lookups_total",
			Help: "Total number of cache lookups by resolved state",
		}, []string{"namespace", "op", "state"}),

		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memo_cache_decode_failures_total",
			Help: "Total number of stored entries that failed to decode on lookup",
		}, []string{"namespace", "op"}),

		wrapDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memo_cache_wrap_compute_duration_seconds",
			Help:    "Duration of computations run on a cache miss",
			Buckets: wrapBuckets,
		}, []string{"namespace"}),

		wraps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memo_cache_wraps_total",
			Help: "Total number of Wrap calls that missed the cache",
		}, []string{"namespace", "coalesced", "success"}),

		cleanupRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memo_cache_cleanup_removed_total",
			Help: "Total number of entries removed by cleanup",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.lookups,
		m.decodeFailures,
		m.wrapDuration,
		m.wraps,
		m.cleanupRemoved,
	)

	return m
}

func (m *cacheMetrics) Lookup(namespace, op string, state cache.State) {
	m.lookups.WithLabelValues(namespace, op, state.String()).Inc()
}

func (m *cacheMetrics) DecodeFailed(namespace, op string) {
	m.decodeFailures.WithLabelValues(namespace, op).Inc()
}

func (m *cacheMetrics) WrapDuration(namespace string) metrics.Timer {
	return newTimer(m.wrapDuration.WithLabelValues(namespace))
}

func (m *cacheMetrics) WrapCompleted(namespace string, coalesced, success bool) {
	m.wraps.WithLabelValues(namespace, boolToStr(coalesced), boolToStr(success)).Inc()
}

func (m *cacheMetrics) CleanupRemoved(reason string, count int) {
	if count > 0 {
		m.cleanupRemoved.WithLabelValues(reason).Add(float64(count))
	}
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ cache.Metrics = (*cacheMetrics)(nil)
