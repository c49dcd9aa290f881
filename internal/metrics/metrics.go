// ABOUTME: Prometheus collectors for the sync layer
// ABOUTME: Counts loads, applied and dropped changes, mutations and resubscribes

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/para-sync/internal/entity"
)

const (
	namespace = "para"
	subsystem = "sync"
)

// Mutation results
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultTimeout  = "timeout"
	ResultError    = "error"
)

// Metrics holds the sync layer collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	loads            *prometheus.CounterVec
	loadDuration     prometheus.Histogram
	changesApplied   *prometheus.CounterVec
	changesDropped   *prometheus.CounterVec
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	resubscribes     *prometheus.CounterVec
	subscribers      prometheus.Gauge
}

// New registers the collectors on reg. Use a fresh prometheus.NewRegistry
// per Facade; registering twice on the same registry panics.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "loads_total",
			Help:      "Bulk loads by result",
		}, []string{"result"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "load_duration_seconds",
			Help:      "Duration of bulk loads in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		changesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "changes_applied_total",
			Help:      "Change events applied to the collection store",
		}, []string{"collection", "type"}),
		changesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "changes_dropped_total",
			Help:      "Change events dropped before apply, by reason",
		}, []string{"collection", "reason"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mutations_total",
			Help:      "Mutations sent to the remote store by result",
		}, []string{"collection", "op", "result"}),
		mutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mutation_duration_seconds",
			Help:      "Round trip duration of mutations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "op"}),
		resubscribes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resubscribes_total",
			Help:      "Change feed resubscriptions after a disconnect",
		}, []string{"collection", "result"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "open_change_feeds",
			Help:      "Change feeds currently open",
		}),
	}
	reg.MustRegister(
		m.loads,
		m.loadDuration,
		m.changesApplied,
		m.changesDropped,
		m.mutations,
		m.mutationDuration,
		m.resubscribes,
		m.subscribers,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveLoad records one bulk load.
func (m *Metrics) ObserveLoad(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultError
	}
	m.loads.WithLabelValues(result).Inc()
	m.loadDuration.Observe(d.Seconds())
}

// ChangeApplied counts an applied change event.
func (m *Metrics) ChangeApplied(c entity.Collection, changeType string) {
	if m == nil {
		return
	}
	m.changesApplied.WithLabelValues(string(c), changeType).Inc()
}

// ChangeDropped counts a change event dropped for reason.
func (m *Metrics) ChangeDropped(c entity.Collection, reason string) {
	if m == nil {
		return
	}
	m.changesDropped.WithLabelValues(string(c), reason).Inc()
}

// ObserveMutation records one mutation round trip.
func (m *Metrics) ObserveMutation(c entity.Collection, op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(c), op, result).Inc()
	m.mutationDuration.WithLabelValues(string(c), op).Observe(d.Seconds())
}

// Resubscribed counts a resubscribe attempt outcome.
func (m *Metrics) Resubscribed(c entity.Collection, ok bool) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultError
	}
	m.resubscribes.WithLabelValues(string(c), result).Inc()
}

// FeedOpened tracks an opened change feed.
func (m *Metrics) FeedOpened() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

// FeedClosed tracks a closed change feed.
func (m *Metrics) FeedClosed() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}
