// Package metrics exposes Prometheus collectors for matchmaking and rating.
// All methods are safe on a nil *Metrics so engines can run without them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "playchess"

type Metrics struct {
	registry *prometheus.Registry

	queueJoins     *prometheus.CounterVec
	queueLeaves    *prometheus.CounterVec
	matchesFormed  *prometheus.CounterVec
	matchWait      *prometheus.HistogramVec
	ratingUpdates  *prometheus.CounterVec
	recalculations *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		queueJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matchmaking",
			Name:      "queue_joins_total",
			Help:      "Join-queue requests per mode.",
		}, []string{"mode"}),
		queueLeaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matchmaking",
			Name:      "queue_leaves_total",
			Help:      "Leave-queue requests per mode and whether an entry was removed.",
		}, []string{"mode", "removed"}),
		matchesFormed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matchmaking",
			Name:      "matches_total",
			Help:      "Matches formed per mode.",
		}, []string{"mode"}),
		matchWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matchmaking",
			Name:      "candidate_wait_seconds",
			Help:      "Time the matched candidate spent in the queue.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"mode"}),
		ratingUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rating",
			Name:      "results_total",
			Help:      "Game results applied per pool.",
		}, []string{"pool"}),
		recalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rating",
			Name:      "recalculations_total",
			Help:      "Pool recalculations; pool is empty for a full recalculation.",
		}, []string{"pool"}),
	}

	reg.MustRegister(
		m.queueJoins,
		m.queueLeaves,
		m.matchesFormed,
		m.matchWait,
		m.ratingUpdates,
		m.recalculations,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) QueueJoined(mode string) {
	if m == nil {
		return
	}
	m.queueJoins.WithLabelValues(mode).Inc()
}

func (m *Metrics) QueueLeft(mode string, removed bool) {
	if m == nil {
		return
	}
	label := "false"
	if removed {
		label = "true"
	}
	m.queueLeaves.WithLabelValues(mode, label).Inc()
}

func (m *Metrics) MatchFormed(mode string, candidateWait time.Duration) {
	if m == nil {
		return
	}
	m.matchesFormed.WithLabelValues(mode).Inc()
	m.matchWait.WithLabelValues(mode).Observe(candidateWait.Seconds())
}

func (m *Metrics) RatingUpdated(pool string) {
	if m == nil {
		return
	}
	m.ratingUpdates.WithLabelValues(pool).Inc()
}

func (m *Metrics) RatingsRecalculated(pool string) {
	if m == nil {
		return
	}
	m.recalculations.WithLabelValues(pool).Inc()
}
