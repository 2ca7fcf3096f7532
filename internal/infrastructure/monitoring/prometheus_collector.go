package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	sessionsActive prometheus.Gauge
	pairedClients  prometheus.Gauge
	pendingPairs   prometheus.Gauge

	// Counters
	sessionsTotal   prometheus.Counter
	pairingsTotal   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	runnerStarts    *prometheus.CounterVec

	// Histograms
	sessionDuration prometheus.Histogram
	pairingDuration prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wolf_sessions_active",
			Help: "Number of currently active streaming sessions",
		}),

		pairedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wolf_paired_clients",
			Help: "Number of paired Moonlight clients",
		}),

		pendingPairs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wolf_pending_pair_requests",
			Help: "Number of pair requests waiting for a PIN",
		}),

		sessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wolf_sessions_total",
			Help: "Total number of streaming sessions created",
		}),

		pairingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wolf_pairings_total",
			Help: "Total number of pairing attempts by outcome",
		}, []string{"outcome"}),

		eventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wolf_events_published_total",
			Help: "Total number of events published on the bus by type",
		}, []string{"event_type"}),

		runnerStarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wolf_runner_starts_total",
			Help: "Total number of app runner launches by runner type",
		}, []string{"runner_type"}),

		sessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wolf_session_duration_seconds",
			Help:    "Duration of streaming sessions",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),

		pairingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wolf_pairing_duration_seconds",
			Help:    "Time from pair request to completed handshake",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
}

// SessionStarted satisfies the session manager metrics hook.
func (p *PrometheusCollector) SessionStarted() {
	p.sessionsActive.Inc()
	p.sessionsTotal.Inc()
}

// SessionStopped satisfies the session manager metrics hook.
func (p *PrometheusCollector) SessionStopped(d time.Duration) {
	p.sessionsActive.Dec()
	p.sessionDuration.Observe(d.Seconds())
}

// RunnerStarted satisfies the session manager metrics hook.
func (p *PrometheusCollector) RunnerStarted(runnerType string) {
	p.runnerStarts.WithLabelValues(runnerType).Inc()
}

func (p *PrometheusCollector) SetPairedClients(n int) {
	p.pairedClients.Set(float64(n))
}

func (p *PrometheusCollector) SetPendingPairRequests(n int) {
	p.pendingPairs.Set(float64(n))
}

func (p *PrometheusCollector) RecordPairingSucceeded(d time.Duration) {
	p.pairingsTotal.WithLabelValues("success").Inc()
	p.pairingDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordPairingFailed() {
	p.pairingsTotal.WithLabelValues("failure").Inc()
}

func (p *PrometheusCollector) RecordEventPublished(eventType string) {
	p.eventsPublished.WithLabelValues(eventType).Inc()
}
