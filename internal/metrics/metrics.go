// Package metrics exposes donorscope's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "donorscope"

// Metrics holds the service instruments on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	donorsScored     prometheus.Counter
	scoringDuration  prometheus.Histogram
	batches          *prometheus.CounterVec
	research         *prometheus.CounterVec
	researchDuration *prometheus.HistogramVec
	gifts            *prometheus.CounterVec
}

// New creates the instruments and registers them with Go runtime and process
// collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.donorsScored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "donors_scored_total",
		Help:      "Donor records scored",
	})
	m.scoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scoring_duration_seconds",
		Help:      "Time spent scoring one batch of donors",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	m.batches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_total",
		Help:      "Ingested donor batches by final status",
	}, []string{"status"})
	m.research = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "research_requests_total",
		Help:      "AI research summaries by provider and outcome",
	}, []string{"provider", "outcome"})
	m.researchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "research_duration_seconds",
		Help:      "Latency of AI research summaries, retries included",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})
	m.gifts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gift_webhooks_total",
		Help:      "Gift webhooks by result",
	}, []string{"result"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.donorsScored, m.scoringDuration, m.batches,
		m.research, m.researchDuration, m.gifts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveScoring records n donors scored in d.
func (m *Metrics) ObserveScoring(n int, d time.Duration) {
	if m == nil {
		return
	}
	m.donorsScored.Add(float64(n))
	m.scoringDuration.Observe(d.Seconds())
}

// BatchFinished counts a batch reaching a terminal status.
func (m *Metrics) BatchFinished(status string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(status).Inc()
}

// ResearchFinished records one research call.
func (m *Metrics) ResearchFinished(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.research.WithLabelValues(provider, outcome).Inc()
	m.researchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// GiftReceived counts a gift webhook by result: recorded, duplicate or rejected.
func (m *Metrics) GiftReceived(result string) {
	if m == nil {
		return
	}
	m.gifts.WithLabelValues(result).Inc()
}
