// Package metrics holds the dispatcher's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Items             *prometheus.CounterVec
	Fallbacks         *prometheus.CounterVec
	RateLimited       prometheus.Counter
	ChunkDuration     prometheus.Histogram
	CampaignsFinished *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatcher",
			Name:      "items_total",
			Help:      "Media items dispatched, by outcome.",
		}, []string{"outcome"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatcher",
			Name:      "fallbacks_total",
			Help:      "Delivery strategy escalations, by strategy.",
		}, []string{"strategy"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dispatcher",
			Name:      "rate_limited_total",
			Help:      "Provider rate-limit responses.",
		}),
		ChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dispatcher",
			Name:      "chunk_duration_seconds",
			Help:      "Wall time of one chunk dispatch.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 120},
		}),
		CampaignsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatcher",
			Name:      "campaigns_finished_total",
			Help:      "Campaigns reaching a terminal status.",
		}, []string{"status"}),
	}
}

// MustRegister registers every collector with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.Items, m.Fallbacks, m.RateLimited, m.ChunkDuration, m.CampaignsFinished)
}

// The helpers below tolerate a nil receiver so tests can skip metrics.

func (m *Metrics) Item(outcome string) {
	if m == nil {
		return
	}
	m.Items.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Fallback(strategy string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(strategy).Inc()
}

func (m *Metrics) RateLimit() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *Metrics) Chunk(seconds float64) {
	if m == nil {
		return
	}
	m.ChunkDuration.Observe(seconds)
}

func (m *Metrics) Finished(status string) {
	if m == nil {
		return
	}
	m.CampaignsFinished.WithLabelValues(status).Inc()
}
