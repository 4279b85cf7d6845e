package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the claim-path collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ClaimOutcomes   *prometheus.CounterVec
	ClaimDuration   prometheus.Histogram
	StockPushBacks  prometheus.Counter
	StockDiscards   prometheus.Counter
	CampaignsClosed prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClaimOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcd",
			Name:      "claim_outcomes_total",
			Help:      "Claim attempts by terminal outcome.",
		}, []string{"outcome"}),
		ClaimDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vcd",
			Name:      "claim_duration_seconds",
			Help:      "Latency of claim attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
		StockPushBacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcd",
			Name:      "stock_push_backs_total",
			Help:      "Item ids returned to a stock queue after a failed claim.",
		}),
		StockDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcd",
			Name:      "stock_discards_total",
			Help:      "Stale item ids dropped because they were already claimed.",
		}),
		CampaignsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcd",
			Name:      "campaigns_closed_total",
			Help:      "Campaigns closed early by the exhaustion sweep.",
		}),
	}

	reg.MustRegister(m.ClaimOutcomes, m.ClaimDuration, m.StockPushBacks, m.StockDiscards, m.CampaignsClosed)
	return m
}

// ObserveClaim records one finished claim attempt
func (m *Metrics) ObserveClaim(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.ClaimOutcomes.WithLabelValues(outcome).Inc()
	m.ClaimDuration.Observe(time.Since(start).Seconds())
}

// PushBack counts a compensating push-back
func (m *Metrics) PushBack() {
	if m == nil {
		return
	}
	m.StockPushBacks.Inc()
}

// Discard counts a stale id dropped from the queue
func (m *Metrics) Discard() {
	if m == nil {
		return
	}
	m.StockDiscards.Inc()
}

// Closed counts campaigns closed by the sweep
func (m *Metrics) Closed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CampaignsClosed.Add(float64(n))
}
