package sharing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the sharing core's observability signals. A nil
// *Metrics disables collection with zero overhead.
type Metrics struct {
	redeemLatency prometheus.Summary
	failedRedeems prometheus.Counter
	issuedGrants  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		redeemLatency: promauto.With(reg).NewSummary(prometheus.SummaryOpts{
			Name: "shared_grant_usage_duration_seconds",
			Help: "Time between grant creation and its redemption.",
			Objectives: map[float64]float64{
				0.5:  0.05,
				0.8:  0.02,
				0.95: 0.01,
				0.99: 0.001,
			},
		}),
		failedRedeems: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "shared_grant_invalid_token_attempts_total",
			Help: "Redemption attempts that did not yield a record.",
		}),
		issuedGrants: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "shared_grants_issued_total",
			Help: "Share grants issued.",
		}),
	}
}

func (m *Metrics) observeRedeem(age time.Duration) {
	if m != nil {
		m.redeemLatency.Observe(age.Seconds())
	}
}

func (m *Metrics) countFailedRedeem() {
	if m != nil {
		m.failedRedeems.Inc()
	}
}

func (m *Metrics) countIssued() {
	if m != nil {
		m.issuedGrants.Inc()
	}
}
