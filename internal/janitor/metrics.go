package janitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the janitor's work. A nil *Metrics disables collection
// with zero overhead.
type Metrics struct {
	deletedGrants prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		deletedGrants: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "deleted_grants_total",
			Help: "Dead grants removed by scheduled sweeps.",
		}),
	}
}

func (m *Metrics) countDeleted(n int) {
	if m != nil {
		m.deletedGrants.Add(float64(n))
	}
}
