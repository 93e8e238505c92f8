package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts lifecycle transitions across the three ledgers. The
// registerer is injected so tests can use a private registry instead of the
// process-global default.
type Metrics struct {
	ShiftTransitions  *prometheus.CounterVec
	EscrowTransitions *prometheus.CounterVec
	RatingsRecorded   prometheus.Counter
	SweepReleases     prometheus.Counter
	SweepFailures     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ShiftTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chefsplan_shift_transitions_total",
			Help: "Shift lifecycle transitions by resulting event",
		}, []string{"event"}),
		EscrowTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chefsplan_escrow_transitions_total",
			Help: "Escrow custody transitions by resulting event",
		}, []string{"event"}),
		RatingsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "chefsplan_ratings_recorded_total",
			Help: "Ratings appended to the reputation ledger",
		}),
		SweepReleases: factory.NewCounter(prometheus.CounterOpts{
			Name: "chefsplan_sweep_releases_total",
			Help: "Escrows auto-released by the sweep worker",
		}),
		SweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chefsplan_sweep_failures_total",
			Help: "Auto-release attempts by the sweep worker that failed",
		}),
	}
}

func (m *Metrics) ShiftTransition(event string) {
	m.ShiftTransitions.WithLabelValues(event).Inc()
}

func (m *Metrics) EscrowTransition(event string) {
	m.EscrowTransitions.WithLabelValues(event).Inc()
}
