package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for card issuance: allocation outcomes and
// renderer latency.
type Metrics struct {
	CardsIssued    prometheus.Counter
	IssueFailures  *prometheus.CounterVec
	RenderDuration prometheus.Histogram
}

// New creates a Metrics instance with all issuance metrics registered.
func New() *Metrics {
	return &Metrics{
		CardsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kta_cards_issued_total",
			Help: "Total number of cards issued (serial + artifact written)",
		}),
		IssueFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kta_card_issue_failures_total",
			Help: "Total number of failed issuance attempts by error kind",
		}, []string{"kind"}),
		RenderDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kta_card_render_duration_seconds",
			Help:    "Duration of card artifact rendering calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
	}
}

// IncrementIssued records a successful issuance.
func (m *Metrics) IncrementIssued() {
	m.CardsIssued.Inc()
}

// IncrementFailure records a failed issuance attempt by error kind.
func (m *Metrics) IncrementFailure(kind string) {
	m.IssueFailures.WithLabelValues(kind).Inc()
}

// ObserveRender records the duration of a renderer call. Call with
// time.Now() at the start of the call.
func (m *Metrics) ObserveRender(start time.Time) {
	m.RenderDuration.Observe(time.Since(start).Seconds())
}
