package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the payment batch module: how many
// batches move through each stage and how long verification takes.
type Metrics struct {
	BatchesCreated  prometheus.Counter
	BatchesPaid     prometheus.Counter
	BatchesVerified *prometheus.CounterVec
	BatchSize       prometheus.Histogram
	VerifyDuration  prometheus.Histogram
}

// New creates a Metrics instance with all batch module metrics registered.
func New() *Metrics {
	return &Metrics{
		BatchesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kta_batches_created_total",
			Help: "Total number of payment batches created",
		}),
		BatchesPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kta_batches_paid_total",
			Help: "Total number of payment batches marked paid",
		}),
		BatchesVerified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kta_batches_verified_total",
			Help: "Total number of verification decisions by outcome",
		}, []string{"decision"}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kta_batch_size_requests",
			Help:    "Number of member requests per created batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kta_batch_verify_duration_seconds",
			Help:    "Duration of batch verification including member transitions",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementCreated records a successful batch creation of the given size.
func (m *Metrics) IncrementCreated(size int) {
	m.BatchesCreated.Inc()
	m.BatchSize.Observe(float64(size))
}

// IncrementPaid records a batch reaching the paid stage.
func (m *Metrics) IncrementPaid() {
	m.BatchesPaid.Inc()
}

// IncrementVerified records a verification decision ("approved"/"rejected").
func (m *Metrics) IncrementVerified(decision string) {
	m.BatchesVerified.WithLabelValues(decision).Inc()
}

// ObserveVerify records the duration of a verify operation. Call with
// time.Now() at the start of the operation.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}
