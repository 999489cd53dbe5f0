package controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for redemption attempts.
const (
	OutcomeRedeemed  = "redeemed"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
)

// Metrics provides observability for voucher redemption.
type Metrics struct {
	// Vouchers handed to the controller
	Submitted prometheus.Counter

	// Redemption attempt outcomes
	Outcomes *prometheus.CounterVec

	// Vouchers waiting in the queue
	Queued prometheus.Gauge

	// Duration of redemption attempts
	RedeemLatency prometheus.Histogram
}

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkapauthz_vouchers_submitted_total",
			Help: "Total vouchers handed to the payment controller",
		}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkapauthz_redemption_attempts_total",
			Help: "Total redemption attempts by outcome",
		}, []string{"outcome"}), // outcome: "redeemed", "transient", "permanent"
		Queued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zkapauthz_redemption_queue_length",
			Help: "Vouchers waiting for a redemption attempt",
		}),
		RedeemLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "zkapauthz_redemption_duration_seconds",
			Help:    "Duration of redemption attempts",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementSubmitted records a voucher handed to the controller.
func (m *Metrics) IncrementSubmitted() {
	if m != nil {
		m.Submitted.Inc()
	}
}

// IncrementOutcome records the outcome of a redemption attempt.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

// SetQueued records the current queue length.
func (m *Metrics) SetQueued(n int) {
	if m != nil {
		m.Queued.Set(float64(n))
	}
}

// ObserveRedeemLatency records the duration of a redemption attempt.
func (m *Metrics) ObserveRedeemLatency(d time.Duration) {
	if m != nil {
		m.RedeemLatency.Observe(d.Seconds())
	}
}
