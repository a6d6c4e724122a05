package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks the latency of engine operations
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "play_operation_duration_seconds",
			Help: "Duration of play engine operations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"operation", "status"},
	)

	// FraudDenials counts sessions refused by the fraud gate
	FraudDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "play_fraud_denials_total",
			Help: "Number of session creations refused by the fraud gate",
		},
		[]string{"reason"}, // window or reservation
	)

	// SpinOutcomes counts reward draws by outcome
	SpinOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "play_spin_outcomes_total",
			Help: "Number of reward draws by outcome",
		},
		[]string{"outcome"}, // won, lost, fallback
	)

	// CouponRedemptions counts redemption attempts by result kind
	CouponRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "play_coupon_redemptions_total",
			Help: "Number of coupon redemption attempts by result",
		},
		[]string{"result"},
	)

	// CouponCodeCollisions counts regenerated coupon codes
	CouponCodeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "play_coupon_code_collisions_total",
			Help: "Number of coupon codes regenerated after a uniqueness conflict",
		},
	)

	// AnalyticsDropped counts events a sink failed to record
	AnalyticsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "play_analytics_dropped_total",
			Help: "Number of analytics events a sink failed to record",
		},
		[]string{"sink"},
	)
)

// RecordOperationDuration records the duration of an engine operation
func RecordOperationDuration(operation, status string, duration float64) {
	OperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordFraudDenial records a fraud gate refusal
func RecordFraudDenial(reason string) {
	FraudDenials.WithLabelValues(reason).Inc()
}

// RecordSpinOutcome records the outcome of a reward draw
func RecordSpinOutcome(outcome string) {
	SpinOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRedemption records a redemption attempt
func RecordRedemption(result string) {
	CouponRedemptions.WithLabelValues(result).Inc()
}

// RecordCodeCollision records a regenerated coupon code
func RecordCodeCollision() {
	CouponCodeCollisions.Inc()
}

// RecordAnalyticsDropped records an event a sink failed to record
func RecordAnalyticsDropped(sink string) {
	AnalyticsDropped.WithLabelValues(sink).Inc()
}
