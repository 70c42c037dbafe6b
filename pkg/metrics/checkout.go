package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks the order submission pipeline.
type CheckoutMetrics struct {
	submissions       *prometheus.CounterVec
	attempts          prometheus.Counter
	latency           prometheus.Histogram
	couponRejections  *prometheus.CounterVec
	incrementFailures prometheus.Counter
	analyticsFailures *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
// A nil registerer returns a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_submissions_total",
			Help: "Checkout submissions by final outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_submission_attempts_total",
			Help: "Order creation calls issued by the checkout, retries included.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkout_submit_duration_seconds",
			Help:    "Time from submit to a terminal state.",
			Buckets: prometheus.DefBuckets,
		}),
		couponRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coupon_rejections_total",
			Help: "Coupon validations rejected by reason.",
		}, []string{"reason"}),
		incrementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coupon_increment_failures_total",
			Help: "Coupon usage increments that failed after an order was committed.",
		}),
		analyticsFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_failures_total",
			Help: "Analytics tracking or delivery failures by stage.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.submissions, m.attempts, m.latency, m.couponRejections, m.incrementFailures, m.analyticsFailures)
	return m
}

// Submission records a terminal submit outcome and its latency.
func (m *CheckoutMetrics) Submission(outcome string, elapsed time.Duration) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.latency.Observe(elapsed.Seconds())
}

// SubmissionAttempt counts one order creation call.
func (m *CheckoutMetrics) SubmissionAttempt() {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.Inc()
}

// CouponRejected counts a coupon rejection.
func (m *CheckoutMetrics) CouponRejected(reason string) {
	if m == nil || m.couponRejections == nil {
		return
	}
	m.couponRejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

// CouponIncrementFailed counts a failed usage increment.
func (m *CheckoutMetrics) CouponIncrementFailed() {
	if m == nil || m.incrementFailures == nil {
		return
	}
	m.incrementFailures.Inc()
}

// AnalyticsFailure counts an analytics failure at the given stage.
func (m *CheckoutMetrics) AnalyticsFailure(stage string) {
	if m == nil || m.analyticsFailures == nil {
		return
	}
	m.analyticsFailures.WithLabelValues(normalizeLabel(stage)).Inc()
}
