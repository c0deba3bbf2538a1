package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Order metrics
	OrdersTotal      *prometheus.CounterVec
	CheckoutDuration prometheus.Histogram
	PendingPayments  prometheus.Gauge

	// Payment pipeline metrics
	WebhooksTotal      *prometheus.CounterVec
	ExpiryChecksTotal  *prometheus.CounterVec
	AssignmentsTotal   *prometheus.CounterVec
	AssignmentAttempts prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Queue metrics
	JobsProcessed         *prometheus.CounterVec
	JobProcessingDuration *prometheus.HistogramVec
	JobsDeadLettered      *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Total number of orders by payment status",
			},
			[]string{"payment_status"},
		),
		CheckoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "checkout_duration_seconds",
				Help:      "Checkout duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		PendingPayments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_payments",
				Help:      "Number of orders currently awaiting payment",
			},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_webhooks_total",
				Help:      "Total number of payment webhooks by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		ExpiryChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_expiry_checks_total",
				Help:      "Total number of expiry checks by outcome",
			},
			[]string{"outcome"},
		),
		AssignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_assignments_total",
				Help:      "Total number of agent assignment attempts by outcome",
			},
			[]string{"outcome"},
		),
		AssignmentAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_assignment_attempts",
				Help:      "Number of attempts before an order was assigned",
				Buckets:   []float64{1, 2, 3, 4, 5, 10},
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		JobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_processed_total",
				Help:      "Total number of queue jobs processed",
			},
			[]string{"type", "status"},
		),
		JobProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_processing_duration_seconds",
				Help:      "Queue job processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"type"},
		),
		JobsDeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_dead_lettered_total",
				Help:      "Total number of jobs abandoned after max attempts",
			},
			[]string{"type"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.OrdersTotal,
		m.CheckoutDuration,
		m.PendingPayments,
		m.WebhooksTotal,
		m.ExpiryChecksTotal,
		m.AssignmentsTotal,
		m.AssignmentAttempts,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.JobsProcessed,
		m.JobProcessingDuration,
		m.JobsDeadLettered,
	)

	return m
}
