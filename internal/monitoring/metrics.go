package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Dispatch metrics
	DispatchTotal   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec

	// Webhook metrics
	WebhookEventsTotal  *prometheus.CounterVec
	WebhookBatchesTotal *prometheus.CounterVec

	// Campaign metrics
	ExecutionsStarted    prometheus.Counter
	ExecutionsTerminated *prometheus.CounterVec
	StepAttemptsTotal    *prometheus.CounterVec

	// Gate metrics
	GateDecisionsTotal *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		DispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_request_dispatch_total",
				Help: "Total number of review request dispatch attempts",
			},
			[]string{"channel", "status"},
		),
		ProviderLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_send_latency_seconds",
				Help:    "Delivery provider send latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		),

		WebhookEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Total number of provider delivery events processed",
			},
			[]string{"event_type", "outcome"},
		),
		WebhookBatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_batches_total",
				Help: "Total number of webhook batches received",
			},
			[]string{"source", "outcome"},
		),

		ExecutionsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "campaign_executions_started_total",
				Help: "Total number of campaign executions started",
			},
		),
		ExecutionsTerminated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_executions_terminated_total",
				Help: "Total number of campaign executions reaching a terminal state",
			},
			[]string{"status"},
		),
		StepAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_step_attempts_total",
				Help: "Total number of campaign step dispatch attempts",
			},
			[]string{"outcome"},
		),

		GateDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rating_gate_decisions_total",
				Help: "Total number of rating gate decisions",
			},
			[]string{"route"},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"provider"},
		),
	}

	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	if metrics == nil {
		return Init()
	}
	return metrics
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordDispatch records a review request dispatch attempt
func RecordDispatch(channel, status string) {
	Get().DispatchTotal.WithLabelValues(channel, status).Inc()
}

// RecordProviderLatency records a delivery provider send latency
func RecordProviderLatency(provider string, duration time.Duration) {
	Get().ProviderLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordWebhookEvent records a processed delivery event
func RecordWebhookEvent(eventType, outcome string) {
	Get().WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordWebhookBatch records a received webhook batch
func RecordWebhookBatch(source, outcome string) {
	Get().WebhookBatchesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordExecutionStarted records a started campaign execution
func RecordExecutionStarted() {
	Get().ExecutionsStarted.Inc()
}

// RecordExecutionTerminated records a campaign execution reaching a terminal state
func RecordExecutionTerminated(status string) {
	Get().ExecutionsTerminated.WithLabelValues(status).Inc()
}

// RecordStepAttempt records a campaign step dispatch attempt
func RecordStepAttempt(outcome string) {
	Get().StepAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordGateDecision records a rating gate decision
func RecordGateDecision(route string) {
	Get().GateDecisionsTotal.WithLabelValues(route).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
// state: 0=closed, 1=open, 0.5=half-open
func SetCircuitBreakerState(provider string, state float64) {
	Get().CircuitBreakerState.WithLabelValues(provider).Set(state)
}
