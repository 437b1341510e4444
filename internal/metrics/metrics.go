package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PlanRuns counts plan runs by terminal status
	PlanRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_runs_total", Help: "Plan runs by terminal status."},
		[]string{"status"},
	)
	// PlanBuildDuration tracks model construction time in seconds
	PlanBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_build_duration_seconds", Help: "Model construction time in seconds.", Buckets: prometheus.DefBuckets},
	)
	// PlanSolveDuration tracks solver time in seconds
	PlanSolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_solve_duration_seconds", Help: "Solver time in seconds.", Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}},
	)
	// ModelSize tracks the number of variables and constraints per built model
	ModelSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "plan_model_size", Help: "Variables and constraints per built model.", Buckets: prometheus.ExponentialBuckets(10, 4, 8)},
		[]string{"dimension"},
	)

	// WebhookAttempts counts webhook delivery attempts by event type and outcome
	WebhookAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook delivery attempts by event type and outcome."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PlanRuns)
		Registry.MustRegister(PlanBuildDuration)
		Registry.MustRegister(PlanSolveDuration)
		Registry.MustRegister(ModelSize)
		Registry.MustRegister(WebhookAttempts)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
