package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry manages all Prometheus metrics for hookrelay.
type Registry struct {
	config   Config
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec
	httpActiveRequests  *prometheus.GaugeVec

	// Database metrics
	dbQueriesTotal      *prometheus.CounterVec
	dbQueryDuration     *prometheus.HistogramVec
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge
	dbConnectionsMax    prometheus.Gauge
	dbQueryErrors       *prometheus.CounterVec

	// Dispatch metrics
	dispatchAttemptsTotal     *prometheus.CounterVec
	dispatchAttemptDuration   *prometheus.HistogramVec
	dispatchInFlight          *prometheus.GaugeVec
	dispatchBatchSize         *prometheus.HistogramVec
	dispatchBatchFlushDuration *prometheus.HistogramVec

	// Webhook metrics
	webhookCallsTotal   *prometheus.CounterVec
	webhookCallDuration *prometheus.HistogramVec
	webhookState        *prometheus.GaugeVec
	webhookRetryCount   *prometheus.CounterVec
	webhookErrors       *prometheus.CounterVec

	mu sync.RWMutex
}

// Global registry instance
var (
	globalRegistry *Registry
	once           sync.Once
)

// NewRegistry creates a new metrics registry with the given configuration.
func NewRegistry(config Config) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		config:   config,
		registry: reg,
	}

	r.registerHTTPMetrics()
	r.registerDatabaseMetrics()
	r.registerDispatchMetrics()
	r.registerWebhookMetrics()

	// Register process and runtime metrics if enabled
	if config.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if config.EnableRuntimeMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}

	return r
}

// Global returns the global registry instance, initializing it with default config if needed.
func Global() *Registry {
	once.Do(func() {
		globalRegistry = NewRegistry(DefaultConfig())
	})
	return globalRegistry
}

// SetGlobal sets the global registry instance.
func SetGlobal(r *Registry) {
	globalRegistry = r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.config
}

func (r *Registry) registerHTTPMetrics() {
	ns := r.config.Namespace

	r.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status_code"},
	)

	r.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   r.config.HistogramBuckets.HTTPDuration,
		},
		[]string{"method", "path"},
	)

	r.httpRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   r.config.HistogramBuckets.HTTPSize,
		},
		[]string{"method", "path"},
	)

	r.httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   r.config.HistogramBuckets.HTTPSize,
		},
		[]string{"method", "path"},
	)

	r.httpActiveRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of currently active HTTP requests",
		},
		[]string{"method", "path"},
	)

	r.registry.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.httpRequestSize,
		r.httpResponseSize,
		r.httpActiveRequests,
	)
}

func (r *Registry) registerDatabaseMetrics() {
	ns := r.config.Namespace

	r.dbQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "db",
			Name:      "queries_total",
			Help:      "Total number of database queries executed",
		},
		[]string{"operation", "table", "status"},
	)

	r.dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   r.config.HistogramBuckets.DBDuration,
		},
		[]string{"operation", "table"},
	)

	r.dbConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "db",
			Name:      "connections_active",
			Help:      "Number of active database connections",
		},
	)

	r.dbConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "db",
			Name:      "connections_idle",
			Help:      "Number of idle database connections",
		},
	)

	r.dbConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "db",
			Name:      "connections_max",
			Help:      "Maximum number of database connections",
		},
	)

	r.dbQueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	r.registry.MustRegister(
		r.dbQueriesTotal,
		r.dbQueryDuration,
		r.dbConnectionsActive,
		r.dbConnectionsIdle,
		r.dbConnectionsMax,
		r.dbQueryErrors,
	)
}

func (r *Registry) registerDispatchMetrics() {
	ns := r.config.Namespace

	r.dispatchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Total number of dispatch attempts",
		},
		[]string{"webhook_id", "status"},
	)

	r.dispatchAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "dispatch",
			Name:      "attempt_duration_seconds",
			Help:      "Dispatch attempt duration in seconds",
			Buckets:   r.config.HistogramBuckets.DispatchDuration,
		},
		[]string{"webhook_id"},
	)

	r.dispatchInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "dispatch",
			Name:      "in_flight",
			Help:      "Number of currently in-flight dispatch attempts",
		},
		[]string{"webhook_id"},
	)

	r.dispatchBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "dispatch",
			Name:      "batch_size",
			Help:      "Number of events in a flushed batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"webhook_id"},
	)

	r.dispatchBatchFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "dispatch",
			Name:      "batch_flush_duration_seconds",
			Help:      "Time a batch spent open before being flushed",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
		[]string{"webhook_id"},
	)

	r.registry.MustRegister(
		r.dispatchAttemptsTotal,
		r.dispatchAttemptDuration,
		r.dispatchInFlight,
		r.dispatchBatchSize,
		r.dispatchBatchFlushDuration,
	)
}

func (r *Registry) registerWebhookMetrics() {
	ns := r.config.Namespace

	r.webhookCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "webhook",
			Name:      "calls_total",
			Help:      "Total number of outbound HTTP calls to webhook endpoints",
		},
		[]string{"webhook_id", "url", "status_code"},
	)

	r.webhookCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "webhook",
			Name:      "call_duration_seconds",
			Help:      "Outbound webhook HTTP call duration in seconds",
			Buckets:   r.config.HistogramBuckets.WebhookCallDuration,
		},
		[]string{"webhook_id", "url"},
	)

	r.webhookState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "webhook",
			Name:      "state",
			Help:      "WebhookStatus variant (1=active, 0=inactive) per webhook and state label",
		},
		[]string{"webhook_id", "state"},
	)

	r.webhookRetryCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "webhook",
			Name:      "retries_total",
			Help:      "Total number of retry attempts made against a webhook",
		},
		[]string{"webhook_id"},
	)

	r.webhookErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "webhook",
			Name:      "errors_total",
			Help:      "Total number of delivery errors for a webhook",
		},
		[]string{"webhook_id", "error_type"},
	)

	r.registry.MustRegister(
		r.webhookCallsTotal,
		r.webhookCallDuration,
		r.webhookState,
		r.webhookRetryCount,
		r.webhookErrors,
	)
}
