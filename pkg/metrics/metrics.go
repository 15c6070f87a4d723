package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Gateway metrics
	GatewayCallsTotal   *prometheus.CounterVec
	GatewayCallDuration *prometheus.HistogramVec
	GatewayRetriesTotal *prometheus.CounterVec
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
	BreakerState        *prometheus.GaugeVec
	BreakerTransitions  *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "baggw",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		GatewayCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "gateway_calls_total",
				Help:      "Total number of gateway calls by outcome",
			},
			[]string{"target", "method", "status"},
		),
		GatewayCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "gateway_call_duration_seconds",
				Help:      "Gateway call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"target", "method"},
		),
		GatewayRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "gateway_retries_total",
				Help:      "Total number of retry attempts consumed",
			},
			[]string{"target"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of response cache hits",
			},
			[]string{"target"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of response cache misses",
			},
			[]string{"target"},
		),
		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "rate_limit_rejections_total",
				Help:      "Total number of rate limiter rejections",
			},
			[]string{"target"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"target"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"target", "to"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GatewayCallsTotal,
		m.GatewayCallDuration,
		m.GatewayRetriesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RateLimitRejections,
		m.BreakerState,
		m.BreakerTransitions,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.HTTPRequestsTotal == nil {
		return
	}

	status := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordGatewayCall records the outcome of one gateway call
func (m *Metrics) RecordGatewayCall(target, method, status string, retries int, duration time.Duration) {
	if m == nil || m.GatewayCallsTotal == nil {
		return
	}

	m.GatewayCallsTotal.WithLabelValues(target, method, status).Inc()
	m.GatewayCallDuration.WithLabelValues(target, method).Observe(duration.Seconds())
	if retries > 0 {
		m.GatewayRetriesTotal.WithLabelValues(target).Add(float64(retries))
	}
}

// RecordCacheHit records a response cache hit
func (m *Metrics) RecordCacheHit(target string) {
	if m == nil || m.CacheHitsTotal == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(target).Inc()
}

// RecordCacheMiss records a response cache miss
func (m *Metrics) RecordCacheMiss(target string) {
	if m == nil || m.CacheMissesTotal == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(target).Inc()
}

// RecordRateLimitRejection records a rate limiter rejection
func (m *Metrics) RecordRateLimitRejection(target string) {
	if m == nil || m.RateLimitRejections == nil {
		return
	}
	m.RateLimitRejections.WithLabelValues(target).Inc()
}

// UpdateBreakerState records a circuit breaker transition
func (m *Metrics) UpdateBreakerState(target, to string, state float64) {
	if m == nil || m.BreakerState == nil {
		return
	}
	m.BreakerState.WithLabelValues(target).Set(state)
	m.BreakerTransitions.WithLabelValues(target, to).Inc()
}

// PrometheusMiddleware creates a middleware for Prometheus metrics collection
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
