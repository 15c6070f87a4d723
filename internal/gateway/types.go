package gateway

import (
	"time"

	"github.com/jbandu/bag-sub001/internal/cache"
	"github.com/jbandu/bag-sub001/pkg/resilience"
)

// Request describes one semantic call through the gateway
type Request struct {
	// Target is the registered adapter name
	Target string `json:"target"`
	// Method is the adapter method to invoke
	Method string `json:"method"`
	// Params are the named parameters passed to the adapter
	Params map[string]interface{} `json:"params,omitempty"`
	// UseCache enables response caching for this call (the target must
	// have a cache policy configured)
	UseCache bool `json:"use_cache"`
	// CacheTTL overrides the target cache's default TTL when positive
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`
	// Timeout is an overall per-call deadline; the gateway default applies
	// when zero
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Response is the unified result shape returned for every gateway call,
// success or failure. It is created fresh per call and never mutated after
// return.
type Response struct {
	Success   bool                   `json:"success"`
	Data      interface{}            `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
	Source    string                 `json:"source"`
	Cached    bool                   `json:"cached"`
	Duration  time.Duration          `json:"duration"`
	Retries   int                    `json:"retries"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// TargetOptions carries the per-target policies supplied at registration.
// A nil field means the corresponding control is provisioned with gateway
// defaults (breaker, retry) or not at all (rate limiter, cache).
type TargetOptions struct {
	Breaker   *resilience.CircuitBreakerConfig
	RateLimit *resilience.RateLimitConfig
	Cache     *cache.Config
	Retry     *resilience.RetryPolicy
}

// HealthSummary aggregates gateway-wide health for liveness/readiness
// reporting
type HealthSummary struct {
	Status       string         `json:"status"`
	Uptime       time.Duration  `json:"uptime"`
	Adapters     int            `json:"adapters"`
	TotalCalls   uint64         `json:"total_calls"`
	Successes    uint64         `json:"successes"`
	Failures     uint64         `json:"failures"`
	CacheHits    uint64         `json:"cache_hits"`
	SuccessRate  float64        `json:"success_rate"`
	CacheHitRate float64        `json:"cache_hit_rate"`
	Breakers     map[string]int `json:"breakers"`
}

// TargetHealth reports the per-target control stats for dashboards/alerting
type TargetHealth struct {
	Name      string                         `json:"name"`
	Breaker   resilience.CircuitBreakerStats `json:"breaker"`
	RateLimit *resilience.RateLimitStats     `json:"rate_limit,omitempty"`
	Cache     *cache.Stats                   `json:"cache,omitempty"`
}
