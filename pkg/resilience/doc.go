// Package resilience provides the failure-isolation primitives the gateway
// composes around every outbound call: a circuit breaker, two interchangeable
// rate limiting algorithms, and retry/backoff policies.
//
// # Circuit Breaker Pattern
//
// The circuit breaker stops issuing requests to a target once it is judged
// unhealthy and probes for recovery without flooding it.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "booking",
//		FailureThreshold: 5,
//		SuccessThreshold: 2,
//		Cooldown:         60 * time.Second,
//	})
//
//	result, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return bookingSystem.Call(ctx, data)
//	})
//
// # Rate Limiting
//
// Two admission algorithms are available per target: a token bucket that
// allows short bursts above the sustained rate, and a sliding window log that
// tracks exact admission timestamps.
//
//	rl, _ := resilience.NewRateLimiter(resilience.RateLimitConfig{
//		Name:        "scanner-net",
//		MaxRequests: 100,
//		Window:      time.Minute,
//		Algorithm:   resilience.AlgorithmTokenBucket,
//	})
//
//	if allowed, retryAfter := rl.Allow(); !allowed {
//		// reject, suggest retryAfter
//	}
//
// # Retry Policies
//
// RetryPolicy describes how the gateway retries transient failures; the
// orchestrator owns the loop, this package owns the delay math.
//
//	policy := resilience.DefaultRetryPolicy()
//	delay := policy.BackoffDelay(attempt)
//
// All types are safe for concurrent use by multiple goroutines; each instance
// serializes its own state behind a single mutex so different targets never
// contend.
package resilience
