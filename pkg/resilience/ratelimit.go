package resilience

import (
	"fmt"
	"sync"
	"time"
)

// Algorithm selects the admission algorithm for a target's rate limiter
type Algorithm string

const (
	// AlgorithmTokenBucket allows short bursts above the sustained rate
	// while capping long-run throughput
	AlgorithmTokenBucket Algorithm = "token_bucket"
	// AlgorithmSlidingWindow tracks exact admission timestamps; more
	// precise, more memory per target
	AlgorithmSlidingWindow Algorithm = "sliding_window"
)

// RateLimitConfig holds configuration for a target's rate limiter
type RateLimitConfig struct {
	// Name of the target, used in errors and stats
	Name string
	// MaxRequests is the sustained number of requests allowed per Window
	MaxRequests int
	// Window is the time window MaxRequests applies to
	Window time.Duration
	// Burst is the token bucket capacity; defaults to MaxRequests when zero
	Burst int
	// Algorithm selects the admission algorithm; defaults to token bucket
	Algorithm Algorithm
}

// RateLimitStats is a snapshot of a limiter's cumulative counters
type RateLimitStats struct {
	Algorithm string  `json:"algorithm"`
	Allowed   uint64  `json:"allowed"`
	Rejected  uint64  `json:"rejected"`
	Available float64 `json:"available"`
}

// RateLimiter is the admission-control interface shared by both algorithms.
// Implementations are safe for concurrent use; each Allow call mutates state
// inside a single critical section.
type RateLimiter interface {
	// Allow reports whether a request may proceed now. When rejected, the
	// returned duration is an estimate of when the next slot frees up.
	Allow() (bool, time.Duration)

	// Stats returns cumulative admitted/rejected counts for observability
	Stats() RateLimitStats

	// Name returns the name of the protected target
	Name() string
}

// NewRateLimiter creates a rate limiter for the configured algorithm
func NewRateLimiter(config RateLimitConfig) (RateLimiter, error) {
	if config.MaxRequests <= 0 {
		return nil, fmt.Errorf("rate limiter %q: max requests must be positive", config.Name)
	}
	if config.Window <= 0 {
		return nil, fmt.Errorf("rate limiter %q: window must be positive", config.Name)
	}

	switch config.Algorithm {
	case AlgorithmTokenBucket, "":
		return newTokenBucket(config), nil
	case AlgorithmSlidingWindow:
		return newSlidingWindow(config), nil
	default:
		return nil, fmt.Errorf("rate limiter %q: unknown algorithm %q", config.Name, config.Algorithm)
	}
}

// TokenBucket admits requests while tokens remain, refilling continuously at
// MaxRequests/Window tokens per second up to the burst capacity.
type TokenBucket struct {
	name       string
	capacity   float64
	refillRate float64 // tokens per second

	mutex      sync.Mutex
	tokens     float64
	lastRefill time.Time
	allowed    uint64
	rejected   uint64
}

func newTokenBucket(config RateLimitConfig) *TokenBucket {
	capacity := float64(config.Burst)
	if config.Burst <= 0 {
		capacity = float64(config.MaxRequests)
	}

	return &TokenBucket{
		name:       config.Name,
		capacity:   capacity,
		refillRate: float64(config.MaxRequests) / config.Window.Seconds(),
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if at least one is available after refilling
func (tb *TokenBucket) Allow() (bool, time.Duration) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill(time.Now())

	if tb.tokens >= 1 {
		tb.tokens--
		tb.allowed++
		return true, 0
	}

	tb.rejected++
	retryAfter := time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
	return false, retryAfter
}

// refill adds tokens for the elapsed time, clamped to [0, capacity] so
// floating-point accumulation never drifts out of range.
// Callers must hold tb.mutex.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.refillRate
		tb.lastRefill = now
	}
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 0 {
		tb.tokens = 0
	}
}

// Stats returns cumulative counters and the current token count
func (tb *TokenBucket) Stats() RateLimitStats {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill(time.Now())

	return RateLimitStats{
		Algorithm: string(AlgorithmTokenBucket),
		Allowed:   tb.allowed,
		Rejected:  tb.rejected,
		Available: tb.tokens,
	}
}

// Name returns the name of the protected target
func (tb *TokenBucket) Name() string {
	return tb.name
}

// SlidingWindow admits a request only if fewer than MaxRequests admissions
// remain inside the window; stale timestamps are purged lazily on each check.
type SlidingWindow struct {
	name        string
	maxRequests int
	window      time.Duration

	mutex      sync.Mutex
	timestamps []time.Time
	allowed    uint64
	rejected   uint64
}

func newSlidingWindow(config RateLimitConfig) *SlidingWindow {
	return &SlidingWindow{
		name:        config.Name,
		maxRequests: config.MaxRequests,
		window:      config.Window,
		timestamps:  make([]time.Time, 0, config.MaxRequests),
	}
}

// Allow records the admission timestamp when a slot is free
func (sw *SlidingWindow) Allow() (bool, time.Duration) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	now := time.Now()
	sw.purge(now)

	if len(sw.timestamps) < sw.maxRequests {
		sw.timestamps = append(sw.timestamps, now)
		sw.allowed++
		return true, 0
	}

	sw.rejected++
	// The next slot frees up when the oldest admission leaves the window.
	retryAfter := sw.timestamps[0].Add(sw.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter
}

// purge drops timestamps that have aged out of the window.
// Callers must hold sw.mutex.
func (sw *SlidingWindow) purge(now time.Time) {
	cutoff := now.Add(-sw.window)
	idx := 0
	for idx < len(sw.timestamps) && !sw.timestamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		sw.timestamps = sw.timestamps[idx:]
	}
}

// Stats returns cumulative counters and the remaining slots in the window
func (sw *SlidingWindow) Stats() RateLimitStats {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	sw.purge(time.Now())

	return RateLimitStats{
		Algorithm: string(AlgorithmSlidingWindow),
		Allowed:   sw.allowed,
		Rejected:  sw.rejected,
		Available: float64(sw.maxRequests - len(sw.timestamps)),
	}
}

// Name returns the name of the protected target
func (sw *SlidingWindow) Name() string {
	return sw.name
}
