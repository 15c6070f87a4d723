// Package gateway implements the resilience gateway engine: the single entry
// point through which every semantic operation against an external baggage
// system flows. Each registered target gets its own circuit breaker, rate
// limiter and response cache; the Call pipeline composes them with
// retry-with-backoff and reports every outcome as a unified Response.
package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbandu/bag-sub001/internal/cache"
	"github.com/jbandu/bag-sub001/pkg/adapter"
	"github.com/jbandu/bag-sub001/pkg/errors"
	"github.com/jbandu/bag-sub001/pkg/logging"
	"github.com/jbandu/bag-sub001/pkg/metrics"
	"github.com/jbandu/bag-sub001/pkg/resilience"
)

// Config contains gateway configuration and the defaults applied to targets
// registered without their own policies.
type Config struct {
	DefaultTimeout   time.Duration          `json:"default_timeout"`
	DefaultRetry     resilience.RetryPolicy `json:"default_retry"`
	FailureThreshold int                    `json:"failure_threshold"`
	SuccessThreshold int                    `json:"success_threshold"`
	BreakerCooldown  time.Duration          `json:"breaker_cooldown"`
	SweepInterval    time.Duration          `json:"sweep_interval"`
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeout:   30 * time.Second,
		DefaultRetry:     resilience.DefaultRetryPolicy(),
		FailureThreshold: 5,
		SuccessThreshold: 2,
		BreakerCooldown:  60 * time.Second,
		SweepInterval:    time.Minute,
	}
}

// target bundles one adapter with its resilience controls. Instances are
// created at registration and thereafter shared by all concurrent calls.
type target struct {
	adapter adapter.Adapter
	breaker *resilience.CircuitBreaker
	limiter resilience.RateLimiter
	cache   *cache.Cache
	retry   resilience.RetryPolicy
}

// Service is the gateway orchestrator. It holds no call-scoped mutable state;
// all shared state lives in the per-target controls, each of which serializes
// its own mutations.
type Service struct {
	config  *Config
	logger  *logging.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	targets map[string]*target

	startedAt time.Time
	running   bool
	stopCh    chan struct{}
	sweepWg   sync.WaitGroup

	totalCalls uint64
	successes  uint64
	failures   uint64
	cacheHits  uint64
}

// NewService creates a new gateway service
func NewService(config *Config, m *metrics.Metrics) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	config.DefaultRetry = config.DefaultRetry.Normalize()

	return &Service{
		config:    config,
		logger:    logging.GetLogger(),
		metrics:   m,
		targets:   make(map[string]*target),
		startedAt: time.Now(),
	}
}

// Register registers an adapter under its name and provisions the target's
// circuit breaker (always), rate limiter and cache (when a policy is
// supplied), and retry policy. Registration failures are programming errors
// and fail loudly at setup.
func (s *Service) Register(a adapter.Adapter, opts *TargetOptions) error {
	if a == nil {
		return errors.NewValidationError("adapter must not be nil")
	}
	name := a.Name()
	if name == "" {
		return errors.NewValidationError("adapter name must not be empty")
	}
	if opts == nil {
		opts = &TargetOptions{}
	}

	breakerCfg := resilience.CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: s.config.FailureThreshold,
		SuccessThreshold: s.config.SuccessThreshold,
		Cooldown:         s.config.BreakerCooldown,
	}
	if opts.Breaker != nil {
		breakerCfg = *opts.Breaker
		breakerCfg.Name = name
	}
	breakerCfg.OnStateChange = s.breakerStateChange

	t := &target{
		adapter: a,
		breaker: resilience.NewCircuitBreaker(breakerCfg),
		retry:   s.config.DefaultRetry,
	}

	if opts.RateLimit != nil {
		cfg := *opts.RateLimit
		cfg.Name = name
		limiter, err := resilience.NewRateLimiter(cfg)
		if err != nil {
			return err
		}
		t.limiter = limiter
	}

	if opts.Cache != nil {
		cfg := *opts.Cache
		cfg.Name = name
		t.cache = cache.New(&cfg)
	}

	if opts.Retry != nil {
		t.retry = opts.Retry.Normalize()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.targets[name]; exists {
		return errors.NewValidationError("adapter already registered: " + name)
	}
	s.targets[name] = t

	s.logger.LogAdapterEvent(context.Background(), "registered", name, logrus.Fields{
		"methods":      len(a.Methods()),
		"rate_limited": t.limiter != nil,
		"cached":       t.cache != nil,
	})
	return nil
}

// Call invokes one semantic operation through the target's resilience
// controls. The caller always receives a Response, never an error for
// expected failure modes.
func (s *Service) Call(ctx context.Context, req *Request) *Response {
	start := time.Now()
	atomic.AddUint64(&s.totalCalls, 1)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.mu.RLock()
	t, ok := s.targets[req.Target]
	s.mu.RUnlock()
	if !ok {
		return s.failure(req, start, 0, errors.NewConfigurationError("unknown target: "+req.Target))
	}
	if !adapter.HasMethod(t.adapter, req.Method) {
		return s.failure(req, start, 0, errors.NewConfigurationError("unknown method "+req.Method+" on target "+req.Target))
	}

	var key string
	if req.UseCache && t.cache != nil {
		key = cacheKey(req.Target, req.Method, req.Params)
		if value, hit := t.cache.Get(key); hit {
			atomic.AddUint64(&s.successes, 1)
			atomic.AddUint64(&s.cacheHits, 1)
			s.metrics.RecordCacheHit(req.Target)
			s.metrics.RecordGatewayCall(req.Target, req.Method, "cached", 0, time.Since(start))
			return &Response{
				Success:  true,
				Data:     value,
				Source:   req.Target,
				Cached:   true,
				Duration: time.Since(start),
			}
		}
		s.metrics.RecordCacheMiss(req.Target)
	}

	policy := t.retry
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return s.failure(req, start, attempt, errors.NewTimeoutError("gateway call").WithCause(err))
		}

		if t.limiter != nil {
			if allowed, retryAfter := t.limiter.Allow(); !allowed {
				lastErr = errors.NewRateLimitError(req.Target, retryAfter)
				s.metrics.RecordRateLimitRejection(req.Target)
				if !policy.RetryRateLimited {
					return s.failure(req, start, attempt, lastErr)
				}
				if attempt < policy.MaxRetries {
					if err := s.backoff(ctx, policy, attempt); err != nil {
						return s.failure(req, start, attempt, err)
					}
				}
				continue
			}
		}

		result, err := t.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return t.adapter.Invoke(ctx, req.Method, req.Params)
		})
		if err == nil {
			if key != "" {
				t.cache.Set(key, result, req.CacheTTL)
			}
			atomic.AddUint64(&s.successes, 1)
			duration := time.Since(start)
			s.metrics.RecordGatewayCall(req.Target, req.Method, "success", attempt, duration)
			s.logger.LogGatewayCall(ctx, req.Target, req.Method, true, false, attempt, duration)
			return &Response{
				Success:  true,
				Data:     result,
				Source:   req.Target,
				Duration: duration,
				Retries:  attempt,
			}
		}

		lastErr = err

		// Terminal errors abort the loop: retrying into an open circuit
		// cannot succeed, and a caller error stays a caller error no
		// matter how often it is replayed.
		if !errors.IsRetryable(err) {
			return s.failure(req, start, attempt, err)
		}

		if attempt < policy.MaxRetries {
			s.logger.Debug("Gateway call failed, retrying",
				"target", req.Target,
				"method", req.Method,
				"attempt", attempt,
				"error", err.Error(),
			)
			if err := s.backoff(ctx, policy, attempt); err != nil {
				return s.failure(req, start, attempt, err)
			}
		}
	}

	return s.failure(req, start, policy.MaxRetries, lastErr)
}

// backoff sleeps for the policy's delay, aborting early when ctx expires.
// Only the calling goroutine is suspended; no target lock is held here.
func (s *Service) backoff(ctx context.Context, policy resilience.RetryPolicy, attempt int) error {
	select {
	case <-ctx.Done():
		return errors.NewTimeoutError("gateway call").WithCause(ctx.Err())
	case <-time.After(policy.BackoffDelay(attempt)):
		return nil
	}
}

// failure builds the unified failure response and records counters
func (s *Service) failure(req *Request, start time.Time, retries int, err error) *Response {
	atomic.AddUint64(&s.failures, 1)
	duration := time.Since(start)

	status := "failure"
	if errors.IsType(err, errors.ErrorTypeConfiguration) {
		status = "config_error"
	} else if errors.IsType(err, errors.ErrorTypeBreakerOpen) {
		status = "breaker_open"
	} else if errors.IsType(err, errors.ErrorTypeRateLimit) {
		status = "rate_limited"
	} else if errors.IsType(err, errors.ErrorTypeTimeout) {
		status = "timeout"
	}
	s.metrics.RecordGatewayCall(req.Target, req.Method, status, retries, duration)
	s.logger.LogGatewayCall(context.Background(), req.Target, req.Method, false, false, retries, duration)

	resp := &Response{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: errors.GetCode(err),
		Source:    req.Target,
		Duration:  duration,
		Retries:   retries,
	}
	// Error details such as the rate limiter's retry-after estimate ride
	// along so callers can act on them without parsing the message.
	if appErr, ok := err.(*errors.AppError); ok && len(appErr.Details) > 0 {
		resp.Metadata = make(map[string]interface{}, len(appErr.Details))
		for k, v := range appErr.Details {
			resp.Metadata[k] = v
		}
	}
	return resp
}

// CheckAdapter runs a target adapter's own health probe. The probe bypasses
// the resilience controls so an open breaker does not mask recovery.
func (s *Service) CheckAdapter(ctx context.Context, name string) error {
	s.mu.RLock()
	t, ok := s.targets[name]
	s.mu.RUnlock()
	if !ok {
		return errors.NewNotFoundError("target " + name)
	}
	return t.adapter.HealthCheck(ctx)
}

// ResetBreaker forces a target's circuit breaker back to closed
func (s *Service) ResetBreaker(name string) error {
	s.mu.RLock()
	t, ok := s.targets[name]
	s.mu.RUnlock()
	if !ok {
		return errors.NewNotFoundError("target " + name)
	}
	t.breaker.Reset()
	return nil
}

// InvalidateCache removes cached responses for a target whose keys contain
// pattern; an empty pattern clears everything for that target.
func (s *Service) InvalidateCache(name, pattern string) (int, error) {
	s.mu.RLock()
	t, ok := s.targets[name]
	s.mu.RUnlock()
	if !ok {
		return 0, errors.NewNotFoundError("target " + name)
	}
	if t.cache == nil {
		return 0, nil
	}
	return t.cache.InvalidatePattern(pattern), nil
}

// Targets lists the registered adapters
func (s *Service) Targets() []adapter.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]adapter.Info, 0, len(s.targets))
	for _, t := range s.targets {
		infos = append(infos, adapter.Info{
			Name:    t.adapter.Name(),
			Methods: t.adapter.Methods(),
		})
	}
	return infos
}

// Health returns the aggregate health summary
func (s *Service) Health() *HealthSummary {
	s.mu.RLock()
	breakers := map[string]int{"closed": 0, "open": 0, "half_open": 0}
	adapters := len(s.targets)
	for _, t := range s.targets {
		switch t.breaker.State() {
		case resilience.StateOpen:
			breakers["open"]++
		case resilience.StateHalfOpen:
			breakers["half_open"]++
		default:
			breakers["closed"]++
		}
	}
	s.mu.RUnlock()

	total := atomic.LoadUint64(&s.totalCalls)
	successes := atomic.LoadUint64(&s.successes)
	failures := atomic.LoadUint64(&s.failures)
	cacheHits := atomic.LoadUint64(&s.cacheHits)

	summary := &HealthSummary{
		Status:     "healthy",
		Uptime:     time.Since(s.startedAt),
		Adapters:   adapters,
		TotalCalls: total,
		Successes:  successes,
		Failures:   failures,
		CacheHits:  cacheHits,
		Breakers:   breakers,
	}
	if total > 0 {
		summary.SuccessRate = float64(successes) / float64(total)
		summary.CacheHitRate = float64(cacheHits) / float64(total)
	}

	if breakers["open"] > 0 {
		summary.Status = "degraded"
		if adapters > 0 && breakers["open"] == adapters {
			summary.Status = "unhealthy"
		}
	}
	return summary
}

// TargetHealth returns the per-target control stats
func (s *Service) TargetHealth(name string) (*TargetHealth, error) {
	s.mu.RLock()
	t, ok := s.targets[name]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("target " + name)
	}

	th := &TargetHealth{
		Name:    name,
		Breaker: t.breaker.Stats(),
	}
	if t.limiter != nil {
		stats := t.limiter.Stats()
		th.RateLimit = &stats
	}
	if t.cache != nil {
		stats := t.cache.Stats(10)
		th.Cache = &stats
	}
	return th, nil
}

// Start launches the background cache sweeper
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.NewInternalError("gateway already started")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.sweepWg.Add(1)
	go s.sweepLoop(ctx)

	s.logger.Info("Gateway started",
		"sweep_interval", s.config.SweepInterval.String(),
	)
	return nil
}

// Stop stops the background cache sweeper
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.sweepWg.Wait()
	s.logger.Info("Gateway stopped")
}

// sweepLoop proactively removes expired cache entries across all targets
func (s *Service) sweepLoop(ctx context.Context) {
	defer s.sweepWg.Done()

	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			caches := make([]*cache.Cache, 0, len(s.targets))
			for _, t := range s.targets {
				if t.cache != nil {
					caches = append(caches, t.cache)
				}
			}
			s.mu.RUnlock()

			for _, c := range caches {
				c.Sweep()
			}
		}
	}
}

// breakerStateChange feeds breaker transitions into metrics
func (s *Service) breakerStateChange(name string, from, to resilience.CircuitState) {
	if s.metrics == nil {
		return
	}
	var state float64
	switch to {
	case resilience.StateOpen:
		state = 1
	case resilience.StateHalfOpen:
		state = 2
	}
	s.metrics.UpdateBreakerState(name, to.String(), state)
}
