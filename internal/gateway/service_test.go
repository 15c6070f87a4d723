package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbandu/bag-sub001/internal/cache"
	"github.com/jbandu/bag-sub001/pkg/errors"
	"github.com/jbandu/bag-sub001/pkg/resilience"
)

// fakeAdapter is a scriptable adapter for exercising the call pipeline.
type fakeAdapter struct {
	name    string
	methods []string
	invoke  func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error)
	calls   int64
}

func (f *fakeAdapter) Name() string      { return f.name }
func (f *fakeAdapter) Methods() []string { return f.methods }

func (f *fakeAdapter) Invoke(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.invoke(ctx, method, params)
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeAdapter) invocations() int64 { return atomic.LoadInt64(&f.calls) }

func fastRetry(maxRetries int) *resilience.RetryPolicy {
	return &resilience.RetryPolicy{
		MaxRetries:       maxRetries,
		BaseDelay:        time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		Exponential:      true,
		RetryRateLimited: true,
	}
}

func TestCallSucceedsAfterTransientFailures(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	var attempts int64
	fake := &fakeAdapter{
		name:    "booking",
		methods: []string{"lookup_bag"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			if atomic.AddInt64(&attempts, 1) <= 2 {
				return nil, errors.NewExternalError("booking", "host unreachable")
			}
			return map[string]interface{}{"tag": params["tag"]}, nil
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{Retry: fastRetry(3)}))

	resp := svc.Call(context.Background(), &Request{
		Target: "booking",
		Method: "lookup_bag",
		Params: map[string]interface{}{"tag": "0125123456"},
	})

	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Retries)
	assert.False(t, resp.Cached)
	assert.Equal(t, "booking", resp.Source)
	assert.Equal(t, int64(3), fake.invocations())
}

func TestCallExhaustsRetryBudget(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "scanner-net",
		methods: []string{"poll_scans"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return nil, errors.NewExternalError("scanner-net", "read timeout")
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{Retry: fastRetry(3)}))

	resp := svc.Call(context.Background(), &Request{Target: "scanner-net", Method: "poll_scans"})

	assert.False(t, resp.Success)
	assert.Equal(t, 3, resp.Retries)
	assert.Equal(t, int64(4), fake.invocations(), "initial attempt plus three retries")
	assert.Contains(t, resp.Error, "read timeout")
}

func TestCallDoesNotRetryOpenBreaker(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "typeb",
		methods: []string{"send_bsm"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return nil, errors.NewExternalError("typeb", "gateway down")
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{
		Breaker: &resilience.CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour},
		Retry:   fastRetry(5),
	}))

	// First call fails and trips the breaker on the initial attempt; the
	// retry that follows sees the open circuit and must not be retried
	// further.
	resp := svc.Call(context.Background(), &Request{Target: "typeb", Method: "send_bsm"})
	assert.False(t, resp.Success)
	assert.Equal(t, errors.CodeBreakerOpen, resp.ErrorCode)
	assert.Equal(t, int64(1), fake.invocations())

	// Subsequent calls are rejected outright without touching the adapter.
	resp = svc.Call(context.Background(), &Request{Target: "typeb", Method: "send_bsm"})
	assert.False(t, resp.Success)
	assert.Equal(t, errors.CodeBreakerOpen, resp.ErrorCode)
	assert.Equal(t, 0, resp.Retries)
	assert.Equal(t, int64(1), fake.invocations())
}

func TestCallDoesNotRetryNonRetryableAdapterErrors(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "typeb",
		methods: []string{"send_bsm"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return nil, errors.NewValidationError("bag tag must be ten digits")
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{Retry: fastRetry(5)}))

	// A malformed request stays malformed no matter how often it is
	// replayed, so the retry budget must not be spent on it.
	resp := svc.Call(context.Background(), &Request{Target: "typeb", Method: "send_bsm"})
	assert.False(t, resp.Success)
	assert.Equal(t, errors.CodeValidation, resp.ErrorCode)
	assert.Equal(t, 0, resp.Retries)
	assert.Equal(t, int64(1), fake.invocations())
}

func TestCallServesFromCache(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "booking",
		methods: []string{"lookup_bag"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return "fresh", nil
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{
		Cache: &cache.Config{MaxEntries: 10, DefaultTTL: time.Minute},
	}))

	req := &Request{
		Target:   "booking",
		Method:   "lookup_bag",
		Params:   map[string]interface{}{"tag": "0125123456"},
		UseCache: true,
	}

	first := svc.Call(context.Background(), req)
	require.True(t, first.Success)
	assert.False(t, first.Cached)

	second := svc.Call(context.Background(), req)
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, "fresh", second.Data)
	assert.Equal(t, int64(1), fake.invocations())
}

func TestCallUnknownTargetAndMethod(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "courier",
		methods: []string{"book_delivery"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return nil, nil
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{Retry: fastRetry(3)}))

	resp := svc.Call(context.Background(), &Request{Target: "nowhere", Method: "anything"})
	assert.False(t, resp.Success)
	assert.Equal(t, errors.CodeConfiguration, resp.ErrorCode)
	assert.Equal(t, 0, resp.Retries)

	resp = svc.Call(context.Background(), &Request{Target: "courier", Method: "cancel_delivery"})
	assert.False(t, resp.Success)
	assert.Equal(t, errors.CodeConfiguration, resp.ErrorCode)
	assert.Equal(t, int64(0), fake.invocations())
}

func TestCallRateLimitedTerminalWhenPolicyForbidsRetry(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "courier",
		methods: []string{"book_delivery"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return "booked", nil
		},
	}
	policy := fastRetry(3)
	policy.RetryRateLimited = false
	require.NoError(t, svc.Register(fake, &TargetOptions{
		RateLimit: &resilience.RateLimitConfig{MaxRequests: 2, Window: time.Hour},
		Retry:     policy,
	}))

	req := &Request{Target: "courier", Method: "book_delivery"}
	for i := 0; i < 2; i++ {
		resp := svc.Call(context.Background(), req)
		require.True(t, resp.Success)
	}

	resp := svc.Call(context.Background(), req)
	assert.False(t, resp.Success)
	assert.Equal(t, errors.CodeRateLimit, resp.ErrorCode)
	assert.Equal(t, int64(2), fake.invocations())

	// The limiter's retry-after estimate rides along in the response
	// metadata so callers know when to come back.
	require.NotNil(t, resp.Metadata)
	assert.NotEmpty(t, resp.Metadata["retry_after"])
	assert.Equal(t, "courier", resp.Metadata["target"])
}

func TestCallRetriesThroughRateLimit(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "courier",
		methods: []string{"book_delivery"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return "booked", nil
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{
		RateLimit: &resilience.RateLimitConfig{MaxRequests: 20, Window: time.Second, Burst: 1},
		Retry: &resilience.RetryPolicy{
			MaxRetries:       5,
			BaseDelay:        25 * time.Millisecond,
			MaxDelay:         25 * time.Millisecond,
			Exponential:      false,
			RetryRateLimited: true,
		},
	}))

	req := &Request{Target: "courier", Method: "book_delivery"}
	require.True(t, svc.Call(context.Background(), req).Success)

	// The bucket is empty now; the call must wait out a backoff, pick up a
	// refilled token and succeed with at least one retry recorded.
	resp := svc.Call(context.Background(), req)
	assert.True(t, resp.Success)
	assert.GreaterOrEqual(t, resp.Retries, 1)
}

func TestCallHonorsContextDeadline(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "booking",
		methods: []string{"lookup_bag"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return nil, errors.NewExternalError("booking", "flaky")
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{
		Retry: &resilience.RetryPolicy{
			MaxRetries:       10,
			BaseDelay:        50 * time.Millisecond,
			MaxDelay:         50 * time.Millisecond,
			RetryRateLimited: true,
		},
	}))

	resp := svc.Call(context.Background(), &Request{
		Target:  "booking",
		Method:  "lookup_bag",
		Timeout: 60 * time.Millisecond,
	})

	assert.False(t, resp.Success)
	assert.Equal(t, errors.CodeTimeout, resp.ErrorCode)
	assert.Less(t, resp.Retries, 10)
}

func TestRegisterRejectsDuplicatesAndBadLimits(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "booking",
		methods: []string{"lookup_bag"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return nil, nil
		},
	}
	require.NoError(t, svc.Register(fake, nil))

	err := svc.Register(fake, nil)
	assert.Error(t, err)

	other := &fakeAdapter{name: "scanner-net", methods: []string{"poll_scans"}, invoke: fake.invoke}
	err = svc.Register(other, &TargetOptions{
		RateLimit: &resilience.RateLimitConfig{MaxRequests: 0, Window: time.Second},
	})
	assert.Error(t, err)
}

func TestInvalidateCacheAndResetBreaker(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "booking",
		methods: []string{"lookup_bag", "lookup_passenger"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return method, nil
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{
		Cache: &cache.Config{MaxEntries: 10, DefaultTTL: time.Minute},
	}))

	for _, method := range []string{"lookup_bag", "lookup_passenger"} {
		resp := svc.Call(context.Background(), &Request{
			Target:   "booking",
			Method:   method,
			UseCache: true,
		})
		require.True(t, resp.Success)
	}

	removed, err := svc.InvalidateCache("booking", "lookup_bag")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = svc.InvalidateCache("booking", "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = svc.InvalidateCache("nowhere", "")
	assert.Error(t, err)

	assert.NoError(t, svc.ResetBreaker("booking"))
	assert.Error(t, svc.ResetBreaker("nowhere"))
}

func TestHealthSummary(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	healthy := &fakeAdapter{
		name:    "booking",
		methods: []string{"lookup_bag"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return "ok", nil
		},
	}
	broken := &fakeAdapter{
		name:    "typeb",
		methods: []string{"send_bsm"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return nil, errors.NewExternalError("typeb", "down")
		},
	}
	require.NoError(t, svc.Register(healthy, nil))
	require.NoError(t, svc.Register(broken, &TargetOptions{
		Breaker: &resilience.CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour},
		Retry:   fastRetry(0),
	}))

	require.True(t, svc.Call(context.Background(), &Request{Target: "booking", Method: "lookup_bag"}).Success)
	require.False(t, svc.Call(context.Background(), &Request{Target: "typeb", Method: "send_bsm"}).Success)

	summary := svc.Health()
	assert.Equal(t, "degraded", summary.Status)
	assert.Equal(t, 2, summary.Adapters)
	assert.Equal(t, uint64(2), summary.TotalCalls)
	assert.Equal(t, 1, summary.Breakers["open"])
	assert.Equal(t, 1, summary.Breakers["closed"])

	th, err := svc.TargetHealth("typeb")
	require.NoError(t, err)
	assert.Equal(t, "OPEN", th.Breaker.State)

	_, err = svc.TargetHealth("nowhere")
	assert.Error(t, err)
}

func TestTargetsListing(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)

	fake := &fakeAdapter{
		name:    "booking",
		methods: []string{"lookup_bag", "lookup_passenger"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return nil, nil
		},
	}
	require.NoError(t, svc.Register(fake, nil))

	targets := svc.Targets()
	require.Len(t, targets, 1)
	assert.Equal(t, "booking", targets[0].Name)
	assert.Equal(t, []string{"lookup_bag", "lookup_passenger"}, targets[0].Methods)
}

func TestStartStopSweepsExpiredEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 20 * time.Millisecond
	svc := NewService(cfg, nil)

	fake := &fakeAdapter{
		name:    "booking",
		methods: []string{"lookup_bag"},
		invoke: func(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
			return "ok", nil
		},
	}
	require.NoError(t, svc.Register(fake, &TargetOptions{
		Cache: &cache.Config{MaxEntries: 10, DefaultTTL: 10 * time.Millisecond},
	}))

	resp := svc.Call(context.Background(), &Request{
		Target:   "booking",
		Method:   "lookup_bag",
		UseCache: true,
	})
	require.True(t, resp.Success)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		th, err := svc.TargetHealth("booking")
		if err != nil {
			return false
		}
		return th.Cache != nil && th.Cache.Size == 0
	}, time.Second, 10*time.Millisecond)
}
