package resilience

import (
	"time"
)

// RetryPolicy describes how the gateway retries transient failures for one
// target. The orchestrator owns the retry loop; this type owns the delay math.
type RetryPolicy struct {
	// MaxRetries is the number of retry attempts after the initial call
	MaxRetries int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay
	MaxDelay time.Duration
	// Exponential doubles the delay per attempt; otherwise BaseDelay is
	// used for every retry
	Exponential bool
	// RetryRateLimited controls whether a rate-limit rejection counts as a
	// retryable failure or aborts the loop
	RetryRateLimited bool
}

// DefaultRetryPolicy returns the policy applied to targets registered without
// their own.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       3,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		Exponential:      true,
		RetryRateLimited: true,
	}
}

// Normalize fills zero values with usable defaults
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// BackoffDelay returns the delay to sleep before retry number attempt
// (zero-based). Exponential policies compute min(BaseDelay * 2^attempt,
// MaxDelay); fixed policies always return BaseDelay.
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	if !p.Exponential {
		return p.BaseDelay
	}

	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
