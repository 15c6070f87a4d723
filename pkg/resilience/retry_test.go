package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_ExponentialBackoff(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:  5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Exponential: true,
	}

	assert.Equal(t, 100*time.Millisecond, policy.BackoffDelay(0))
	assert.Equal(t, 200*time.Millisecond, policy.BackoffDelay(1))
	assert.Equal(t, 400*time.Millisecond, policy.BackoffDelay(2))
	assert.Equal(t, 800*time.Millisecond, policy.BackoffDelay(3))
	// Capped at MaxDelay from here on
	assert.Equal(t, time.Second, policy.BackoffDelay(4))
	assert.Equal(t, time.Second, policy.BackoffDelay(10))
}

func TestRetryPolicy_FixedBackoff(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   time.Second,
	}

	for attempt := 0; attempt < 5; attempt++ {
		assert.Equal(t, 250*time.Millisecond, policy.BackoffDelay(attempt))
	}
}

func TestRetryPolicy_Normalize(t *testing.T) {
	policy := RetryPolicy{MaxRetries: -1}.Normalize()

	assert.Equal(t, 0, policy.MaxRetries)
	assert.Equal(t, time.Second, policy.BaseDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 3, policy.MaxRetries)
	assert.True(t, policy.Exponential)
	assert.True(t, policy.RetryRateLimited)
}
