package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyIgnoresParamOrder(t *testing.T) {
	a := cacheKey("booking", "lookup_bag", map[string]interface{}{
		"tag":    "0125123456",
		"flight": "BA117",
	})
	b := cacheKey("booking", "lookup_bag", map[string]interface{}{
		"flight": "BA117",
		"tag":    "0125123456",
	})
	assert.Equal(t, a, b)
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	base := cacheKey("booking", "lookup_bag", map[string]interface{}{"tag": "0125123456"})

	assert.NotEqual(t, base, cacheKey("booking", "lookup_bag", map[string]interface{}{"tag": "0125999999"}))
	assert.NotEqual(t, base, cacheKey("booking", "lookup_passenger", map[string]interface{}{"tag": "0125123456"}))
	assert.NotEqual(t, base, cacheKey("scanner-net", "lookup_bag", map[string]interface{}{"tag": "0125123456"}))
}

func TestCacheKeyWithoutParams(t *testing.T) {
	assert.Equal(t, "booking:lookup_bag", cacheKey("booking", "lookup_bag", nil))
	assert.Equal(t, "booking:lookup_bag", cacheKey("booking", "lookup_bag", map[string]interface{}{}))
}
