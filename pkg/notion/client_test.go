package notion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientReturnsClient(t *testing.T) {
	c := NewClient("test-token")
	require.NotNil(t, c)

	ac, ok := c.(*apiClient)
	require.True(t, ok)
	assert.NotNil(t, ac.limiter)
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(10)).(*apiClient)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 10, float64(c.limiter.Limit()), 0.001)
	assert.Equal(t, 10, c.limiter.Burst())

	c = NewClient("test-token", WithRateLimit(0)).(*apiClient)
	assert.Nil(t, c.limiter)
	assert.NoError(t, c.throttle(context.Background()))
}

func TestThrottle_ContextCancelled(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(0.001)).(*apiClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The first token is available; the second wait needs a cancelled context
	// to fail instead of blocking.
	_ = c.throttle(context.Background())
	err := c.throttle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: rate limit")
}
