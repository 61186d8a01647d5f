package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidateIP(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:   3,
		BurstMultiplier: 1,
		EnableFallback:  true,
		CleanupInterval: time.Hour,
	})
	defer limiter.Close()

	ctx := context.Background()
	ip := "192.168.1.1"

	// Exhaust the budget for the IP
	var result *Result
	var err error
	for i := 0; i < 6; i++ {
		result, err = limiter.AllowIP(ctx, ip)
		require.NoError(t, err)
	}
	assert.False(t, result.Allowed)

	require.NoError(t, limiter.InvalidateIP(ctx, ip))

	// Fresh budget after invalidation
	result, err = limiter.AllowIP(ctx, ip)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInvalidateIPAlsoClearsEndpointKeys(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	defer limiter.Close()

	ctx := context.Background()
	ip := "203.0.113.50"

	_, err := limiter.Allow(ctx, "ratelimit:endpoint:analysis:"+ip, Rate{Limit: 2, Period: time.Minute})
	require.NoError(t, err)
	_, err = limiter.AllowIP(ctx, ip)
	require.NoError(t, err)

	count, err := limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, limiter.InvalidateIP(ctx, ip))

	count, err = limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestInvalidateAll(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	defer limiter.Close()

	ctx := context.Background()
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		_, err := limiter.AllowIP(ctx, ip)
		require.NoError(t, err)
	}

	count, err := limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, limiter.InvalidateAll(ctx))

	count, err = limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestGetKeyCount(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())
	defer limiter.Close()

	ctx := context.Background()

	count, err := limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = limiter.AllowIP(ctx, "172.16.0.1")
	require.NoError(t, err)

	count, err = limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
