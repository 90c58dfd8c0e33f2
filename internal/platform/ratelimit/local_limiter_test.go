package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiterAllowsWithinBurst(t *testing.T) {
	limiter := NewLocalLimiter(60, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "tenant-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed within burst", i)
	}

	allowed, err := limiter.Allow(ctx, "tenant-1")
	require.NoError(t, err)
	assert.False(t, allowed, "request beyond burst should be rejected")
}

func TestLocalLimiterTracksKeysIndependently(t *testing.T) {
	limiter := NewLocalLimiter(60, 1)
	ctx := context.Background()

	allowedA, err := limiter.Allow(ctx, "tenant-a")
	require.NoError(t, err)
	assert.True(t, allowedA)

	allowedB, err := limiter.Allow(ctx, "tenant-b")
	require.NoError(t, err)
	assert.True(t, allowedB, "a different key should have its own bucket")
}
