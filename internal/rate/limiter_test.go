package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "idp-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, "idp-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// keys independientes no comparten ventana
	res, err = l.Allow(ctx, "idp-2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiterWindowRollover(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Nanosecond)

	res, err := l.Allow(ctx, "idp-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	time.Sleep(5 * time.Millisecond)

	res, err = l.Allow(ctx, "idp-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
