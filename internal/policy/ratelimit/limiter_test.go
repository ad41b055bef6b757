package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	// 10 RPS = one token every 100ms, burst 1.
	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/other"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_DifferentHosts(t *testing.T) {
	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://B.com/1"))
	assert.Less(t, time.Since(start), 100*time.Millisecond, "host b should not wait for host a")
	assert.Equal(t, 2, l.Hosts())
}

func TestLimiter_ContextCancel(t *testing.T) {
	l := New(Config{
		DefaultRPS:   0.1,
		DefaultBurst: 1,
	})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://slow.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://fast.example"))
	}
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", hostOf("https://Example.com:8443/a"))
	assert.Equal(t, "unknown", hostOf("::not a url"))
	assert.Equal(t, "unknown", hostOf(""))
}
