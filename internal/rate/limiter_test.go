package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, int64(3), res.CurrentHits)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	other, err := l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")
}

func TestMemoryLimiter_WindowExpires(t *testing.T) {
	l := NewMemoryLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	res, _ := l.Allow(ctx, "k")
	require.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "k")
	require.False(t, res.Allowed)

	time.Sleep(40 * time.Millisecond)
	res, _ = l.Allow(ctx, "k")
	assert.True(t, res.Allowed)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "memory"})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{Driver: "carrier-pigeon", Max: 1, Window: time.Second})
	assert.Error(t, err)
	l, err := New(context.Background(), Config{Max: 1, Window: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, l)
}
