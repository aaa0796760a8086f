package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesBackToBackCalls(t *testing.T) {
	t.Parallel()

	l := New(Config{Name: "test", Delay: 500 * time.Millisecond})
	ctx := context.Background()

	var second time.Time
	first := time.Now()
	require.NoError(t, l.Execute(ctx, func(context.Context) error { return nil }))
	require.NoError(t, l.Execute(ctx, func(context.Context) error {
		second = time.Now()
		return nil
	}))

	gap := second.Sub(first)
	assert.GreaterOrEqual(t, gap, 500*time.Millisecond, "second call started after %v", gap)
}

func TestLimiterFirstCallIsImmediate(t *testing.T) {
	t.Parallel()

	l := New(Config{Delay: time.Second})
	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestUnlimitedNeverWaits(t *testing.T) {
	t.Parallel()

	l := Unlimited()
	start := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Zero(t, l.Delay())
}

func TestExecutePropagatesOperationError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := Unlimited().Execute(context.Background(), func(context.Context) error { return boom })
	assert.Same(t, boom, err)
}

func TestDoReturnsValue(t *testing.T) {
	t.Parallel()

	got, err := Do(context.Background(), Unlimited(), func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestWaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{Delay: time.Hour})
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := l.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
