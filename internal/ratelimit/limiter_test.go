package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treefuse/internal/ratelimit"
)

func TestLimiter_Disabled_NeverBlocks(t *testing.T) {
	l := ratelimit.New(nil, 0, 0)
	for i := 0; i < 1000; i++ {
		_, err := l.Wait(context.Background())
		require.NoError(t, err)
	}
}

func TestLimiter_MinSpacing_Enforced(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(0, 0))
	l := ratelimit.New(clock, 10*time.Millisecond, 0)

	waited, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, waited)

	done := make(chan error, 1)
	go func() {
		waited, err := l.Wait(context.Background())
		assert.True(t, waited)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("second Wait returned before minSpacing elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	clock.AdvanceTime(10 * time.Millisecond)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second Wait never returned after advancing clock")
	}
}

func TestLimiter_MaxPerSecond_Enforced(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(0, 0))
	l := ratelimit.New(clock, 0, 2)

	_, err := l.Wait(context.Background())
	require.NoError(t, err)
	_, err = l.Wait(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		waited, err := l.Wait(context.Background())
		assert.True(t, waited)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("third Wait returned before the window cleared")
	case <-time.After(20 * time.Millisecond):
	}

	clock.AdvanceTime(time.Second)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("third Wait never returned after the window cleared")
	}
}

func TestLimiter_CancelledContext(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(0, 0))
	l := ratelimit.New(clock, time.Hour, 0)
	_, err := l.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
