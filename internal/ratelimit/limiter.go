// Package ratelimit throttles filesystem operations along two independent
// axes: a minimum spacing between consecutive operations, and a cap on how
// many operations may be admitted within any rolling one-second window.
// Unlike a token-bucket limiter (github.com/jacobsa/ratelimit), a Limiter
// here does not accumulate unused capacity across idle periods. Either
// knob may be disabled independently by passing a zero value.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
)

// Limiter gates admission of operations. It is safe for concurrent use.
type Limiter struct {
	clock timeutil.Clock

	minSpacing time.Duration
	maxPerSec  int

	mu       sync.Mutex
	lastOp   time.Time
	haveLast bool
	window   []time.Time // admission timestamps within the trailing second
}

// New builds a Limiter. minSpacing <= 0 disables the spacing knob;
// maxPerSec <= 0 disables the window knob. clock is injectable for tests;
// a nil clock defaults to the real wall clock.
func New(clock timeutil.Clock, minSpacing time.Duration, maxPerSec int) *Limiter {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	return &Limiter{
		clock:      clock,
		minSpacing: minSpacing,
		maxPerSec:  maxPerSec,
	}
}

// Wait blocks until an operation may be admitted, or ctx is cancelled. It
// never returns early: exactly one admission is recorded per successful
// call. The returned bool reports whether the caller was made to wait at
// all, so callers can distinguish a throttled op from an immediately
// admitted one for reporting purposes.
func (l *Limiter) Wait(ctx context.Context) (bool, error) {
	waited := false
	for {
		d, ok := l.nextDelay()
		if !ok {
			return waited, nil
		}
		waited = true

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return waited, ctx.Err()
		case <-t.C:
		}
	}
}

// nextDelay returns the duration to wait before re-checking admission, and
// false if the caller may proceed immediately (in which case the admission
// is recorded).
func (l *Limiter) nextDelay() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	if l.minSpacing > 0 && l.haveLast {
		elapsed := now.Sub(l.lastOp)
		if elapsed < l.minSpacing {
			return l.minSpacing - elapsed, true
		}
	}

	if l.maxPerSec > 0 {
		cutoff := now.Add(-time.Second)
		l.window = pruneBefore(l.window, cutoff)
		if len(l.window) >= l.maxPerSec {
			oldest := l.window[0]
			return oldest.Add(time.Second).Sub(now), true
		}
	}

	l.lastOp = now
	l.haveLast = true
	if l.maxPerSec > 0 {
		l.window = append(l.window, now)
	}
	return 0, false
}

// pruneBefore drops timestamps at or before cutoff: an admission exactly
// one second old has left the window, which is the instant nextDelay told
// the waiting caller to re-check.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
