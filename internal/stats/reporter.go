package stats

import (
	"context"
	"log/slog"
	"time"
)

// Reporter periodically logs operations-per-second and bytes-per-second
// over the previous interval, rather than the raw lifetime totals: each
// tick diffs the current Counters snapshot against the one taken on the
// previous tick (the "sample base") and resets that base to the current
// snapshot.
type Reporter struct {
	counters *Counters
	logger   *slog.Logger
	interval time.Duration

	prev     Snapshot
	prevTime time.Time
}

// NewReporter builds a Reporter. A non-positive interval falls back to a
// conservative default when Run starts.
func NewReporter(counters *Counters, logger *slog.Logger, interval time.Duration) *Reporter {
	return &Reporter{counters: counters, logger: logger, interval: interval}
}

// Run blocks, logging a rate snapshot every interval, until ctx is
// cancelled. The sample base is taken at the moment Run starts, so the
// first tick's rate covers the interval from startup, not from process
// start.
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.interval = 10 * time.Second
	}
	r.prev = r.counters.Snapshot()
	r.prevTime = time.Now()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logOnce()
		}
	}
}

func (r *Reporter) logOnce() {
	now := time.Now()
	s := r.counters.Snapshot()

	elapsed := now.Sub(r.prevTime).Seconds()
	if elapsed <= 0 {
		elapsed = r.interval.Seconds()
	}

	ops := (s.LookupOps - r.prev.LookupOps) + (s.GetattrOps - r.prev.GetattrOps) +
		(s.ReaddirOps - r.prev.ReaddirOps) + (s.ReadOps - r.prev.ReadOps)
	bytes := s.BytesRead - r.prev.BytesRead

	r.logger.Info("stats",
		"iops", float64(ops)/elapsed,
		"bytes_per_sec", float64(bytes)/elapsed,
		"denied_ops", s.DeniedOps-r.prev.DeniedOps,
		"throttled_ops", s.ThrottledOps-r.prev.ThrottledOps,
	)

	r.prev = s
	r.prevTime = now
}
