package stats_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treefuse/internal/stats"
)

func TestReporter_FirstTickExcludesActivityFromBeforeRun(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	c := &stats.Counters{}
	c.RecordRead(10)
	c.RecordRead(5)
	c.RecordLookup()

	r := stats.NewReporter(c, logger, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	// The 15 bytes and 1 lookup happened before Run ever took its sample
	// base, so the first tick's rate must not carry them forward as a
	// lifetime total.
	assert.EqualValues(t, 0, entry["bytes_per_sec"])
	assert.EqualValues(t, 0, entry["iops"])
}

func TestReporter_RateReflectsActivityDuringInterval(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	c := &stats.Counters{}
	r := stats.NewReporter(c, logger, 30*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.RecordRead(300)
		c.RecordGetattr()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Greater(t, entry["bytes_per_sec"].(float64), 0.0)
	assert.Greater(t, entry["iops"].(float64), 0.0)
}

func TestCounters_Snapshot(t *testing.T) {
	c := &stats.Counters{}
	c.RecordDenied()
	c.RecordThrottled()
	c.RecordGetattr()
	c.RecordReaddir()

	s := c.Snapshot()
	assert.EqualValues(t, 1, s.DeniedOps)
	assert.EqualValues(t, 1, s.ThrottledOps)
	assert.EqualValues(t, 1, s.GetattrOps)
	assert.EqualValues(t, 1, s.ReaddirOps)
}
