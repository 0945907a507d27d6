// Package stats tallies filesystem activity with lock-free counters and,
// optionally, reports them periodically. Every counter is an atomic.Int64,
// so callbacks on concurrent kernel threads update them without a lock.
package stats

import "sync/atomic"

// Counters holds the running totals for one mounted filesystem.
type Counters struct {
	lookupOps   atomic.Int64
	getattrOps  atomic.Int64
	readdirOps  atomic.Int64
	readOps     atomic.Int64
	bytesRead   atomic.Int64
	deniedOps   atomic.Int64
	throttledOp atomic.Int64
}

// Snapshot is an immutable copy of Counters at one instant.
type Snapshot struct {
	LookupOps    int64
	GetattrOps   int64
	ReaddirOps   int64
	ReadOps      int64
	BytesRead    int64
	DeniedOps    int64
	ThrottledOps int64
}

func (c *Counters) RecordLookup()    { c.lookupOps.Add(1) }
func (c *Counters) RecordGetattr()   { c.getattrOps.Add(1) }
func (c *Counters) RecordReaddir()   { c.readdirOps.Add(1) }
func (c *Counters) RecordThrottled() { c.throttledOp.Add(1) }

// RecordDenied tallies an operation rejected because the mount is read-only
// (e.g. mkdir, unlink, setattr).
func (c *Counters) RecordDenied() { c.deniedOps.Add(1) }

// RecordRead tallies a completed read of n bytes.
func (c *Counters) RecordRead(n int64) {
	c.readOps.Add(1)
	c.bytesRead.Add(n)
}

// Snapshot returns the current totals. It is safe to call concurrently
// with any Record* method.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		LookupOps:    c.lookupOps.Load(),
		GetattrOps:   c.getattrOps.Load(),
		ReaddirOps:   c.readdirOps.Load(),
		ReadOps:      c.readOps.Load(),
		BytesRead:    c.bytesRead.Load(),
		DeniedOps:    c.deniedOps.Load(),
		ThrottledOps: c.throttledOp.Load(),
	}
}
