// File: storage/control.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package storage

import "sync/atomic"

// toDiskThreshold is the number of full buffers above which the writer is
// notified in disk mode.
const toDiskThreshold = 0

// Control holds the thresholds and counters that steer the engine.
// fullCount is mutated only while the engine's buffer lock is held; it is
// atomic so probes may read it without the lock.
type Control struct {
	discardThreshold  atomic.Int64
	scavengeThreshold atomic.Int64
	toDisk            atomic.Bool
	fullCount         atomic.Int64
	deadCount         atomic.Int64
}

func NewControl(discardThreshold, scavengeThreshold int, toDisk bool) *Control {
	c := &Control{}
	c.discardThreshold.Store(int64(discardThreshold))
	c.scavengeThreshold.Store(int64(scavengeThreshold))
	c.toDisk.Store(toDisk)
	return c
}

// IncrementFull counts a buffer entering the full pool. Returns true when
// the writer should be notified. Requires the buffer lock.
func (c *Control) IncrementFull() bool {
	n := c.fullCount.Add(1)
	return c.ToDisk() && n > toDiskThreshold
}

// DecrementFull requires the buffer lock.
func (c *Control) DecrementFull() {
	if c.fullCount.Add(-1) < 0 {
		panic("storage: full count underflow")
	}
}

// ShouldDiscard reports that memory mode has accumulated enough full
// buffers for the oldest to be dropped.
func (c *Control) ShouldDiscard() bool {
	return !c.ToDisk() && c.fullCount.Load() >= c.discardThreshold.Load()
}

func (c *Control) IncrementDead() { c.deadCount.Add(1) }

func (c *Control) DecrementDead() {
	if c.deadCount.Add(-1) < 0 {
		panic("storage: dead count underflow")
	}
}

// ShouldScavenge reports that enough producers released their buffers to
// make a scavenging pass worthwhile.
func (c *Control) ShouldScavenge() bool {
	return c.deadCount.Load() >= c.scavengeThreshold.Load()
}

func (c *Control) SetToDisk(v bool) { c.toDisk.Store(v) }
func (c *Control) ToDisk() bool { return c.toDisk.Load() }
func (c *Control) SetDiscardThreshold(n int) { c.discardThreshold.Store(int64(n)) }
func (c *Control) DiscardThreshold() int { return int(c.discardThreshold.Load()) }
func (c *Control) SetScavengeThreshold(n int) { c.scavengeThreshold.Store(int64(n)) }
func (c *Control) ScavengeThreshold() int { return int(c.scavengeThreshold.Load()) }
func (c *Control) FullCount() int { return int(c.fullCount.Load()) }
func (c *Control) DeadCount() int64 { return c.deadCount.Load() }
