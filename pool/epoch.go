// File: pool/epoch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync/atomic"

// Epoch is a shared generation counter. Live pools of epoch-aware spaces
// are split in two generations selected by the counter's low bit: producers
// place buffers into the current generation while the writer drains the
// previous one.
type Epoch struct {
	counter atomic.Uint32
}

// Counter returns the full counter, used to tag chunks.
func (e *Epoch) Counter() uint32 { return e.counter.Load() }

// Current returns the generation index producers use.
func (e *Epoch) Current() int { return int(e.counter.Load() & 1) }

// Previous returns the generation index the writer drains.
func (e *Epoch) Previous() int { return int((e.counter.Load() + 1) & 1) }

// Shift advances the epoch and returns the new counter.
func (e *Epoch) Shift() uint32 { return e.counter.Add(1) }
