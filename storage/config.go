// File: storage/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package storage

import (
	"time"

	"github.com/docker/go-units"
	"github.com/momentics/isorec/api"
)

// Config sizes the engine's memory spaces and tunes its thresholds.
type Config struct {
	GlobalBufferCount int
	GlobalBufferSize  int
	ThreadBufferSize  int
	// ThreadBufferCache buffers are preallocated for producers and kept
	// in the free pool on release.
	ThreadBufferCache int
	// DiscardThreshold is the full pool length at which memory mode drops
	// the oldest data; 0 selects GlobalBufferCount-2 (at least 1).
	DiscardThreshold  int
	ScavengeThreshold int
	PromotionRetries  int
	ToDisk            bool
	Epochs            bool
	LargeRecordLease  bool
	// FlushInterval is the Service's periodic drain interval.
	FlushInterval time.Duration
	// PinDrain pins the Service's goroutine to DrainCPU.
	PinDrain bool
	DrainCPU int
}

// DefaultConfig returns a configuration sized for a typical recording.
func DefaultConfig() Config {
	return Config{
		GlobalBufferCount: 20,
		GlobalBufferSize:  512 * units.KiB,
		ThreadBufferSize:  8 * units.KiB,
		ThreadBufferCache: 8,
		ScavengeThreshold: 4,
		PromotionRetries:  3,
		Epochs:            true,
		LargeRecordLease:  true,
		FlushInterval:     time.Second,
	}
}

func (c Config) discardThreshold() int {
	if c.DiscardThreshold > 0 {
		return c.DiscardThreshold
	}
	if n := c.GlobalBufferCount - 2; n > 0 {
		return n
	}
	return 1
}

func invalid(field string, value any, msg string) error {
	return api.NewError(api.ErrCodeInvalidArgument, "storage: "+msg).
		WithContext("field", field).
		WithContext("value", value)
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.GlobalBufferCount <= 0:
		return invalid("GlobalBufferCount", c.GlobalBufferCount, "global buffer count must be positive")
	case c.GlobalBufferSize <= 0:
		return invalid("GlobalBufferSize", c.GlobalBufferSize, "global buffer size must be positive")
	case c.ThreadBufferSize <= 0:
		return invalid("ThreadBufferSize", c.ThreadBufferSize, "thread buffer size must be positive")
	case c.ThreadBufferSize > c.GlobalBufferSize:
		return invalid("ThreadBufferSize", units.BytesSize(float64(c.ThreadBufferSize)), "thread buffer larger than global buffer")
	case c.ThreadBufferCache < 0:
		return invalid("ThreadBufferCache", c.ThreadBufferCache, "thread buffer cache must not be negative")
	case c.DiscardThreshold < 0:
		return invalid("DiscardThreshold", c.DiscardThreshold, "discard threshold must not be negative")
	case c.ScavengeThreshold < 0:
		return invalid("ScavengeThreshold", c.ScavengeThreshold, "scavenge threshold must not be negative")
	case c.PromotionRetries < 0:
		return invalid("PromotionRetries", c.PromotionRetries, "promotion retries must not be negative")
	case c.FlushInterval < 0:
		return invalid("FlushInterval", c.FlushInterval, "flush interval must not be negative")
	case c.PinDrain && c.DrainCPU < 0:
		return invalid("DrainCPU", c.DrainCPU, "drain cpu must not be negative")
	}
	return nil
}
