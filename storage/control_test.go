// File: storage/control_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package storage

import "testing"

func TestControl_DiscardThreshold(t *testing.T) {
	c := NewControl(3, 1, false)
	for i := 0; i < 3; i++ {
		if c.IncrementFull() {
			t.Fatal("memory mode must not notify the writer")
		}
	}
	if !c.ShouldDiscard() {
		t.Fatal("ShouldDiscard false at threshold")
	}
	c.DecrementFull()
	if c.ShouldDiscard() {
		t.Fatal("ShouldDiscard true below threshold")
	}
	if c.FullCount() != 2 {
		t.Errorf("FullCount=%d, want 2", c.FullCount())
	}
}

func TestControl_ToDisk(t *testing.T) {
	c := NewControl(1, 1, true)
	if !c.IncrementFull() {
		t.Fatal("disk mode must notify once a buffer is full")
	}
	if c.ShouldDiscard() {
		t.Fatal("disk mode must never discard")
	}
	c.SetToDisk(false)
	if !c.ShouldDiscard() {
		t.Fatal("memory mode at threshold must discard")
	}
}

func TestControl_Scavenge(t *testing.T) {
	c := NewControl(1, 2, false)
	c.IncrementDead()
	if c.ShouldScavenge() {
		t.Fatal("scavenge below threshold")
	}
	c.IncrementDead()
	if !c.ShouldScavenge() {
		t.Fatal("no scavenge at threshold")
	}
	c.DecrementDead()
	c.DecrementDead()
	defer func() {
		if recover() == nil {
			t.Error("expected panic on dead count underflow")
		}
	}()
	c.DecrementDead()
}

func TestConfig_DiscardThresholdDefault(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.discardThreshold(); got != cfg.GlobalBufferCount-2 {
		t.Errorf("discardThreshold=%d, want %d", got, cfg.GlobalBufferCount-2)
	}
	cfg.GlobalBufferCount = 1
	if got := cfg.discardThreshold(); got != 1 {
		t.Errorf("discardThreshold=%d, want 1", got)
	}
}
