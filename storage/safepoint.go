// File: storage/safepoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package storage

import (
	"sync"
	"sync/atomic"
)

// Safepoint stops producers: every Writer operation runs under the shared
// lock and AtSafepoint holds it exclusively.
type Safepoint struct {
	mu     sync.RWMutex
	active atomic.Bool
}

func (s *Safepoint) enter() { s.mu.RLock() }
func (s *Safepoint) leave() { s.mu.RUnlock() }

// Active reports whether a safepoint is in progress.
func (s *Safepoint) Active() bool { return s.active.Load() }

// AtSafepoint runs fn while no producer is inside a Writer operation.
func (e *Engine) AtSafepoint(fn func()) {
	e.safepoint.mu.Lock()
	e.safepoint.active.Store(true)
	defer func() {
		e.safepoint.active.Store(false)
		e.safepoint.mu.Unlock()
	}()
	fn()
}
