// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Reload hooks fired when the settings file changes.

package control

import "sync"

// ReloadHooks is a list of components interested in fresh Settings.
type ReloadHooks struct {
	mu    sync.Mutex
	hooks []func(Settings)
}

// Register adds a reload listener.
func (h *ReloadHooks) Register(fn func(Settings)) {
	h.mu.Lock()
	h.hooks = append(h.hooks, fn)
	h.mu.Unlock()
}

func (h *ReloadHooks) snapshot() []func(Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]func(Settings){}, h.hooks...)
}

// Trigger dispatches all hooks asynchronously.
func (h *ReloadHooks) Trigger(s Settings) {
	for _, fn := range h.snapshot() {
		go fn(s)
	}
}

// TriggerSync invokes all hooks in order on the calling goroutine.
func (h *ReloadHooks) TriggerSync(s Settings) {
	for _, fn := range h.snapshot() {
		fn(s)
	}
}
