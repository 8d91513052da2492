// Package api
// Author: momentics
//
// Live debug support for the storage engine and the compiler bridge.

package api

// Debug exposes runtime introspection of pools, counters and handle tables.
type Debug interface {
	// DumpState emits a snapshot of system state for diagnostics.
	DumpState() map[string]any

	// RegisterProbe dynamically registers new debug probes.
	RegisterProbe(name string, fn func() any)
}
