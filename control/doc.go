// Package control
// Author: momentics <momentics@gmail.com>
//
// Settings, hot-reload, runtime metrics and debug introspection for a
// running recorder.
//
// Provides concurrent-safe state handling primitives including:
//   - TOML settings with human-readable sizes and validation
//   - A file watcher that reloads settings on change
//   - Snapshot config reads and listener dispatch
//   - Metrics registry and debug probe registration
package control
