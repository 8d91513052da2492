// Package sink
// Author: momentics <momentics@gmail.com>
//
// Persistent destinations for drained storage chunks: an in-memory sink,
// an append-only chunk file with optional lz4/xz compression and an
// in-memory segment index, and a SQLite chunk repository.
package sink
