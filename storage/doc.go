// Package storage
// Author: momentics <momentics@gmail.com>
//
// Concurrent buffer storage engine. Producers append framed records into
// thread-local buffers; overflowing buffers are promoted into shared global
// buffers; full global buffers are retired into a full pool that a writer
// drains into an api.ChunkWriter. Storage Control decides when to notify
// the writer, when to discard the oldest data and when to scavenge buffers
// of exited producers.
package storage
