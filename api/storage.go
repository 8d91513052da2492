// File: api/storage.go
// Package api defines the storage engine boundary contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ChunkWriter is the persistent sink drained buffers are written to.
// Each call receives one contiguous span of retired buffer content.
type ChunkWriter interface {
	// WriteChunk appends p as a single chunk tagged with the recording epoch.
	// Returns the number of payload bytes accepted.
	WriteChunk(epoch uint32, p []byte) (int, error)

	// Close flushes and releases the sink.
	Close() error
}

// Message is a symbolic notification sent from producers to the drain side.
type Message int

const (
	// MsgFullBuffer announces that a global buffer was retired into the full pool.
	MsgFullBuffer Message = iota + 1
	// MsgDeadBuffer announces that a thread-local buffer was released by an exiting producer.
	MsgDeadBuffer
	// MsgShutdown asks the drain side to perform a final write and stop.
	MsgShutdown
)

func (m Message) String() string {
	switch m {
	case MsgFullBuffer:
		return "full-buffer"
	case MsgDeadBuffer:
		return "dead-buffer"
	case MsgShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// PostBox receives asynchronous notifications. Post must never block the producer.
type PostBox interface {
	Post(msg Message)
}
