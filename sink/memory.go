// File: sink/memory.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sink

import (
	"sync"

	"github.com/momentics/isorec/api"
)

// Chunk is one drained span as a sink stored it.
type Chunk struct {
	Epoch uint32
	Data  []byte
}

// Memory keeps chunks in memory. Used by tests and demos.
type Memory struct {
	mu     sync.Mutex
	chunks []Chunk
	bytes  int
	closed bool
}

var _ api.ChunkWriter = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) WriteChunk(epoch uint32, p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, api.ErrSinkClosed
	}
	m.chunks = append(m.chunks, Chunk{Epoch: epoch, Data: append([]byte(nil), p...)})
	m.bytes += len(p)
	return len(p), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Chunks returns a copy of the stored chunks in write order.
func (m *Memory) Chunks() []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Chunk(nil), m.chunks...)
}

// Len returns the number of payload bytes stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes
}
