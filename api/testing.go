// Package api
// Author: momentics
//
// Mock/testing utilities for all core contracts; extendable for new interfaces.

package api

// MockChunkWriter is a test and mock-friendly implementation of ChunkWriter.
type MockChunkWriter struct {
	WriteChunkFunc func(epoch uint32, p []byte) (int, error)
	CloseFunc      func() error
}

func (m *MockChunkWriter) WriteChunk(epoch uint32, p []byte) (int, error) {
	return m.WriteChunkFunc(epoch, p)
}
func (m *MockChunkWriter) Close() error { return m.CloseFunc() }

// PostFunc adapts a plain function to PostBox.
type PostFunc func(Message)

func (f PostFunc) Post(msg Message) { f(msg) }
