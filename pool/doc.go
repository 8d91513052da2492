// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer of the recorder storage engine.
// Implements fixed-capacity, position-tracked Buffers backed by native memory,
// and MemorySpaces that hand them out to producer threads from lock-free free
// pools and (optionally epoch-partitioned) live pools.
// See buffer.go, mspace.go, retrieval.go and ops.go for implementation details.
package pool
