// File: pool/retrieval.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

// PoolKind names the pool a retrieval strategy naturally scans.
type PoolKind int

const (
	PoolLive PoolKind = iota
	PoolFree
)

// PoolIterator yields candidate buffers from one pool.
type PoolIterator interface {
	Next() (*Buffer, bool)
}

// Retrieval selects a buffer for a request of size bytes on behalf of t.
// A returned buffer is acquired by t.
type Retrieval interface {
	Pool() PoolKind
	Retrieve(s *MemorySpace, size int, it PoolIterator, t ThreadID) *Buffer
}

// GenericRetrieval scans for an unowned buffer with enough free space.
// Non-empty buffers too full for the request are retired to the client.
// Free pool entries are always empty and are never retired.
type GenericRetrieval struct{}

func (GenericRetrieval) Pool() PoolKind { return PoolLive }

func (GenericRetrieval) Retrieve(s *MemorySpace, size int, it PoolIterator, t ThreadID) *Buffer {
	for {
		b, ok := it.Next()
		if !ok {
			return nil
		}
		if b.Retired() || !b.TryAcquire(t) {
			continue
		}
		if b.Retired() || b.Dead() {
			b.Release()
			continue
		}
		if b.FreeSize() >= size {
			return b
		}
		if b.Committed() == 0 {
			// empty and still too small: nothing to retire
			b.Release()
			continue
		}
		s.RetireLive(b, t)
	}
}

// ThreadLocalRetrieval takes the first buffer offered. It is used on free
// pools, whose entries are never owned or retired.
type ThreadLocalRetrieval struct{}

func (ThreadLocalRetrieval) Pool() PoolKind { return PoolFree }

func (ThreadLocalRetrieval) Retrieve(s *MemorySpace, size int, it PoolIterator, t ThreadID) *Buffer {
	for {
		b, ok := it.Next()
		if !ok {
			return nil
		}
		if !b.TryAcquire(t) {
			continue
		}
		if b.Size() < size {
			b.Release()
			continue
		}
		return b
	}
}

type sliceIterator struct {
	items []*Buffer
	pos   int
}

func (it *sliceIterator) Next() (*Buffer, bool) {
	if it.pos >= len(it.items) {
		return nil, false
	}
	b := it.items[it.pos]
	it.pos++
	return b, true
}

// freeIterator dequeues from the free pool; buffers the strategy passed
// over are put back on close.
type freeIterator struct {
	space *MemorySpace
	taken []*Buffer
}

func (it *freeIterator) Next() (*Buffer, bool) {
	b, ok := it.space.free.Dequeue()
	if ok {
		it.taken = append(it.taken, b)
	}
	return b, ok
}

func (it *freeIterator) close(chosen *Buffer) {
	for _, b := range it.taken {
		if b == chosen {
			continue
		}
		if !it.space.free.Enqueue(b) {
			b.Acquire(reclaimer)
			it.space.deallocate(b)
		}
	}
}
