// File: pool/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffer is a fixed-capacity byte region with atomic committed/flushed
// positions and an atomic owner identity. Producers append at committed,
// the writer drains [flushed, committed).

package pool

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/docker/go-units"
)

// ThreadID identifies a producer. Unowned marks a buffer nobody holds.
type ThreadID int64

const Unowned ThreadID = -1

const (
	flagTransient uint32 = 1 << iota
	flagLeased
	flagExcluded
	flagRetired
	flagDead
)

// Buffer is safe for concurrent use under the following contract:
// only the owner (see Acquire) appends and moves committed; drains and
// promotions of the same buffer are serialized by its flush lock.
type Buffer struct {
	region    []byte
	native    bool
	space     *MemorySpace
	committed atomic.Int64
	flushed   atomic.Int64
	identity  atomic.Int64
	flags     atomic.Uint32
	epoch     atomic.Uint32

	flushMu  sync.Mutex
	globalMu sync.Mutex
}

func newBuffer(size int, space *MemorySpace) (*Buffer, error) {
	region, native, err := allocRegion(size)
	if err != nil {
		return nil, err
	}
	b := &Buffer{region: region, native: native, space: space}
	b.identity.Store(int64(Unowned))
	return b, nil
}

func assert(cond bool, msg string) {
	if !cond {
		panic("pool: " + msg)
	}
}

// Size returns the capacity of the backing region.
func (b *Buffer) Size() int { return len(b.region) }

func (b *Buffer) Committed() int { return int(b.committed.Load()) }
func (b *Buffer) Flushed() int { return int(b.flushed.Load()) }

// FreeSize is the room left after committed.
func (b *Buffer) FreeSize() int { return b.Size() - b.Committed() }

// UnflushedSize is the number of committed bytes not yet handed to a sink.
func (b *Buffer) UnflushedSize() int { return b.Committed() - b.Flushed() }

// Space returns the memory space the buffer was allocated from.
func (b *Buffer) Space() *MemorySpace { return b.space }

// Epoch returns the epoch counter the buffer was last placed into live under.
func (b *Buffer) Epoch() uint32 { return b.epoch.Load() }

func (b *Buffer) setCommitted(pos int) {
	assert(pos >= b.Flushed() && pos <= b.Size(), "committed position out of range")
	b.committed.Store(int64(pos))
}

func (b *Buffer) setFlushed(pos int) {
	assert(pos >= 0 && pos <= b.Committed(), "flushed position out of range")
	b.flushed.Store(int64(pos))
}

// Reserve returns the writable tail [committed, size). Only the owner may
// write into it; bytes become visible to the writer after Commit.
func (b *Buffer) Reserve() []byte {
	return b.region[b.Committed():]
}

// Commit publishes n bytes previously written into Reserve.
func (b *Buffer) Commit(n int) {
	assert(n >= 0, "negative commit")
	b.setCommitted(b.Committed() + n)
}

// Write appends p at committed. Returns false when p does not fit.
func (b *Buffer) Write(p []byte) bool {
	if len(p) > b.FreeSize() {
		return false
	}
	n := copy(b.Reserve(), p)
	b.Commit(n)
	return true
}

// Identity returns the current owner, Unowned if none.
func (b *Buffer) Identity() ThreadID { return ThreadID(b.identity.Load()) }

func (b *Buffer) Acquired() bool { return b.Identity() != Unowned }

func (b *Buffer) AcquiredBy(t ThreadID) bool { return b.Identity() == t }

// TryAcquire makes t the owner if the buffer is unowned or already owned by t.
func (b *Buffer) TryAcquire(t ThreadID) bool {
	assert(t != Unowned, "acquire with unowned identity")
	cur := b.identity.Load()
	if cur == int64(t) {
		return true
	}
	return cur == int64(Unowned) && b.identity.CompareAndSwap(int64(Unowned), int64(t))
}

// Acquire spins until t owns the buffer. It is the only unbounded wait in
// the storage layer and must only be used on buffers that are not
// contended: freshly allocated or just dequeued from a free pool.
func (b *Buffer) Acquire(t ThreadID) {
	for !b.TryAcquire(t) {
		runtime.Gosched()
	}
}

// Release drops ownership and the lease. The buffer must be owned.
func (b *Buffer) Release() {
	assert(b.Acquired(), "release of unowned buffer")
	b.clearFlag(flagLeased)
	b.identity.Store(int64(Unowned))
}

func (b *Buffer) hasFlag(f uint32) bool { return b.flags.Load()&f != 0 }

func (b *Buffer) setFlag(f uint32) {
	for {
		old := b.flags.Load()
		if old&f != 0 || b.flags.CompareAndSwap(old, old|f) {
			return
		}
	}
}

func (b *Buffer) clearFlag(f uint32) {
	for {
		old := b.flags.Load()
		if old&f == 0 || b.flags.CompareAndSwap(old, old&^f) {
			return
		}
	}
}

func (b *Buffer) Transient() bool { return b.hasFlag(flagTransient) }
func (b *Buffer) SetTransient() { b.setFlag(flagTransient) }
func (b *Buffer) Leased() bool { return b.hasFlag(flagLeased) }
func (b *Buffer) SetLeased() { b.setFlag(flagLeased) }
func (b *Buffer) ClearLeased() { b.clearFlag(flagLeased) }
func (b *Buffer) Excluded() bool { return b.hasFlag(flagExcluded) }
func (b *Buffer) SetExcluded() { b.setFlag(flagExcluded) }
func (b *Buffer) ClearExcluded() { b.clearFlag(flagExcluded) }
func (b *Buffer) Retired() bool { return b.hasFlag(flagRetired) }
func (b *Buffer) SetRetired() { b.setFlag(flagRetired) }
func (b *Buffer) ClearRetired() { b.clearFlag(flagRetired) }

// Dead reports that the backing region was returned to the system.
// Holders of stale references must check it under the flush lock.
func (b *Buffer) Dead() bool { return b.hasFlag(flagDead) }

// LockFlush and UnlockFlush expose the flush lock to operation combinators.
func (b *Buffer) LockFlush() { b.flushMu.Lock() }
func (b *Buffer) UnlockFlush() { b.flushMu.Unlock() }

// PromoteTo copies [flushed, committed) into target at its committed
// position, at most size bytes and at most what target can hold. The
// target must be acquired by the caller; it is released on return. Source
// positions are reset to start. Returns the unflushed span seen under the
// flush lock and the number of bytes copied; the difference is dropped.
func (b *Buffer) PromoteTo(target *Buffer, size int) (available, copied int) {
	assert(target != b, "promotion into self")
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	target.globalMu.Lock()
	defer target.globalMu.Unlock()
	assert(target.Acquired(), "promotion target not acquired")
	defer target.Release()

	flushed := b.Flushed()
	available = b.Committed() - flushed
	n := available
	if size < n {
		n = size
	}
	if free := target.FreeSize(); free < n {
		n = free
	}
	tc := target.Committed()
	copy(target.region[tc:tc+n], b.region[flushed:flushed+n])
	target.setCommitted(tc + n)

	b.flushed.Store(0)
	b.committed.Store(0)
	return available, n
}

// TransferTo relocates size bytes starting at the source committed position
// into dst at its committed position. Neither buffer's positions change:
// the relocated bytes are speculative until dst's owner commits them.
func (b *Buffer) TransferTo(dst *Buffer, size int) {
	assert(size >= 0 && size <= b.FreeSize(), "transfer size exceeds source")
	assert(size <= dst.FreeSize(), "transfer size exceeds destination")
	src := b.Committed()
	copy(dst.region[dst.Committed():], b.region[src:src+size])
}

// MoveSpeculative copies size bytes from offset from to the committed
// position. Used after positions were reset to replay a record in progress.
func (b *Buffer) MoveSpeculative(from, size int) {
	assert(from >= 0 && from+size <= b.Size(), "speculative span out of range")
	assert(size <= b.FreeSize(), "speculative span does not fit")
	c := b.Committed()
	copy(b.region[c:c+size], b.region[from:from+size])
}

// Discard marks every unflushed byte as flushed and returns how many
// were dropped.
func (b *Buffer) Discard() int {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	return b.DiscardLocked()
}

// DiscardLocked is Discard for callers already holding the flush lock.
func (b *Buffer) DiscardLocked() int {
	committed := b.Committed()
	n := committed - b.Flushed()
	b.setFlushed(committed)
	return n
}

// Rewind resets both positions to start when nothing is left unflushed.
// Caller must own the buffer.
func (b *Buffer) Rewind() bool {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	if b.UnflushedSize() != 0 {
		return false
	}
	b.flushed.Store(0)
	b.committed.Store(0)
	return true
}

// Reinitialize resets positions, clears retired and sets the excluded flag
// as requested.
func (b *Buffer) Reinitialize(excluded bool) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.flushed.Store(0)
	b.committed.Store(0)
	b.ClearRetired()
	if excluded {
		b.SetExcluded()
	} else {
		b.ClearExcluded()
	}
}

// DrainLocked hands [flushed, committed) to fn and advances flushed by
// the number of bytes fn accepted. Caller holds the flush lock.
func (b *Buffer) DrainLocked(fn func(p []byte) (int, error)) (int, error) {
	if b.Dead() {
		return 0, nil
	}
	flushed := b.Flushed()
	committed := b.Committed()
	if committed == flushed {
		return 0, nil
	}
	n, err := fn(b.region[flushed:committed])
	if n > committed-flushed {
		n = committed - flushed
	}
	if n > 0 {
		b.setFlushed(flushed + n)
	}
	return n, err
}

// Drain is DrainLocked under the flush lock.
func (b *Buffer) Drain(fn func(p []byte) (int, error)) (int, error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	return b.DrainLocked(fn)
}

// Bytes returns a copy of [flushed, committed), for inspection.
func (b *Buffer) Bytes() []byte {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	return append([]byte(nil), b.region[b.Flushed():b.Committed()]...)
}

// free returns the region to the system once; false if already freed.
func (b *Buffer) free() bool {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	if b.Dead() {
		return false
	}
	b.setFlag(flagDead)
	b.flushed.Store(0)
	b.committed.Store(0)
	if err := freeRegion(b.region, b.native); err != nil {
		log.Warningf("release region of %s: %s", units.BytesSize(float64(len(b.region))), err)
	}
	return true
}
