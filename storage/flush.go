// File: storage/flush.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package storage

import (
	"fmt"

	"github.com/momentics/isorec/pool"
)

// Flush makes room for requested bytes in b, owned by t. used bytes past
// committed belong to a record in progress and are carried over. Unflushed
// data is promoted into a global buffer. Returns the buffer the producer
// continues with: b itself, or a transient lease when used+requested can
// never fit b. When no lease can be had the promotion still happens and b
// is returned without enough room. Flushing a lease replaces it and may
// return nil.
func (e *Engine) Flush(b *pool.Buffer, used, requested int, t pool.ThreadID) *pool.Buffer {
	if !b.AcquiredBy(t) {
		panic(fmt.Sprintf("storage: flush of buffer not owned by thread %d", t))
	}
	need := used + requested
	if b.Leased() {
		return e.replaceLease(b, used, need, t)
	}
	if need > b.Size() {
		return e.flushLarge(b, used, need, t)
	}
	oldCommitted := b.Committed()
	if b.UnflushedSize() > 0 {
		e.promote(b, t)
	} else {
		b.Rewind()
	}
	if used > 0 && b.Committed() != oldCommitted {
		b.MoveSpeculative(oldCommitted, used)
	}
	return b
}

func (e *Engine) flushLarge(b *pool.Buffer, used, need int, t pool.ThreadID) *pool.Buffer {
	var lease *pool.Buffer
	if e.cfg.LargeRecordLease {
		lease = pool.AcquireTransientLeaseToLive(need, e.local, t, false)
	}
	if lease != nil && used > 0 {
		b.TransferTo(lease, used)
	}
	if b.UnflushedSize() > 0 {
		e.promote(b, t)
	} else {
		b.Rewind()
	}
	if lease == nil {
		log.Warningf("thread %d: record of %d bytes exceeds thread buffer of %d bytes, no lease", t, need, b.Size())
		return b
	}
	log.Debugf("thread %d leased %d bytes for a large record", t, need)
	return lease
}

func (e *Engine) replaceLease(old *pool.Buffer, used, need int, t pool.ThreadID) *pool.Buffer {
	size := need
	if size < e.cfg.ThreadBufferSize {
		size = e.cfg.ThreadBufferSize
	}
	next := pool.AcquireTransientLeaseToLive(size, e.local, t, false)
	if next != nil && used > 0 {
		old.TransferTo(next, used)
	}
	e.ReleaseLease(old, t)
	if next == nil {
		log.Warningf("thread %d: could not replace lease of %d bytes", t, size)
	}
	return next
}

// promote moves the unflushed bytes of b into a global buffer. On failure
// the bytes are discarded and recorded as lost; the producer is never
// blocked.
func (e *Engine) promote(b *pool.Buffer, t pool.ThreadID) bool {
	size := b.UnflushedSize()
	target := e.acquirePromotionBuffer(size, t)
	if target == nil {
		e.recordLoss(b.Discard(), "no promotion buffer available", t)
		b.Rewind()
		return false
	}
	available, n, err := promoteTo(b, target, size)
	if err != nil {
		if target.AcquiredBy(t) {
			target.Release()
		}
		e.recordLoss(b.Discard(), err.Error(), t)
		b.Rewind()
		return false
	}
	e.stats.promoted.Add(uint64(n))
	// A concurrent write may have drained part of size already.
	e.recordLoss(available-n, "promotion target too small", t)
	return true
}

func promoteTo(b, target *pool.Buffer, size int) (available, n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("promotion failed: %v", r)
		}
	}()
	available, n = b.PromoteTo(target, size)
	return available, n, nil
}

// acquirePromotionBuffer finds a global buffer with size free bytes,
// discarding the oldest full buffer between attempts when Storage Control
// allows it.
func (e *Engine) acquirePromotionBuffer(size int, t pool.ThreadID) *pool.Buffer {
	if size > e.global.MinElementSize() {
		return nil
	}
	for discards := 0; ; discards++ {
		if b := pool.AcquireLiveWithRetry(size, e.global, e.cfg.PromotionRetries, t); b != nil {
			return b
		}
		if b := pool.GetLive(size, e.global, t); b != nil {
			return b
		}
		if discards >= e.cfg.PromotionRetries || !e.control.ShouldDiscard() || !e.DiscardOldest(t) {
			return nil
		}
	}
}
