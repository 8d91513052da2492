// File: storage/write.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Drain side: the full pool is written first, then the live thread-local
// and global buffers. Retired thread-local buffers are scavenged on the
// way when Storage Control asks for it.

package storage

import (
	"errors"
	"fmt"

	"github.com/momentics/isorec/pool"
)

type chunkWrite struct {
	e       *Engine
	epoch   uint32
	written int
	errs    []error
}

func (w *chunkWrite) drainLocked(b *pool.Buffer) {
	n, err := b.DrainLocked(func(p []byte) (int, error) {
		return w.e.sink.WriteChunk(w.epoch, p)
	})
	w.written += n
	w.e.stats.written.Add(uint64(n))
	if err != nil {
		w.errs = append(w.errs, fmt.Errorf("storage: write %s buffer: %w", b.Space().Name(), err))
	}
}

func (w *chunkWrite) err() error { return errors.Join(w.errs...) }

// Write drains the storage concurrently with producers. With epochs
// enabled the epoch is shifted first and chunks are tagged with the
// epoch being closed. Returns the number of bytes handed to the sink.
// A closed engine writes nothing.
func (e *Engine) Write() (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed.Load() {
		return 0, nil
	}
	return e.write(true)
}

// WriteAtSafepoint drains without taking per-buffer flush locks. It must
// run inside Engine.AtSafepoint.
func (e *Engine) WriteAtSafepoint() (int, error) {
	if !e.safepoint.Active() {
		panic("storage: WriteAtSafepoint outside a safepoint")
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed.Load() {
		return 0, nil
	}
	return e.write(false)
}

func (e *Engine) write(concurrent bool) (int, error) {
	w := &chunkWrite{e: e, epoch: e.epoch.Counter()}
	if e.cfg.Epochs {
		w.epoch = e.epoch.Shift() - 1
	}
	e.writeFull(w)
	if e.cfg.Epochs {
		e.local.IterateLive(e.localOp(w.drainLocked, concurrent, true), true)
	}
	e.local.IterateLive(e.localOp(w.drainLocked, concurrent, e.control.ShouldScavenge()), false)
	e.global.IterateLive(e.globalOp(w.drainLocked, concurrent), false)
	if w.written > 0 {
		log.Debugf("epoch %d: wrote %d bytes", w.epoch, w.written)
	}
	return w.written, w.err()
}

func (e *Engine) writeFull(w *chunkWrite) {
	for _, b := range e.takeFull() {
		b.LockFlush()
		w.drainLocked(b)
		lost := b.DiscardLocked()
		b.UnlockFlush()
		e.recordLoss(lost, "sink rejected full buffer", writerThread)
		b.Space().Reclaim(b)
	}
}

func (e *Engine) takeFull() []*pool.Buffer {
	e.bufferMu.Lock()
	defer e.bufferMu.Unlock()
	batch := make([]*pool.Buffer, 0, e.full.Length())
	for e.full.Length() > 0 {
		batch = append(batch, e.full.Remove().(*pool.Buffer))
		e.control.DecrementFull()
	}
	return batch
}

// localOp writes (or discards, for excluded producers) a thread-local
// buffer and optionally scavenges it if its producer exited.
func (e *Engine) localOp(process func(*pool.Buffer), concurrent, scavenge bool) pool.Operation {
	keep := pool.OperationFunc(func(b *pool.Buffer) bool {
		process(b)
		return true
	})
	drop := pool.OperationFunc(func(b *pool.Buffer) bool {
		b.DiscardLocked()
		return true
	})
	op := pool.And(pool.NotExcluded(keep), pool.Excluded(drop))
	if concurrent {
		op = pool.Mutexed(op)
	}
	if scavenge {
		op = pool.And(op, pool.RetiredOnly(pool.OperationFunc(e.scavenge)))
	}
	return op
}

func (e *Engine) scavenge(b *pool.Buffer) bool {
	if b.Space().ReleaseLive(b, writerThread) {
		e.control.DecrementDead()
	}
	return true
}

// globalOp processes a global buffer and rewinds it when it was drained
// completely and no producer is promoting into it.
func (e *Engine) globalOp(process func(*pool.Buffer), concurrent bool) pool.Operation {
	var op pool.Operation = pool.OperationFunc(func(b *pool.Buffer) bool {
		process(b)
		return true
	})
	if concurrent {
		op = pool.Mutexed(op)
	}
	return pool.And(op, pool.OperationFunc(func(b *pool.Buffer) bool {
		if b.TryAcquire(writerThread) {
			b.Rewind()
			b.Release()
		}
		return true
	}))
}

// Clear discards all buffered data without writing it.
func (e *Engine) Clear() {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	for _, b := range e.takeFull() {
		b.Discard()
		b.Space().Reclaim(b)
	}
	discard := func(b *pool.Buffer) { b.DiscardLocked() }
	if e.cfg.Epochs {
		e.local.IterateLive(e.localOp(discard, true, true), true)
	}
	e.local.IterateLive(e.localOp(discard, true, e.control.ShouldScavenge()), false)
	e.global.IterateLive(e.globalOp(discard, true), false)
	log.Infof("storage cleared")
}
