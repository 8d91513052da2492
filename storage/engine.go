// File: storage/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine composes the thread-local and global memory spaces, the full
// pool and Storage Control.

package storage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/docker/go-units"
	"github.com/eapache/queue"
	"github.com/momentics/isorec/api"
	"github.com/momentics/isorec/pool"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("isorec.storage")

// writerThread is the identity the drain side uses when it needs to own
// a buffer briefly.
const writerThread pool.ThreadID = -3

type counters struct {
	promoted    atomic.Uint64
	written     atomic.Uint64
	lostBytes   atomic.Uint64
	lostBuffers atomic.Uint64
	dropped     atomic.Uint64
}

// Engine is safe for concurrent use by any number of producers and one
// drain side at a time.
type Engine struct {
	cfg       Config
	epoch     *pool.Epoch
	local     *pool.MemorySpace
	global    *pool.MemorySpace
	control   *Control
	sink      api.ChunkWriter
	post      api.PostBox
	safepoint Safepoint
	stats     counters

	bufferMu sync.Mutex // guards full and Control.fullCount
	full     *queue.Queue

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewEngine builds both memory spaces and preallocates their caches.
// A nil post box discards notifications.
func NewEngine(cfg Config, sink api.ChunkWriter, post api.PostBox) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "storage: nil sink")
	}
	if post == nil {
		post = api.PostFunc(func(api.Message) {})
	}
	e := &Engine{
		cfg:     cfg,
		epoch:   &pool.Epoch{},
		control: NewControl(cfg.discardThreshold(), cfg.ScavengeThreshold, cfg.ToDisk),
		sink:    sink,
		post:    post,
		full:    queue.New(),
	}
	var err error
	e.local, err = pool.NewMemorySpace(pool.Config{
		Name:           "thread-local",
		MinElementSize: cfg.ThreadBufferSize,
		CacheCount:     cfg.ThreadBufferCache,
		Epochs:         cfg.Epochs,
		Epoch:          e.epoch,
		Retrieval:      pool.ThreadLocalRetrieval{},
	}, e)
	if err != nil {
		return nil, err
	}
	e.global, err = pool.NewMemorySpace(pool.Config{
		Name:           "global",
		MinElementSize: cfg.GlobalBufferSize,
		CacheCount:     cfg.GlobalBufferCount,
		Limit:          cfg.GlobalBufferCount,
		Epoch:          e.epoch,
		Retrieval:      pool.GenericRetrieval{},
	}, e)
	if err != nil {
		return nil, err
	}
	if err := e.local.Initialize(true); err != nil {
		return nil, err
	}
	if err := e.global.Initialize(false); err != nil {
		e.local.Close()
		return nil, err
	}
	log.Infof("engine ready: %d global buffers of %s, thread buffers of %s",
		cfg.GlobalBufferCount, units.BytesSize(float64(cfg.GlobalBufferSize)), units.BytesSize(float64(cfg.ThreadBufferSize)))
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }
func (e *Engine) Control() *Control { return e.control }
func (e *Engine) Epoch() *pool.Epoch { return e.epoch }
func (e *Engine) Local() *pool.MemorySpace { return e.local }
func (e *Engine) Global() *pool.MemorySpace { return e.global }
func (e *Engine) Safepoint() *Safepoint { return &e.safepoint }

// AcquireThreadLocal hands t a thread-local buffer from the free pool or a
// fresh allocation. Returns nil only when allocation fails.
func (e *Engine) AcquireThreadLocal(t pool.ThreadID) *pool.Buffer {
	return e.local.Get(e.cfg.ThreadBufferSize, t)
}

// RegisterFull appends a retired, unowned buffer to the full pool and
// notifies the writer when Storage Control asks for it.
func (e *Engine) RegisterFull(b *pool.Buffer, t pool.ThreadID) {
	e.bufferMu.Lock()
	e.full.Add(b)
	notify := e.control.IncrementFull()
	e.bufferMu.Unlock()
	log.Debugf("thread %d retired %s buffer with %d unflushed bytes", t, b.Space().Name(), b.UnflushedSize())
	if notify {
		e.post.Post(api.MsgFullBuffer)
	}
}

// DiscardOldest drops the content of the oldest full buffer and returns
// the buffer to its space. Returns false if the full pool is empty.
func (e *Engine) DiscardOldest(t pool.ThreadID) bool {
	e.bufferMu.Lock()
	if e.full.Length() == 0 {
		e.bufferMu.Unlock()
		return false
	}
	b := e.full.Remove().(*pool.Buffer)
	e.control.DecrementFull()
	e.bufferMu.Unlock()

	lost := b.Discard()
	e.stats.lostBuffers.Add(1)
	e.stats.lostBytes.Add(uint64(lost))
	log.Warningf("thread %d discarded oldest full buffer, %s lost", t, units.BytesSize(float64(lost)))
	b.Space().Reclaim(b)
	return true
}

// Release is called when producer t exits. Remaining data is promoted, the
// buffer is retired for the scavenger and the writer is woken once enough
// buffers are dead.
func (e *Engine) Release(b *pool.Buffer, t pool.ThreadID) {
	if b.Leased() {
		e.ReleaseLease(b, t)
		return
	}
	if b.UnflushedSize() > 0 {
		e.promote(b, t)
	} else {
		b.Reinitialize(b.Excluded())
	}
	b.SetRetired()
	e.control.IncrementDead()
	b.Release()
	if e.control.ShouldScavenge() {
		e.post.Post(api.MsgDeadBuffer)
	}
}

// ReleaseLease retires a leased buffer straight into the full pool, or
// frees it when it holds nothing.
func (e *Engine) ReleaseLease(b *pool.Buffer, t pool.ThreadID) {
	if b.UnflushedSize() == 0 {
		b.Space().ReleaseLive(b, t)
		return
	}
	b.Space().RetireLive(b, t)
}

// Stats reports engine counters.
func (e *Engine) Stats() api.StorageStats {
	e.bufferMu.Lock()
	full := e.full.Length()
	e.bufferMu.Unlock()
	return api.StorageStats{
		FullBuffers:   full,
		DeadBuffers:   e.control.DeadCount(),
		PromotedBytes: e.stats.promoted.Load(),
		WrittenBytes:  e.stats.written.Load(),
		LostBytes:     e.stats.lostBytes.Load(),
		LostBuffers:   e.stats.lostBuffers.Load(),
		DroppedWrites: e.stats.dropped.Load(),
	}
}

func (e *Engine) recordLoss(n int, reason string, t pool.ThreadID) {
	if n <= 0 {
		return
	}
	e.stats.lostBytes.Add(uint64(n))
	log.Warningf("thread %d lost %s: %s", t, units.BytesSize(float64(n)), reason)
}

// Close drains everything once more, releases all buffers and closes the
// sink. It waits for producers inside a Writer operation; Writers used
// afterwards drop their records.
func (e *Engine) Close() error {
	e.safepoint.mu.Lock()
	defer e.safepoint.mu.Unlock()
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_, werr := e.write(true)
	e.bufferMu.Lock()
	for e.full.Length() > 0 {
		b := e.full.Remove().(*pool.Buffer)
		e.control.DecrementFull()
		b.Space().Reclaim(b)
	}
	e.bufferMu.Unlock()
	e.local.Close()
	e.global.Close()
	if err := e.sink.Close(); err != nil {
		return errors.Join(werr, fmt.Errorf("storage: close sink: %w", err))
	}
	return werr
}

// Closed reports whether Close has started.
func (e *Engine) Closed() bool { return e.closed.Load() }
