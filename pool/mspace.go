// File: pool/mspace.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MemorySpace owns a set of Buffers of a minimum element size and moves
// them between a lock-free free pool and a mutex-guarded live pool.

package pool

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/isorec/core/concurrency"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("isorec.pool")

// Client is notified when a retrieval strategy retires a live buffer
// because it is too full to serve a request.
type Client interface {
	RegisterFull(b *Buffer, t ThreadID)
}

// Config describes a MemorySpace.
type Config struct {
	Name           string
	MinElementSize int
	// CacheCount buffers are preallocated and at most CacheCount are kept
	// in the free pool on release.
	CacheCount int
	// Limit bounds the number of allocated buffers, 0 means unbounded.
	Limit     int
	Epochs    bool
	Retrieval Retrieval
	// Epoch is shared between spaces; a private one is created if nil.
	Epoch *Epoch
}

// MemorySpace is safe for concurrent use.
type MemorySpace struct {
	cfg       Config
	client    Client
	retrieval Retrieval
	epoch     *Epoch
	free      *concurrency.LockFreeQueue[*Buffer]
	live      [2]liveList
	allocated atomic.Int64
}

type liveList struct {
	mu    sync.Mutex
	order list.List
	index map[*Buffer]*list.Element
}

func (l *liveList) add(b *Buffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index == nil {
		l.index = make(map[*Buffer]*list.Element)
	}
	if _, ok := l.index[b]; ok {
		return
	}
	l.index[b] = l.order.PushBack(b)
}

func (l *liveList) remove(b *Buffer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.index[b]
	if !ok {
		return false
	}
	l.order.Remove(e)
	delete(l.index, b)
	return true
}

func (l *liveList) snapshot() []*Buffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Buffer, 0, l.order.Len())
	for e := l.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Buffer))
	}
	return out
}

func (l *liveList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// NewMemorySpace validates cfg and creates an empty space. Call Initialize
// to preallocate the cache.
func NewMemorySpace(cfg Config, client Client) (*MemorySpace, error) {
	if cfg.MinElementSize <= 0 {
		return nil, fmt.Errorf("pool: %s: minimum element size must be positive", cfg.Name)
	}
	if cfg.CacheCount < 0 || cfg.Limit < 0 {
		return nil, fmt.Errorf("pool: %s: negative cache count or limit", cfg.Name)
	}
	if cfg.Limit > 0 && cfg.CacheCount > cfg.Limit {
		return nil, fmt.Errorf("pool: %s: cache count %d exceeds limit %d", cfg.Name, cfg.CacheCount, cfg.Limit)
	}
	if cfg.Retrieval == nil {
		cfg.Retrieval = GenericRetrieval{}
	}
	if cfg.Epoch == nil {
		cfg.Epoch = &Epoch{}
	}
	capacity := cfg.CacheCount
	if capacity < 2 {
		capacity = 2
	}
	return &MemorySpace{
		cfg:       cfg,
		client:    client,
		retrieval: cfg.Retrieval,
		epoch:     cfg.Epoch,
		free:      concurrency.NewLockFreeQueue[*Buffer](capacity),
	}, nil
}

// Initialize preallocates CacheCount buffers into the free pool, or into
// the live pool when populateFree is false.
func (s *MemorySpace) Initialize(populateFree bool) error {
	for i := 0; i < s.cfg.CacheCount; i++ {
		b, err := s.newBuffer(s.cfg.MinElementSize)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("pool: %s: limit reached during initialization", s.cfg.Name)
		}
		if populateFree {
			if !s.free.Enqueue(b) {
				s.deallocate(b)
			}
			continue
		}
		s.addLive(b, false)
	}
	log.Debugf("%s: initialized %d buffers of %d bytes", s.cfg.Name, s.cfg.CacheCount, s.cfg.MinElementSize)
	return nil
}

func (s *MemorySpace) Name() string { return s.cfg.Name }
func (s *MemorySpace) MinElementSize() int { return s.cfg.MinElementSize }
func (s *MemorySpace) Epoch() *Epoch { return s.epoch }
func (s *MemorySpace) Allocated() int { return int(s.allocated.Load()) }
func (s *MemorySpace) FreeCount() int { return s.free.Len() }
func (s *MemorySpace) Retrieval() Retrieval { return s.retrieval }
func (s *MemorySpace) EpochsEnabled() bool { return s.cfg.Epochs }

// LiveCount returns the size of the current (or previous) live generation.
func (s *MemorySpace) LiveCount(previousEpoch bool) int {
	return s.liveList(previousEpoch).len()
}

func (s *MemorySpace) liveList(previousEpoch bool) *liveList {
	if !s.cfg.Epochs {
		return &s.live[0]
	}
	if previousEpoch {
		return &s.live[s.epoch.Previous()]
	}
	return &s.live[s.epoch.Current()]
}

func (s *MemorySpace) addLive(b *Buffer, previousEpoch bool) {
	b.epoch.Store(s.epoch.Counter())
	s.liveList(previousEpoch).add(b)
}

func (s *MemorySpace) removeLive(b *Buffer) bool {
	if s.live[0].remove(b) {
		return true
	}
	return s.cfg.Epochs && s.live[1].remove(b)
}

// newBuffer allocates a buffer of at least size bytes, or returns nil when
// the space limit is reached.
func (s *MemorySpace) newBuffer(size int) (*Buffer, error) {
	if size < s.cfg.MinElementSize {
		size = s.cfg.MinElementSize
	}
	for {
		n := s.allocated.Load()
		if s.cfg.Limit > 0 && n >= int64(s.cfg.Limit) {
			return nil, nil
		}
		if s.allocated.CompareAndSwap(n, n+1) {
			break
		}
	}
	b, err := newBuffer(size, s)
	if err != nil {
		s.allocated.Add(-1)
		return nil, fmt.Errorf("pool: %s: allocate %d bytes: %w", s.cfg.Name, size, err)
	}
	return b, nil
}

// Allocate creates a fresh buffer of at least size bytes in the live pool,
// acquired by t. Returns nil when the limit is reached or allocation fails.
func (s *MemorySpace) Allocate(size int, t ThreadID, previousEpoch bool) *Buffer {
	b, err := s.newBuffer(size)
	if err != nil {
		log.Warningf("%s", err)
		return nil
	}
	if b == nil {
		return nil
	}
	b.Acquire(t)
	s.addLive(b, previousEpoch)
	return b
}

// AcquireFree takes a buffer from the free pool via the retrieval strategy
// and moves it to the live pool.
func (s *MemorySpace) AcquireFree(size int, t ThreadID, previousEpoch bool) *Buffer {
	it := &freeIterator{space: s}
	b := s.retrieval.Retrieve(s, size, it, t)
	it.close(b)
	if b != nil {
		s.addLive(b, previousEpoch)
	}
	return b
}

// AcquireLive retrieves a live buffer with at least size free bytes.
func (s *MemorySpace) AcquireLive(size int, t ThreadID, previousEpoch bool) *Buffer {
	it := &sliceIterator{items: s.liveList(previousEpoch).snapshot()}
	return s.retrieval.Retrieve(s, size, it, t)
}

// Get finds a buffer for t the way the space's retrieval strategy prefers
// and falls back to a fresh allocation.
func (s *MemorySpace) Get(size int, t ThreadID) *Buffer {
	var b *Buffer
	if s.retrieval.Pool() == PoolFree {
		b = s.AcquireFree(size, t, false)
	} else {
		b = s.AcquireLive(size, t, false)
		if b == nil {
			b = s.AcquireFree(size, t, false)
		}
	}
	if b == nil {
		b = s.Allocate(size, t, false)
	}
	return b
}

// RetireLive marks b retired, removes it from the live pool, releases it
// and hands it to the client as full. The caller must own b.
func (s *MemorySpace) RetireLive(b *Buffer, t ThreadID) {
	assert(b.AcquiredBy(t), "retire of buffer not owned by caller")
	b.SetRetired()
	s.removeLive(b)
	b.Release()
	if s.client != nil {
		s.client.RegisterFull(b, t)
		return
	}
	log.Warningf("%s: retired buffer without client, reclaiming", s.cfg.Name)
	s.Reclaim(b)
}

// ReleaseLive removes b from the live pool and recycles it. The caller
// must own b or b must be unowned; false is returned if another thread
// holds it.
func (s *MemorySpace) ReleaseLive(b *Buffer, t ThreadID) bool {
	if !b.TryAcquire(t) {
		return false
	}
	s.removeLive(b)
	s.recycle(b)
	return true
}

// Reclaim returns a drained buffer that sits in no pool (typically taken
// from the full pool) to the free pool, or deallocates it.
func (s *MemorySpace) Reclaim(b *Buffer) {
	b.Acquire(reclaimer)
	s.recycle(b)
}

// reclaimer owns buffers transiently while they move between pools.
const reclaimer ThreadID = -2

// recycle expects b to be owned by the caller and in no pool.
func (s *MemorySpace) recycle(b *Buffer) {
	if b.Transient() || b.Size() != s.cfg.MinElementSize || s.free.Len() >= s.cfg.CacheCount {
		s.deallocate(b)
		return
	}
	b.Reinitialize(false)
	b.Release()
	if !s.free.Enqueue(b) {
		b.Acquire(reclaimer)
		s.deallocate(b)
	}
}

func (s *MemorySpace) deallocate(b *Buffer) {
	if b.free() {
		s.allocated.Add(-1)
	}
}

// IterateLive applies op to a snapshot of the live pool until op returns
// false.
func (s *MemorySpace) IterateLive(op Operation, previousEpoch bool) {
	for _, b := range s.liveList(previousEpoch).snapshot() {
		if !op.Process(b) {
			return
		}
	}
}

// IterateFree applies op to every buffer in the free pool.
func (s *MemorySpace) IterateFree(op Operation) {
	n := s.free.Len()
	for i := 0; i < n; i++ {
		b, ok := s.free.Dequeue()
		if !ok {
			return
		}
		cont := op.Process(b)
		if !s.free.Enqueue(b) {
			b.Acquire(reclaimer)
			s.deallocate(b)
		}
		if !cont {
			return
		}
	}
}

// Close deallocates every pooled buffer. Buffers in the client's full pool
// are the client's responsibility.
func (s *MemorySpace) Close() {
	for {
		b, ok := s.free.Dequeue()
		if !ok {
			break
		}
		b.Acquire(reclaimer)
		s.deallocate(b)
	}
	for i := range s.live {
		for _, b := range s.live[i].snapshot() {
			s.live[i].remove(b)
			s.deallocate(b)
		}
	}
}
