// File: pool/mspace_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool_test

import (
	"sync"
	"testing"

	"github.com/momentics/isorec/pool"
)

type fullRecorder struct {
	mu   sync.Mutex
	full []*pool.Buffer
}

func (r *fullRecorder) RegisterFull(b *pool.Buffer, t pool.ThreadID) {
	r.mu.Lock()
	r.full = append(r.full, b)
	r.mu.Unlock()
}

func TestMemorySpace_ThreadLocalGetFallsBackToAllocation(t *testing.T) {
	s := newSpace(t, pool.Config{
		Name:           "local",
		MinElementSize: 1024,
		CacheCount:     4,
		Retrieval:      pool.ThreadLocalRetrieval{},
	})
	if err := s.Initialize(true); err != nil {
		t.Fatal(err)
	}
	if s.FreeCount() != 4 {
		t.Fatalf("FreeCount=%d, want 4", s.FreeCount())
	}
	seen := make(map[*pool.Buffer]bool)
	for i := 0; i < 4; i++ {
		b := s.Get(512, pool.ThreadID(i+1))
		if b == nil {
			t.Fatalf("Get #%d returned nil", i)
		}
		if seen[b] {
			t.Fatalf("Get #%d returned a buffer already handed out", i)
		}
		if !b.AcquiredBy(pool.ThreadID(i + 1)) {
			t.Fatalf("buffer #%d not acquired by caller", i)
		}
		seen[b] = true
	}
	if s.FreeCount() != 0 {
		t.Fatalf("free pool not exhausted: %d", s.FreeCount())
	}
	b := s.Get(512, 99)
	if b == nil {
		t.Fatal("Get with exhausted free pool did not allocate")
	}
	if seen[b] || s.Allocated() != 5 || s.LiveCount(false) != 5 {
		t.Errorf("fallback allocation: allocated=%d live=%d", s.Allocated(), s.LiveCount(false))
	}
}

func TestMemorySpace_ReleaseLiveRespectsCache(t *testing.T) {
	s := newSpace(t, pool.Config{Name: "local", MinElementSize: 64, CacheCount: 1, Retrieval: pool.ThreadLocalRetrieval{}})
	a := s.Allocate(64, 1, false)
	b := s.Allocate(64, 2, false)
	if !s.ReleaseLive(a, 1) || !s.ReleaseLive(b, 2) {
		t.Fatal("ReleaseLive by owner failed")
	}
	if s.FreeCount() != 1 || s.Allocated() != 1 || s.LiveCount(false) != 0 {
		t.Errorf("free=%d allocated=%d live=%d, want 1/1/0", s.FreeCount(), s.Allocated(), s.LiveCount(false))
	}
	c := s.Allocate(64, 3, false)
	if s.ReleaseLive(c, 4) {
		t.Error("ReleaseLive by non-owner succeeded")
	}
}

func TestMemorySpace_LimitBoundsAllocation(t *testing.T) {
	s := newSpace(t, pool.Config{Name: "global", MinElementSize: 64, Limit: 2})
	if s.Allocate(64, 1, false) == nil || s.Allocate(64, 2, false) == nil {
		t.Fatal("allocation under limit failed")
	}
	if s.Allocate(64, 3, false) != nil {
		t.Fatal("allocation beyond limit succeeded")
	}
	if pool.GetLive(64, s, 3) != nil {
		t.Fatal("GetLive beyond limit succeeded")
	}
}

func TestMemorySpace_GenericRetiresFullBuffers(t *testing.T) {
	client := &fullRecorder{}
	s, err := pool.NewMemorySpace(pool.Config{Name: "global", MinElementSize: 100, CacheCount: 2}, client)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Initialize(false); err != nil {
		t.Fatal(err)
	}
	first := s.AcquireLive(10, 1, false)
	if first == nil {
		t.Fatal("AcquireLive returned nil")
	}
	first.Write(make([]byte, 95))
	first.Release()

	second := pool.AcquireLiveWithRetry(50, s, 2, 2)
	if second == nil || second == first {
		t.Fatal("expected the other live buffer")
	}
	if len(client.full) != 1 || client.full[0] != first || !first.Retired() {
		t.Fatalf("full buffer not retired to client: %v", client.full)
	}
	if first.Acquired() {
		t.Error("retired buffer left acquired")
	}
	if s.LiveCount(false) != 1 {
		t.Errorf("live=%d, want 1", s.LiveCount(false))
	}
	s.Reclaim(first)
	if first.Retired() || s.FreeCount() != 1 {
		t.Errorf("Reclaim: retired=%v free=%d", first.Retired(), s.FreeCount())
	}
}

func TestMemorySpace_TransientLease(t *testing.T) {
	s := newSpace(t, pool.Config{Name: "local", MinElementSize: 64, CacheCount: 4, Retrieval: pool.ThreadLocalRetrieval{}})
	lease := pool.AcquireTransientLeaseToLive(4096, s, 7, false)
	if lease == nil {
		t.Fatal("lease allocation failed")
	}
	if !lease.Transient() || !lease.Leased() || lease.Size() != 4096 || !lease.AcquiredBy(7) {
		t.Fatalf("unexpected lease state: transient=%v leased=%v size=%d", lease.Transient(), lease.Leased(), lease.Size())
	}
	s.ReleaseLive(lease, 7)
	if !lease.Dead() || s.Allocated() != 0 || s.FreeCount() != 0 {
		t.Errorf("transient lease was recycled: dead=%v allocated=%d free=%d", lease.Dead(), s.Allocated(), s.FreeCount())
	}
}

func TestMemorySpace_EpochGenerations(t *testing.T) {
	epoch := &pool.Epoch{}
	s := newSpace(t, pool.Config{Name: "local", MinElementSize: 64, Epochs: true, Epoch: epoch})
	a := s.Allocate(64, 1, false)
	epoch.Shift()
	b := s.Allocate(64, 2, false)
	if s.LiveCount(false) != 1 || s.LiveCount(true) != 1 {
		t.Fatalf("live current=%d previous=%d, want 1/1", s.LiveCount(false), s.LiveCount(true))
	}
	if a.Epoch() == b.Epoch() {
		t.Error("buffers from different epochs share a tag")
	}
	var previous []*pool.Buffer
	s.IterateLive(pool.OperationFunc(func(x *pool.Buffer) bool {
		previous = append(previous, x)
		return true
	}), true)
	if len(previous) != 1 || previous[0] != a {
		t.Errorf("previous generation = %v, want [a]", previous)
	}
	epoch.Shift()
	if s.LiveCount(true) != 1 {
		t.Error("generations did not swap on shift")
	}
}

func TestNewMemorySpace_InvalidConfig(t *testing.T) {
	cases := []pool.Config{
		{Name: "zero", MinElementSize: 0},
		{Name: "negative", MinElementSize: 8, CacheCount: -1},
		{Name: "over", MinElementSize: 8, CacheCount: 4, Limit: 2},
	}
	for _, cfg := range cases {
		if _, err := pool.NewMemorySpace(cfg, nil); err == nil {
			t.Errorf("%s: expected error", cfg.Name)
		}
	}
}
