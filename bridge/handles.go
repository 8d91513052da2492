// File: bridge/handles.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const handleShards = 16

// HandleTable issues handles for local objects so the other side can
// refer to them. Safe for concurrent use.
type HandleTable struct {
	name   string
	next   atomic.Int64
	count  atomic.Int64
	shards [handleShards]handleShard
}

type handleShard struct {
	mu      sync.RWMutex
	objects map[Handle]any
}

func NewHandleTable(name string) *HandleTable {
	t := &HandleTable{name: name}
	for i := range t.shards {
		t.shards[i].objects = make(map[Handle]any)
	}
	return t
}

func (t *HandleTable) shard(h Handle) *handleShard {
	return &t.shards[uint64(h)%handleShards]
}

// Create registers v and returns its handle. A nil v yields Null.
func (t *HandleTable) Create(v any) Handle {
	if v == nil {
		return Null
	}
	h := Handle(t.next.Add(1))
	s := t.shard(h)
	s.mu.Lock()
	s.objects[h] = v
	s.mu.Unlock()
	t.count.Add(1)
	return h
}

// Resolve returns the object registered under h.
func (t *HandleTable) Resolve(h Handle) (any, error) {
	if h == Null {
		return nil, fmt.Errorf("%w: null handle in %s", ErrInvalidHandle, t.name)
	}
	s := t.shard(h)
	s.mu.RLock()
	v, ok := s.objects[h]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s not in %s", ErrInvalidHandle, h, t.name)
	}
	return v, nil
}

// Release drops h. Returns false if h was not registered.
func (t *HandleTable) Release(h Handle) bool {
	s := t.shard(h)
	s.mu.Lock()
	_, ok := s.objects[h]
	delete(s.objects, h)
	s.mu.Unlock()
	if ok {
		t.count.Add(-1)
	}
	return ok
}

// Len returns the number of live handles.
func (t *HandleTable) Len() int { return int(t.count.Load()) }

func (t *HandleTable) Name() string { return t.name }

// ResolveAs resolves h and checks the object type.
func ResolveAs[T any](t *HandleTable, h Handle) (T, error) {
	var zero T
	v, err := t.Resolve(h)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s in %s holds %T, want %T", ErrInvalidHandle, h, t.name, v, zero)
	}
	return out, nil
}
