// Package threadlocal
// Author: momentics <momentics@gmail.com>
//
// Goroutine-local values for producers. A value bound with Local.With is
// visible to the calling goroutine and to goroutines it starts with Go.

package threadlocal

import (
	"sync/atomic"

	"github.com/jtolds/gls"
)

var ids atomic.Int64

// NextID hands out producer identities starting at 1.
func NextID() int64 { return ids.Add(1) }

// Local is one goroutine-local slot.
type Local[T any] struct {
	mgr *gls.ContextManager
	key *struct{ name string }
}

func New[T any](name string) *Local[T] {
	return &Local[T]{mgr: gls.NewContextManager(), key: &struct{ name string }{name}}
}

// With runs fn with v bound to the slot.
func (l *Local[T]) With(v T, fn func()) {
	l.mgr.SetValues(gls.Values{l.key: v}, fn)
}

// Get returns the value bound for the current goroutine.
func (l *Local[T]) Get() (T, bool) {
	var zero T
	v, ok := l.mgr.GetValue(l.key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Go starts fn on a new goroutine that inherits every bound slot.
func Go(fn func()) { gls.Go(fn) }
