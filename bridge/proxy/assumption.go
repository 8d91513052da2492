// File: bridge/proxy/assumption.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proxy

import (
	"sync/atomic"

	"github.com/momentics/isorec/bridge"
)

// AssumptionDependency is an optimistic assumption held by the host.
type AssumptionDependency interface {
	Handle() bridge.Handle
	RegisterDependency() (*DependencyCallback, error)
}

type AssumptionDependencyProxy struct {
	base
}

var _ AssumptionDependency = (*AssumptionDependencyProxy)(nil)

func NewAssumptionDependency(table *bridge.Table, h bridge.Handle) *AssumptionDependencyProxy {
	return &AssumptionDependencyProxy{base{table: table, handle: h}}
}

// RegisterDependency asks the host for a transient callback handle that
// is consumed once the dependent code is installed or abandoned.
func (p *AssumptionDependencyProxy) RegisterDependency() (*DependencyCallback, error) {
	h, err := p.callHandle(bridge.RegisterAssumptionDependency)
	if err != nil {
		return nil, err
	}
	cb := &DependencyCallback{table: p.table}
	cb.handle.Store(int64(h))
	return cb, nil
}

// DependencyCallback owns a transient host handle. The first Notify or
// Release consumes it; later calls return bridge.ErrCallbackReleased.
type DependencyCallback struct {
	table  *bridge.Table
	handle atomic.Int64
}

func (c *DependencyCallback) take() (bridge.Handle, error) {
	h := c.handle.Swap(int64(bridge.Null))
	if h == int64(bridge.Null) {
		return bridge.Null, bridge.ErrCallbackReleased
	}
	return bridge.Handle(h), nil
}

// Notify reports the installed code (Null when the compilation did not
// produce code) and whether it is still valid, then releases the handle.
func (c *DependencyCallback) Notify(code bridge.Handle, valid bool) error {
	h, err := c.take()
	if err != nil {
		return err
	}
	_, err = c.table.Call(bridge.NotifyAssumptionDependency,
		bridge.HandleValue(h), bridge.HandleValue(code), bridge.BoolValue(valid))
	if _, rerr := c.table.Call(bridge.ReleaseHandle, bridge.HandleValue(h)); err == nil {
		err = rerr
	}
	return err
}

// Release drops the callback without notifying.
func (c *DependencyCallback) Release() error {
	h, err := c.take()
	if err != nil {
		return err
	}
	_, err = c.table.Call(bridge.ReleaseHandle, bridge.HandleValue(h))
	return err
}

func (c *DependencyCallback) Released() bool {
	return c.handle.Load() == int64(bridge.Null)
}
