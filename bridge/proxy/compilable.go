// File: bridge/proxy/compilable.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proxy

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/isorec/bridge"
)

// Compilable is a unit the host asks the guest to compile.
type Compilable interface {
	Handle() bridge.Handle
	Name() (string, error)
	String() string
	Address() (int64, error)
	NonTrivialNodeCount() (int, error)
	Assumptions() ([]*AssumptionDependencyProxy, error)
	SourcePosition() (*SourcePositionProxy, error)
	OnCompilationFailed(f Failure) error
}

// Failure describes a failed compilation to the host.
type Failure struct {
	Reason    string `cbor:"1,keyasint"`
	Bailout   bool   `cbor:"2,keyasint"`
	Permanent bool   `cbor:"3,keyasint"`
	Graph     string `cbor:"4,keyasint,omitempty"`
}

// CompilableProxy caches name, string form and address after the first
// successful call. Concurrent first reads store the same value.
type CompilableProxy struct {
	base
	name    atomic.Pointer[string]
	str     atomic.Pointer[string]
	address atomic.Int64
}

var _ Compilable = (*CompilableProxy)(nil)

func NewCompilable(table *bridge.Table, h bridge.Handle) *CompilableProxy {
	return &CompilableProxy{base: base{table: table, handle: h}}
}

func (p *CompilableProxy) Name() (string, error) {
	if s := p.name.Load(); s != nil {
		return *s, nil
	}
	s, err := p.callString(bridge.GetCompilableName)
	if err != nil {
		return "", err
	}
	p.name.Store(&s)
	return s, nil
}

// String falls back to the handle when the host cannot be reached.
func (p *CompilableProxy) String() string {
	if s := p.str.Load(); s != nil {
		return *s
	}
	s, err := p.callString(bridge.CompilableToString)
	if err != nil {
		return fmt.Sprintf("compilable %s", p.handle)
	}
	p.str.Store(&s)
	return s
}

// Address returns the native address of the compilable. Zero is not
// cached.
func (p *CompilableProxy) Address() (int64, error) {
	if a := p.address.Load(); a != 0 {
		return a, nil
	}
	a, err := p.callInt(bridge.GetCompilableAddress)
	if err != nil {
		return 0, err
	}
	p.address.Store(a)
	return a, nil
}

func (p *CompilableProxy) NonTrivialNodeCount() (int, error) {
	n, err := p.callInt(bridge.GetNonTrivialNodeCount)
	return int(n), err
}

// Assumptions returns a proxy per assumption the compilable depends on.
func (p *CompilableProxy) Assumptions() ([]*AssumptionDependencyProxy, error) {
	v, err := p.call(bridge.GetCompilableAssumptions)
	if err != nil {
		return nil, err
	}
	var raw []int64
	if err := bridge.Unmarshal(v, &raw); err != nil {
		return nil, &bridge.CallError{Name: bridge.GetCompilableAssumptions.String(), Err: err}
	}
	out := make([]*AssumptionDependencyProxy, len(raw))
	for i, h := range raw {
		out[i] = NewAssumptionDependency(p.table, bridge.Handle(h))
	}
	return out, nil
}

// SourcePosition returns nil when the host has no position.
func (p *CompilableProxy) SourcePosition() (*SourcePositionProxy, error) {
	h, err := p.callHandle(bridge.GetSourcePosition)
	if err != nil || h.IsNull() {
		return nil, err
	}
	return NewSourcePosition(p.table, h), nil
}

func (p *CompilableProxy) OnCompilationFailed(f Failure) error {
	v, err := bridge.Marshal(f)
	if err != nil {
		return err
	}
	_, err = p.call(bridge.OnCompilationFailed, v)
	return err
}
