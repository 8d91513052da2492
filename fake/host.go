// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake host side of the bridge. Host objects live in a handle table and
// are reachable from the guest only through the guest-to-host table.

package fake

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/isorec/bridge"
	"github.com/momentics/isorec/bridge/proxy"
)

// Compilable is a host compilation unit.
type Compilable struct {
	Name        string
	Description string
	Address     int64
	Nodes       int
	Position    *Position
	Assumptions []*Assumption

	mu       sync.Mutex
	failures []proxy.Failure
}

func (c *Compilable) Failures() []proxy.Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]proxy.Failure(nil), c.failures...)
}

// Task is a host compilation task that can be cancelled at any time.
type Task struct {
	LastTier  bool
	cancelled atomic.Bool
}

func (t *Task) Cancel() { t.cancelled.Store(true) }

// Position is a host source position.
type Position struct {
	Line, Start, End int
	URI, Description string
}

// Notification is one assumption dependency callback delivery.
type Notification struct {
	Code  bridge.Handle
	Valid bool
}

// Assumption collects the notifications of its dependents.
type Assumption struct {
	Name string

	mu            sync.Mutex
	notifications []Notification
}

func (a *Assumption) Notifications() []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Notification(nil), a.notifications...)
}

type dependency struct {
	assumption *Assumption
}

// Host implements every guest-to-host entry over its own handle table and
// counts calls per identifier.
type Host struct {
	handles *bridge.HandleTable
	table   *bridge.Table

	mu    sync.Mutex
	calls map[bridge.Id]int
}

// NewHost builds a host with a complete guest-to-host table.
func NewHost() *Host {
	h := &Host{
		handles: bridge.NewHandleTable("host"),
		calls:   make(map[bridge.Id]int),
	}
	h.table = bridge.MustTable(bridge.GuestToHost, proxy.Required(), h.entries())
	return h
}

func (h *Host) Table() *bridge.Table { return h.table }
func (h *Host) Handles() *bridge.HandleTable { return h.handles }
func (h *Host) Register(v any) bridge.Handle { return h.handles.Create(v) }

// Calls returns how often id was dispatched.
func (h *Host) Calls(id bridge.Id) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[id]
}

func (h *Host) count(id bridge.Id, e bridge.Entry) bridge.Entry {
	return func(args []bridge.Value) (bridge.Value, error) {
		h.mu.Lock()
		h.calls[id]++
		h.mu.Unlock()
		return e(args)
	}
}

func resolve[T any](h *Host, args []bridge.Value) (T, error) {
	var zero T
	if len(args) == 0 {
		return zero, bridge.ErrArity
	}
	hd, err := args[0].AsHandle()
	if err != nil {
		return zero, err
	}
	return bridge.ResolveAs[T](h.handles, hd)
}

func compilableEntry(h *Host, fn func(c *Compilable) bridge.Value) bridge.Entry {
	return func(args []bridge.Value) (bridge.Value, error) {
		c, err := resolve[*Compilable](h, args)
		if err != nil {
			return bridge.Value{}, err
		}
		return fn(c), nil
	}
}

func positionEntry(h *Host, fn func(p *Position) bridge.Value) bridge.Entry {
	return func(args []bridge.Value) (bridge.Value, error) {
		p, err := resolve[*Position](h, args)
		if err != nil {
			return bridge.Value{}, err
		}
		return fn(p), nil
	}
}

func (h *Host) entries() map[bridge.Id]bridge.Entry {
	m := map[bridge.Id]bridge.Entry{
		bridge.GetCompilableName: compilableEntry(h, func(c *Compilable) bridge.Value {
			return bridge.StringValue(c.Name)
		}),
		bridge.CompilableToString: compilableEntry(h, func(c *Compilable) bridge.Value {
			if c.Description == "" {
				return bridge.StringValue(c.Name)
			}
			return bridge.StringValue(c.Description)
		}),
		bridge.GetCompilableAddress: compilableEntry(h, func(c *Compilable) bridge.Value {
			return bridge.IntValue(c.Address)
		}),
		bridge.GetNonTrivialNodeCount: compilableEntry(h, func(c *Compilable) bridge.Value {
			return bridge.IntValue(int64(c.Nodes))
		}),
		bridge.GetSourcePosition: compilableEntry(h, func(c *Compilable) bridge.Value {
			if c.Position == nil {
				return bridge.HandleValue(bridge.Null)
			}
			return bridge.HandleValue(h.handles.Create(c.Position))
		}),
		bridge.GetCompilableAssumptions: func(args []bridge.Value) (bridge.Value, error) {
			c, err := resolve[*Compilable](h, args)
			if err != nil {
				return bridge.Value{}, err
			}
			out := make([]int64, len(c.Assumptions))
			for i, a := range c.Assumptions {
				out[i] = int64(h.handles.Create(a))
			}
			return bridge.Marshal(out)
		},
		bridge.OnCompilationFailed: func(args []bridge.Value) (bridge.Value, error) {
			if err := bridge.CheckArgs(args, bridge.KindHandle, bridge.KindBytes); err != nil {
				return bridge.Value{}, err
			}
			c, err := resolve[*Compilable](h, args)
			if err != nil {
				return bridge.Value{}, err
			}
			var f proxy.Failure
			if err := bridge.Unmarshal(args[1], &f); err != nil {
				return bridge.Value{}, err
			}
			c.mu.Lock()
			c.failures = append(c.failures, f)
			c.mu.Unlock()
			return bridge.VoidValue(), nil
		},
		bridge.IsCancelled: func(args []bridge.Value) (bridge.Value, error) {
			t, err := resolve[*Task](h, args)
			if err != nil {
				return bridge.Value{}, err
			}
			return bridge.BoolValue(t.cancelled.Load()), nil
		},
		bridge.IsLastTier: func(args []bridge.Value) (bridge.Value, error) {
			t, err := resolve[*Task](h, args)
			if err != nil {
				return bridge.Value{}, err
			}
			return bridge.BoolValue(t.LastTier), nil
		},
		bridge.GetLineNumber: positionEntry(h, func(p *Position) bridge.Value {
			return bridge.IntValue(int64(p.Line))
		}),
		bridge.GetOffsetStart: positionEntry(h, func(p *Position) bridge.Value {
			return bridge.IntValue(int64(p.Start))
		}),
		bridge.GetOffsetEnd: positionEntry(h, func(p *Position) bridge.Value {
			return bridge.IntValue(int64(p.End))
		}),
		bridge.GetSourceURI: positionEntry(h, func(p *Position) bridge.Value {
			return bridge.StringValue(p.URI)
		}),
		bridge.GetNodeDescription: positionEntry(h, func(p *Position) bridge.Value {
			return bridge.StringValue(p.Description)
		}),
		bridge.RegisterAssumptionDependency: func(args []bridge.Value) (bridge.Value, error) {
			a, err := resolve[*Assumption](h, args)
			if err != nil {
				return bridge.Value{}, err
			}
			return bridge.HandleValue(h.handles.Create(&dependency{assumption: a})), nil
		},
		bridge.NotifyAssumptionDependency: func(args []bridge.Value) (bridge.Value, error) {
			if err := bridge.CheckArgs(args, bridge.KindHandle, bridge.KindHandle, bridge.KindBool); err != nil {
				return bridge.Value{}, err
			}
			d, err := resolve[*dependency](h, args)
			if err != nil {
				return bridge.Value{}, err
			}
			code, _ := args[1].AsHandle()
			valid, _ := args[2].AsBool()
			d.assumption.mu.Lock()
			d.assumption.notifications = append(d.assumption.notifications, Notification{Code: code, Valid: valid})
			d.assumption.mu.Unlock()
			return bridge.VoidValue(), nil
		},
		bridge.ReleaseHandle: func(args []bridge.Value) (bridge.Value, error) {
			if err := bridge.CheckArgs(args, bridge.KindHandle); err != nil {
				return bridge.Value{}, err
			}
			hd, _ := args[0].AsHandle()
			if !h.handles.Release(hd) {
				return bridge.Value{}, fmt.Errorf("%w: %s already released", bridge.ErrInvalidHandle, hd)
			}
			return bridge.VoidValue(), nil
		},
	}
	for id, e := range m {
		m[id] = h.count(id, e)
	}
	return m
}
