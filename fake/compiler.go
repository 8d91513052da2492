// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake guest compiler driven through the entry points.

package fake

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/isorec/bridge"
	"github.com/momentics/isorec/bridge/entry"
)

// Compiler produces a deterministic Result from the compilable's node
// count and registers a dependency on every assumption.
type Compiler struct {
	Name string
	// Fail, when set, is returned by every Compile.
	Fail error
	// CodePerNode scales the target code size; 16 when zero.
	CodePerNode int

	mu          sync.Mutex
	options     bridge.Options
	compiled    atomic.Int32
	shutdown    atomic.Bool
	initialized atomic.Int32
}

var _ entry.Compiler = (*Compiler)(nil)

// Factory returns an entry.Factory that always hands out c.
func (c *Compiler) Factory() entry.Factory {
	return func(*entry.Runtime) (entry.Compiler, error) { return c, nil }
}

func (c *Compiler) ConfigurationName() string {
	if c.Name == "" {
		return "fake"
	}
	return c.Name
}

func (c *Compiler) Initialize(options bridge.Options) error {
	c.mu.Lock()
	c.options = options
	c.mu.Unlock()
	c.initialized.Add(1)
	return nil
}

func (c *Compiler) Options() bridge.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options
}

func (c *Compiler) Compile(comp *entry.Compilation, _ bridge.Options) (entry.Result, error) {
	if c.Fail != nil {
		return entry.Result{}, c.Fail
	}
	nodes, err := comp.Compilable.NonTrivialNodeCount()
	if err != nil {
		return entry.Result{}, err
	}
	if cancelled, err := comp.Cancelled(); err != nil || cancelled {
		return entry.Result{}, fmt.Errorf("%w: cancelled mid-compilation", entry.ErrBailout)
	}
	deps, err := comp.Compilable.Assumptions()
	if err != nil {
		return entry.Result{}, err
	}
	for _, d := range deps {
		cb, err := d.RegisterDependency()
		if err != nil {
			return entry.Result{}, err
		}
		if err := cb.Notify(bridge.Null, true); err != nil {
			return entry.Result{}, err
		}
	}
	per := c.CodePerNode
	if per == 0 {
		per = 16
	}
	types := make([]string, nodes)
	for i := range types {
		types[i] = fmt.Sprintf("isorec.nodes.Node%d", i%4)
	}
	c.compiled.Add(1)
	return entry.Result{
		TargetCodeSize: nodes * per,
		TotalFrameSize: 64,
		NodeCount:      nodes,
		NodeTypes:      types,
	}, nil
}

func (c *Compiler) Shutdown() { c.shutdown.Store(true) }

func (c *Compiler) Compiled() int { return int(c.compiled.Load()) }
func (c *Compiler) Initialized() int { return int(c.initialized.Load()) }
func (c *Compiler) IsShutdown() bool { return c.shutdown.Load() }
