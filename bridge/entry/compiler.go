// File: bridge/entry/compiler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package entry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/momentics/isorec/bridge"
	"github.com/momentics/isorec/bridge/proxy"
)

// ErrBailout marks a compilation the compiler gave up on.
var ErrBailout = errors.New("entry: compilation bailed out")

// ErrPermanentBailout marks a bailout that will not succeed on retry.
var ErrPermanentBailout = fmt.Errorf("%w permanently", ErrBailout)

var (
	ErrCompilationClosed = errors.New("entry: compilation closed")
	ErrNoResult          = errors.New("entry: compilation has no result")
)

// Compiler is the guest compiler pipeline.
type Compiler interface {
	ConfigurationName() string
	Initialize(options bridge.Options) error
	Compile(c *Compilation, options bridge.Options) (Result, error)
	Shutdown()
}

// Factory creates a compiler for a runtime.
type Factory func(rt *Runtime) (Compiler, error)

// Result is what the host can read back after DoCompile.
type Result struct {
	TargetCodeSize int
	TotalFrameSize int
	NodeCount      int
	NodeTypes      []string
}

// Runtime is the guest view of a host runtime.
type Runtime struct {
	host    bridge.Handle
	upcalls *bridge.Table
	options bridge.Options
}

func (r *Runtime) Host() bridge.Handle { return r.host }
func (r *Runtime) Upcalls() *bridge.Table { return r.upcalls }
func (r *Runtime) Options() bridge.Options { return r.options }

type compilerState struct {
	compiler Compiler
	runtime  *Runtime
	mu       sync.Mutex
	ready    bool
}

// Compilation is one compilable being compiled.
type Compilation struct {
	ID         uuid.UUID
	Compilable *proxy.CompilableProxy
	Task       *proxy.CompilationTaskProxy

	mu     sync.Mutex
	result *Result
	closed bool
}

// Cancelled polls the host task. Without a task it is never cancelled.
func (c *Compilation) Cancelled() (bool, error) {
	if c.Task == nil {
		return false, nil
	}
	return c.Task.IsCancelled()
}

func (c *Compilation) String() string {
	return "compilation " + c.ID.String() + " of " + c.Compilable.String()
}

func (c *Compilation) Result() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}, ErrNoResult
	}
	return *c.result, nil
}

func (c *Compilation) setResult(r Result) {
	c.mu.Lock()
	c.result = &r
	c.mu.Unlock()
}

func (c *Compilation) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// nodeTypes returns the node type names, optionally without their
// package qualifier.
func (r Result) nodeTypes(simple bool) []string {
	if !simple {
		return append([]string(nil), r.NodeTypes...)
	}
	out := make([]string, len(r.NodeTypes))
	for i, t := range r.NodeTypes {
		out[i] = t[strings.LastIndexByte(t, '.')+1:]
	}
	return out
}
