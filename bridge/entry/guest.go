// File: bridge/entry/guest.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package entry

import (
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/momentics/isorec/bridge"
	"github.com/momentics/isorec/bridge/proxy"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("isorec.bridge.entry")

// Guest owns the guest side of one bridge: its handle table, the host's
// upcall table and the compiler factory.
type Guest struct {
	handles *bridge.HandleTable
	upcalls *bridge.Table
	factory Factory
	initial bridge.Options
	events  Emitter
	trace   bool
	table   *bridge.Table
}

// Option configures a Guest.
type Option func(*Guest)

// WithInitialOptions sets the options handed to every runtime.
func WithInitialOptions(o bridge.Options) Option {
	return func(g *Guest) {
		g.initial = bridge.Options{}
		maps.Copy(g.initial, o)
	}
}

// WithEvents records a CompilationEvent for every DoCompile.
func WithEvents(e Emitter) Option {
	return func(g *Guest) { g.events = e }
}

// WithTrace logs every entry call.
func WithTrace() Option {
	return func(g *Guest) { g.trace = true }
}

// NewGuest checks that upcalls binds every identifier proxies use and
// builds the host-to-guest table.
func NewGuest(upcalls *bridge.Table, factory Factory, opts ...Option) (*Guest, error) {
	if upcalls == nil || factory == nil {
		return nil, errors.New("entry: upcall table and compiler factory are required")
	}
	for _, id := range proxy.Required() {
		if _, err := upcalls.Lookup(id.String()); err != nil {
			return nil, err
		}
	}
	g := &Guest{
		handles: bridge.NewHandleTable("guest"),
		upcalls: upcalls,
		factory: factory,
		initial: bridge.Options{},
	}
	for _, opt := range opts {
		opt(g)
	}
	b := bridge.NewBuilder(bridge.HostToGuest).Trace(g.trace)
	var required []string
	for _, id := range bridge.Ids(bridge.HostToGuest) {
		required = append(required, id.String())
	}
	for id, e := range g.entries() {
		b.BindId(id, e)
	}
	t, err := b.Build(required...)
	if err != nil {
		return nil, err
	}
	g.table = t
	return g, nil
}

// Table is the host-to-guest dispatch table.
func (g *Guest) Table() *bridge.Table { return g.table }

// Handles exposes the guest handle table.
func (g *Guest) Handles() *bridge.HandleTable { return g.handles }

func (g *Guest) entries() map[bridge.Id]bridge.Entry {
	return map[bridge.Id]bridge.Entry{
		bridge.InitializeRuntime:            g.initializeRuntime,
		bridge.GetInitialOptions:            g.getInitialOptions,
		bridge.NewCompiler:                  g.newCompiler,
		bridge.InitializeCompiler:           g.initializeCompiler,
		bridge.GetCompilerConfigurationName: g.getCompilerConfigurationName,
		bridge.OpenCompilation:              g.openCompilation,
		bridge.DoCompile:                    g.doCompile,
		bridge.CloseCompilation:             g.closeCompilation,
		bridge.Shutdown:                     g.shutdown,
		bridge.GetSuppliedString:            g.getSuppliedString,
		bridge.GetNodeCount:                 resultEntry(g, func(r Result) int { return r.NodeCount }),
		bridge.GetTargetCodeSize:            resultEntry(g, func(r Result) int { return r.TargetCodeSize }),
		bridge.GetTotalFrameSize:            resultEntry(g, func(r Result) int { return r.TotalFrameSize }),
		bridge.GetNodeTypes:                 g.getNodeTypes,
	}
}

func handleArg(args []bridge.Value, i int) bridge.Handle {
	h, _ := args[i].AsHandle()
	return h
}

// initializeRuntime(host handle) -> runtime handle
func (g *Guest) initializeRuntime(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle); err != nil {
		return bridge.Value{}, err
	}
	rt := &Runtime{host: handleArg(args, 0), upcalls: g.upcalls, options: maps.Clone(g.initial)}
	log.Infof("runtime initialized for host %s", rt.host)
	return bridge.HandleValue(g.handles.Create(rt)), nil
}

// getInitialOptions(runtime) -> options
func (g *Guest) getInitialOptions(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle); err != nil {
		return bridge.Value{}, err
	}
	rt, err := bridge.ResolveAs[*Runtime](g.handles, handleArg(args, 0))
	if err != nil {
		return bridge.Value{}, err
	}
	return bridge.MarshalOptions(rt.options)
}

// newCompiler(runtime) -> compiler handle
func (g *Guest) newCompiler(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle); err != nil {
		return bridge.Value{}, err
	}
	rt, err := bridge.ResolveAs[*Runtime](g.handles, handleArg(args, 0))
	if err != nil {
		return bridge.Value{}, err
	}
	c, err := g.factory(rt)
	if err != nil {
		return bridge.Value{}, err
	}
	return bridge.HandleValue(g.handles.Create(&compilerState{compiler: c, runtime: rt})), nil
}

func (g *Guest) compiler(args []bridge.Value) (*compilerState, error) {
	return bridge.ResolveAs[*compilerState](g.handles, handleArg(args, 0))
}

// initializeCompiler(compiler, options). Only the first call initializes.
func (g *Guest) initializeCompiler(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle, bridge.KindBytes); err != nil {
		return bridge.Value{}, err
	}
	cs, err := g.compiler(args)
	if err != nil {
		return bridge.Value{}, err
	}
	opts, err := bridge.UnmarshalOptions(args[1])
	if err != nil {
		return bridge.Value{}, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.ready {
		return bridge.VoidValue(), nil
	}
	merged := bridge.Options{}
	maps.Copy(merged, cs.runtime.options)
	maps.Copy(merged, opts)
	if err := cs.compiler.Initialize(merged); err != nil {
		return bridge.Value{}, err
	}
	cs.ready = true
	log.Infof("compiler %s initialized", cs.compiler.ConfigurationName())
	return bridge.VoidValue(), nil
}

// getCompilerConfigurationName(compiler) -> string
func (g *Guest) getCompilerConfigurationName(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle); err != nil {
		return bridge.Value{}, err
	}
	cs, err := g.compiler(args)
	if err != nil {
		return bridge.Value{}, err
	}
	return bridge.StringValue(cs.compiler.ConfigurationName()), nil
}

// openCompilation(compiler, host compilable) -> compilation handle
func (g *Guest) openCompilation(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle, bridge.KindHandle); err != nil {
		return bridge.Value{}, err
	}
	if _, err := g.compiler(args); err != nil {
		return bridge.Value{}, err
	}
	compilable := handleArg(args, 1)
	if compilable.IsNull() {
		return bridge.Value{}, fmt.Errorf("%w: null compilable", bridge.ErrInvalidHandle)
	}
	c := &Compilation{ID: uuid.New(), Compilable: proxy.NewCompilable(g.upcalls, compilable)}
	return bridge.HandleValue(g.handles.Create(c)), nil
}

// doCompile(compiler, compilation, options, host task or null)
func (g *Guest) doCompile(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle, bridge.KindHandle, bridge.KindBytes, bridge.KindHandle); err != nil {
		return bridge.Value{}, err
	}
	cs, err := g.compiler(args)
	if err != nil {
		return bridge.Value{}, err
	}
	c, err := bridge.ResolveAs[*Compilation](g.handles, handleArg(args, 1))
	if err != nil {
		return bridge.Value{}, err
	}
	if c.Closed() {
		return bridge.Value{}, ErrCompilationClosed
	}
	opts, err := bridge.UnmarshalOptions(args[2])
	if err != nil {
		return bridge.Value{}, err
	}
	if task := handleArg(args, 3); !task.IsNull() {
		c.Task = proxy.NewCompilationTask(g.upcalls, task)
	}
	ev := CompilationEvent{ID: c.ID.String(), Compilable: c.Compilable.String()}
	defer g.emit(&ev)

	cancelled, err := c.Cancelled()
	if err != nil {
		return bridge.Value{}, err
	}
	if cancelled {
		ev.Cancelled = true
		log.Debugf("%s cancelled before start", c)
		return bridge.VoidValue(), nil
	}
	res, err := cs.compiler.Compile(c, opts)
	if err != nil {
		ev.Failed, ev.Reason = true, err.Error()
		failure := proxy.Failure{
			Reason:    err.Error(),
			Bailout:   errors.Is(err, ErrBailout),
			Permanent: errors.Is(err, ErrPermanentBailout),
		}
		if nerr := c.Compilable.OnCompilationFailed(failure); nerr != nil {
			log.Warningf("%s: failure not delivered: %s", c, nerr)
		}
		return bridge.Value{}, err
	}
	c.setResult(res)
	ev.CodeSize, ev.FrameSize, ev.Nodes = res.TargetCodeSize, res.TotalFrameSize, res.NodeCount
	log.Debugf("%s: %d bytes of code", c, res.TargetCodeSize)
	return bridge.VoidValue(), nil
}

func (g *Guest) emit(ev *CompilationEvent) {
	if g.events == nil {
		return
	}
	p, err := ev.Encode()
	if err != nil {
		log.Warningf("encode compilation event: %s", err)
		return
	}
	if !g.events.Write(p) {
		log.Debugf("compilation event %s dropped", ev.ID)
	}
}

// closeCompilation(compilation) releases the compilation handle.
func (g *Guest) closeCompilation(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle); err != nil {
		return bridge.Value{}, err
	}
	h := handleArg(args, 0)
	c, err := bridge.ResolveAs[*Compilation](g.handles, h)
	if err != nil {
		return bridge.Value{}, err
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	g.handles.Release(h)
	return bridge.VoidValue(), nil
}

// shutdown(compiler) stops the compiler and releases its handle.
func (g *Guest) shutdown(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle); err != nil {
		return bridge.Value{}, err
	}
	cs, err := g.compiler(args)
	if err != nil {
		return bridge.Value{}, err
	}
	cs.compiler.Shutdown()
	g.handles.Release(handleArg(args, 0))
	log.Infof("compiler %s shut down", cs.compiler.ConfigurationName())
	return bridge.VoidValue(), nil
}

// getSuppliedString(handle) -> string of a guest object
func (g *Guest) getSuppliedString(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle); err != nil {
		return bridge.Value{}, err
	}
	v, err := g.handles.Resolve(handleArg(args, 0))
	if err != nil {
		return bridge.Value{}, err
	}
	switch s := v.(type) {
	case func() string:
		return bridge.StringValue(s()), nil
	case fmt.Stringer:
		return bridge.StringValue(s.String()), nil
	}
	return bridge.Value{}, fmt.Errorf("entry: %T supplies no string", v)
}

func resultEntry(g *Guest, field func(Result) int) bridge.Entry {
	return func(args []bridge.Value) (bridge.Value, error) {
		if err := bridge.CheckArgs(args, bridge.KindHandle); err != nil {
			return bridge.Value{}, err
		}
		c, err := bridge.ResolveAs[*Compilation](g.handles, handleArg(args, 0))
		if err != nil {
			return bridge.Value{}, err
		}
		r, err := c.Result()
		if err != nil {
			return bridge.Value{}, err
		}
		return bridge.IntValue(int64(field(r))), nil
	}
}

// getNodeTypes(compilation, simpleNames) -> []string
func (g *Guest) getNodeTypes(args []bridge.Value) (bridge.Value, error) {
	if err := bridge.CheckArgs(args, bridge.KindHandle, bridge.KindBool); err != nil {
		return bridge.Value{}, err
	}
	c, err := bridge.ResolveAs[*Compilation](g.handles, handleArg(args, 0))
	if err != nil {
		return bridge.Value{}, err
	}
	r, err := c.Result()
	if err != nil {
		return bridge.Value{}, err
	}
	simple, _ := args[1].AsBool()
	return bridge.Marshal(r.nodeTypes(simple))
}
