package proxy_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/momentics/isorec/bridge"
	"github.com/momentics/isorec/bridge/proxy"
	"github.com/momentics/isorec/fake"
)

func TestCompilableProxy_ForwardsAndCaches(t *testing.T) {
	host := fake.NewHost()
	c := &fake.Compilable{Name: "Foo.bar", Description: "Foo.bar()<opt>", Address: 0x1000, Nodes: 12}
	p := proxy.NewCompilable(host.Table(), host.Register(c))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if name, err := p.Name(); err != nil || name != "Foo.bar" {
				t.Errorf("Name() = %q, %v", name, err)
			}
		}()
	}
	wg.Wait()
	before := host.Calls(bridge.GetCompilableName)
	for i := 0; i < 5; i++ {
		p.Name()
		_ = p.String()
		p.Address()
	}
	if host.Calls(bridge.GetCompilableName) != before {
		t.Error("cached name fetched again")
	}
	if host.Calls(bridge.CompilableToString) != 1 || host.Calls(bridge.GetCompilableAddress) != 1 {
		t.Errorf("string/address not cached: %d/%d",
			host.Calls(bridge.CompilableToString), host.Calls(bridge.GetCompilableAddress))
	}
	if p.String() != "Foo.bar()<opt>" {
		t.Errorf("String() = %q", p.String())
	}
	if n, err := p.NonTrivialNodeCount(); err != nil || n != 12 {
		t.Errorf("node count %d, %v", n, err)
	}
	if n, _ := p.NonTrivialNodeCount(); n != 12 || host.Calls(bridge.GetNonTrivialNodeCount) != 2 {
		t.Error("node count must not be cached")
	}
}

func TestCompilableProxy_FailuresAreWrapped(t *testing.T) {
	host := fake.NewHost()
	p := proxy.NewCompilable(host.Table(), bridge.Handle(999))
	_, err := p.Name()
	var ce *bridge.CallError
	if !errors.As(err, &ce) || ce.Name != "GetCompilableName" || !errors.Is(err, bridge.ErrInvalidHandle) {
		t.Fatalf("unexpected error %v", err)
	}
	if s := p.String(); s != "compilable handle(999)" {
		t.Errorf("fallback string %q", s)
	}
	if _, err := p.Name(); err == nil {
		t.Error("failure was cached as success")
	}
}

func TestCompilableProxy_OnCompilationFailed(t *testing.T) {
	host := fake.NewHost()
	c := &fake.Compilable{Name: "f"}
	p := proxy.NewCompilable(host.Table(), host.Register(c))
	if err := p.OnCompilationFailed(proxy.Failure{Reason: "too big", Bailout: true}); err != nil {
		t.Fatal(err)
	}
	f := c.Failures()
	if len(f) != 1 || f[0].Reason != "too big" || !f[0].Bailout || f[0].Permanent {
		t.Errorf("failures = %+v", f)
	}
}

func TestSourcePositionProxy(t *testing.T) {
	host := fake.NewHost()
	c := &fake.Compilable{
		Name:     "f",
		Position: &fake.Position{Line: 7, Start: 10, End: 20, URI: "file:///a.js", Description: "call"},
	}
	p := proxy.NewCompilable(host.Table(), host.Register(c))
	pos, err := p.SourcePosition()
	if err != nil || pos == nil {
		t.Fatalf("SourcePosition: %v", err)
	}
	line, _ := pos.LineNumber()
	start, _ := pos.OffsetStart()
	end, _ := pos.OffsetEnd()
	uri, _ := pos.URI()
	desc, _ := pos.NodeDescription()
	if line != 7 || start != 10 || end != 20 || uri != "file:///a.js" || desc != "call" {
		t.Errorf("position = %d %d %d %q %q", line, start, end, uri, desc)
	}

	none := proxy.NewCompilable(host.Table(), host.Register(&fake.Compilable{Name: "g"}))
	if pos, err := none.SourcePosition(); pos != nil || err != nil {
		t.Errorf("expected no position, got %v %v", pos, err)
	}
}

func TestCompilationTaskProxy(t *testing.T) {
	host := fake.NewHost()
	task := &fake.Task{LastTier: true}
	p := proxy.NewCompilationTask(host.Table(), host.Register(task))
	if c, err := p.IsCancelled(); err != nil || c {
		t.Fatalf("IsCancelled = %v, %v", c, err)
	}
	task.Cancel()
	if c, _ := p.IsCancelled(); !c {
		t.Error("cancellation not observed")
	}
	if lt, _ := p.IsLastTier(); !lt {
		t.Error("last tier not forwarded")
	}
}

func TestDependencyCallback_OneShot(t *testing.T) {
	host := fake.NewHost()
	a := &fake.Assumption{Name: "stable"}
	c := &fake.Compilable{Name: "f", Assumptions: []*fake.Assumption{a}}
	deps, err := proxy.NewCompilable(host.Table(), host.Register(c)).Assumptions()
	if err != nil || len(deps) != 1 {
		t.Fatalf("Assumptions: %v %v", deps, err)
	}
	live := host.Handles().Len()
	cb, err := deps[0].RegisterDependency()
	if err != nil {
		t.Fatal(err)
	}
	if host.Handles().Len() != live+1 {
		t.Fatal("no transient handle created")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cb.Notify(bridge.Handle(42), true); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, bridge.ErrCallbackReleased) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 {
		t.Fatalf("callback invoked %d times", succeeded)
	}
	if n := a.Notifications(); len(n) != 1 || n[0].Code != 42 || !n[0].Valid {
		t.Errorf("notifications = %+v", n)
	}
	if host.Handles().Len() != live || !cb.Released() {
		t.Error("transient handle not released")
	}
	if err := cb.Release(); !errors.Is(err, bridge.ErrCallbackReleased) {
		t.Errorf("Release after Notify: %v", err)
	}
}

func TestRequiredMatchesHostTable(t *testing.T) {
	host := fake.NewHost()
	for _, id := range proxy.Required() {
		if _, err := host.Table().Lookup(id.String()); err != nil {
			t.Errorf("%s: %v", id, err)
		}
	}
}
