// File: bridge/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("isorec.bridge")

// Entry is the fixed signature of every dispatch entry.
type Entry func(args []Value) (Value, error)

// Table maps identifiers to entries. It is immutable once built and safe
// for concurrent use.
type Table struct {
	dir     Direction
	entries map[string]Entry
	trace   bool
}

// Builder collects entries by name.
type Builder struct {
	dir     Direction
	entries map[string]Entry
	trace   bool
}

func NewBuilder(dir Direction) *Builder {
	return &Builder{dir: dir, entries: make(map[string]Entry)}
}

// Bind adds or replaces the entry for name.
func (b *Builder) Bind(name string, e Entry) *Builder {
	b.entries[name] = e
	return b
}

// BindId binds an entry under the identifier's stable name.
func (b *Builder) BindId(id Id, e Entry) *Builder {
	return b.Bind(id.String(), e)
}

// Trace logs every call at debug level.
func (b *Builder) Trace(on bool) *Builder {
	b.trace = on
	return b
}

// Build checks that every required name resolves to a non-nil entry.
func (b *Builder) Build(required ...string) (*Table, error) {
	var missing []string
	for _, name := range required {
		if b.entries[name] == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		err := &MissingElementError{Direction: b.dir, Name: missing[0]}
		if len(missing) > 1 {
			log.Errorf("%s table is missing %s", b.dir, strings.Join(missing, ", "))
		}
		return nil, err
	}
	t := &Table{dir: b.dir, entries: make(map[string]Entry, len(b.entries)), trace: b.trace}
	for name, e := range b.entries {
		if e != nil {
			t.entries[name] = e
		}
	}
	log.Debugf("%s table built with %d entries", b.dir, len(t.entries))
	return t, nil
}

// NewTable builds a table from an identifier-keyed literal. Every id in
// required must be bound.
func NewTable(dir Direction, required []Id, bind map[Id]Entry) (*Table, error) {
	b := NewBuilder(dir)
	for id, e := range bind {
		if id.Direction() != dir {
			return nil, fmt.Errorf("bridge: %s bound in %s table", id, dir)
		}
		b.BindId(id, e)
	}
	names := make([]string, len(required))
	for i, id := range required {
		names[i] = id.String()
	}
	return b.Build(names...)
}

// MustTable is NewTable for composition roots that cannot start without
// a complete table.
func MustTable(dir Direction, required []Id, bind map[Id]Entry) *Table {
	t, err := NewTable(dir, required, bind)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Direction() Direction { return t.dir }

// Lookup returns the entry bound to name or a *MissingElementError.
func (t *Table) Lookup(name string) (Entry, error) {
	e, ok := t.entries[name]
	if !ok {
		return nil, &MissingElementError{Direction: t.dir, Name: name}
	}
	return e, nil
}

// Names lists bound names in sorted order.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.entries))
	for name := range t.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Call invokes the entry for id. Every failure is a *CallError.
func (t *Table) Call(id Id, args ...Value) (Value, error) {
	return t.CallName(id.String(), args...)
}

// CallName invokes the entry bound to name.
func (t *Table) CallName(name string, args ...Value) (v Value, err error) {
	e, err := t.Lookup(name)
	if err != nil {
		return Value{}, &CallError{Name: name, Err: err}
	}
	if t.trace {
		log.Debugf("-> %s%v", name, args)
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = Value{}, &CallError{Name: name, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			log.Debugf("%s", err)
		} else if t.trace {
			log.Debugf("<- %s = %s", name, v)
		}
	}()
	v, err = e(args)
	if err != nil {
		return Value{}, &CallError{Name: name, Err: err}
	}
	return v, nil
}
