// File: bridge/speculation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"bytes"
	"fmt"
	"sync"
)

// SpeculationGroup names a family of speculations with a fixed argument
// signature.
type SpeculationGroup struct {
	ID        int32
	Name      string
	Signature []Kind
}

// SpeculationReason is one concrete speculation. Reasons compare by their
// canonical encoding.
type SpeculationReason struct {
	Group   int32
	Args    []Value
	encoded []byte
}

type reasonWire struct {
	Group int32 `cbor:"1,keyasint"`
	Args  []any `cbor:"2,keyasint"`
}

// Reason builds a reason for this group. args must match the signature.
func (g *SpeculationGroup) Reason(args ...Value) (SpeculationReason, error) {
	if err := CheckArgs(args, g.Signature...); err != nil {
		return SpeculationReason{}, fmt.Errorf("bridge: speculation %s: %w", g.Name, err)
	}
	w := reasonWire{Group: g.ID, Args: make([]any, len(args))}
	for i, a := range args {
		if a.Kind() == KindHandle {
			w.Args[i] = map[string]int64{"h": int64(Handle(a.n))}
			continue
		}
		w.Args[i] = a.Interface()
	}
	enc, err := MarshalBytes(w)
	if err != nil {
		return SpeculationReason{}, err
	}
	return SpeculationReason{Group: g.ID, Args: args, encoded: enc}, nil
}

// Encoded returns the canonical encoding of the reason.
func (r SpeculationReason) Encoded() []byte { return r.encoded }

func (r SpeculationReason) Equal(o SpeculationReason) bool {
	return bytes.Equal(r.encoded, o.encoded)
}

// SpeculationGroups registers groups once at startup. A second group with
// the same name is a fatal configuration error.
type SpeculationGroups struct {
	mu     sync.RWMutex
	byName map[string]*SpeculationGroup
	byID   []*SpeculationGroup
}

func NewSpeculationGroups() *SpeculationGroups {
	return &SpeculationGroups{byName: make(map[string]*SpeculationGroup)}
}

func (s *SpeculationGroups) Register(name string, signature ...Kind) (*SpeculationGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateGroup, name)
	}
	g := &SpeculationGroup{ID: int32(len(s.byID)), Name: name, Signature: signature}
	s.byName[name] = g
	s.byID = append(s.byID, g)
	return g, nil
}

// MustRegister panics on a duplicate name.
func (s *SpeculationGroups) MustRegister(name string, signature ...Kind) *SpeculationGroup {
	g, err := s.Register(name, signature...)
	if err != nil {
		panic(err)
	}
	return g
}

func (s *SpeculationGroups) ByID(id int32) (*SpeculationGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || int(id) >= len(s.byID) {
		return nil, false
	}
	return s.byID[id], true
}

func (s *SpeculationGroups) ByName(name string) (*SpeculationGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.byName[name]
	return g, ok
}

func (s *SpeculationGroups) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
