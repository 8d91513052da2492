// File: bridge/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrMissingElement   = errors.New("bridge: missing element")
	ErrBridgeCall       = errors.New("bridge: call failed")
	ErrCallbackReleased = errors.New("bridge: callback already released")
	ErrDuplicateGroup   = errors.New("bridge: duplicate speculation group")
	ErrInvalidHandle    = errors.New("bridge: invalid handle")
	ErrValueKind        = errors.New("bridge: unexpected value kind")
	ErrArity            = errors.New("bridge: wrong number of arguments")
)

// MissingElementError reports an identifier with no bound entry. It is
// a startup error: tables are validated when they are built.
type MissingElementError struct {
	Direction Direction
	Name      string
}

func (e *MissingElementError) Error() string {
	return fmt.Sprintf("bridge: missing %s entry %q", e.Direction, e.Name)
}

func (e *MissingElementError) Unwrap() error { return ErrMissingElement }

// CallError wraps any failure of a dispatched call, including a panic in
// the entry. Calls are never retried.
type CallError struct {
	Name string
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("bridge: call %s failed: %v", e.Name, e.Err)
}

func (e *CallError) Unwrap() []error { return []error{ErrBridgeCall, e.Err} }
