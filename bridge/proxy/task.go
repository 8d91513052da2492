// File: bridge/proxy/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proxy

import "github.com/momentics/isorec/bridge"

// CompilationTask lets the compiler poll the host for cancellation.
type CompilationTask interface {
	Handle() bridge.Handle
	IsCancelled() (bool, error)
	IsLastTier() (bool, error)
}

type CompilationTaskProxy struct {
	base
}

var _ CompilationTask = (*CompilationTaskProxy)(nil)

func NewCompilationTask(table *bridge.Table, h bridge.Handle) *CompilationTaskProxy {
	return &CompilationTaskProxy{base{table: table, handle: h}}
}

func (p *CompilationTaskProxy) IsCancelled() (bool, error) {
	return p.callBool(bridge.IsCancelled)
}

func (p *CompilationTaskProxy) IsLastTier() (bool, error) {
	return p.callBool(bridge.IsLastTier)
}
