// File: bridge/proxy/position.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proxy

import "github.com/momentics/isorec/bridge"

// SourcePosition locates a node in host source.
type SourcePosition interface {
	Handle() bridge.Handle
	LineNumber() (int, error)
	OffsetStart() (int, error)
	OffsetEnd() (int, error)
	URI() (string, error)
	NodeDescription() (string, error)
}

type SourcePositionProxy struct {
	base
}

var _ SourcePosition = (*SourcePositionProxy)(nil)

func NewSourcePosition(table *bridge.Table, h bridge.Handle) *SourcePositionProxy {
	return &SourcePositionProxy{base{table: table, handle: h}}
}

func (p *SourcePositionProxy) LineNumber() (int, error) {
	n, err := p.callInt(bridge.GetLineNumber)
	return int(n), err
}

func (p *SourcePositionProxy) OffsetStart() (int, error) {
	n, err := p.callInt(bridge.GetOffsetStart)
	return int(n), err
}

func (p *SourcePositionProxy) OffsetEnd() (int, error) {
	n, err := p.callInt(bridge.GetOffsetEnd)
	return int(n), err
}

func (p *SourcePositionProxy) URI() (string, error) {
	return p.callString(bridge.GetSourceURI)
}

func (p *SourcePositionProxy) NodeDescription() (string, error) {
	return p.callString(bridge.GetNodeDescription)
}
