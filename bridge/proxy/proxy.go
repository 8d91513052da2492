// File: bridge/proxy/proxy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proxy

import (
	"github.com/momentics/isorec/bridge"
)

// Required lists the identifiers a guest-to-host table must bind before
// proxies can be built over it.
func Required() []bridge.Id { return bridge.Ids(bridge.GuestToHost) }

// base owns exactly one handle.
type base struct {
	table  *bridge.Table
	handle bridge.Handle
}

func (b base) Handle() bridge.Handle { return b.handle }

func (b base) call(id bridge.Id, args ...bridge.Value) (bridge.Value, error) {
	return b.table.Call(id, append([]bridge.Value{bridge.HandleValue(b.handle)}, args...)...)
}

func (b base) callString(id bridge.Id) (string, error) {
	v, err := b.call(id)
	if err != nil {
		return "", err
	}
	s, err := v.AsString()
	if err != nil {
		return "", &bridge.CallError{Name: id.String(), Err: err}
	}
	return s, nil
}

func (b base) callInt(id bridge.Id) (int64, error) {
	v, err := b.call(id)
	if err != nil {
		return 0, err
	}
	n, err := v.AsInt()
	if err != nil {
		return 0, &bridge.CallError{Name: id.String(), Err: err}
	}
	return n, nil
}

func (b base) callBool(id bridge.Id) (bool, error) {
	v, err := b.call(id)
	if err != nil {
		return false, err
	}
	ok, err := v.AsBool()
	if err != nil {
		return false, &bridge.CallError{Name: id.String(), Err: err}
	}
	return ok, nil
}

func (b base) callHandle(id bridge.Id, args ...bridge.Value) (bridge.Handle, error) {
	v, err := b.call(id, args...)
	if err != nil {
		return bridge.Null, err
	}
	h, err := v.AsHandle()
	if err != nil {
		return bridge.Null, &bridge.CallError{Name: id.String(), Err: err}
	}
	return h, nil
}
