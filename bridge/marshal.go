// File: bridge/marshal.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode encodes canonically so equal payloads have equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalBytes encodes v as canonical CBOR.
func MarshalBytes(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// Marshal encodes v into a byte-array Value.
func Marshal(v any) (Value, error) {
	data, err := cborEncMode.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("bridge: marshal %T: %w", v, err)
	}
	return Value{kind: KindBytes, b: data}, nil
}

// Unmarshal decodes a byte-array Value into out.
func Unmarshal(v Value, out any) error {
	data, err := v.AsBytes()
	if err != nil {
		return err
	}
	if err := cbor.Unmarshal(data, out); err != nil {
		return fmt.Errorf("bridge: unmarshal %T: %w", out, err)
	}
	return nil
}

// Options is the wire form of a compiler option map.
type Options map[string]any

// MarshalOptions encodes an option map. A nil map encodes as empty.
func MarshalOptions(o Options) (Value, error) {
	if o == nil {
		o = Options{}
	}
	return Marshal(o)
}

// UnmarshalOptions decodes an option map. An empty byte array yields an
// empty map.
func UnmarshalOptions(v Value) (Options, error) {
	data, err := v.AsBytes()
	if err != nil {
		return nil, err
	}
	o := Options{}
	if len(data) == 0 {
		return o, nil
	}
	if err := cbor.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("bridge: unmarshal options: %w", err)
	}
	return o, nil
}
