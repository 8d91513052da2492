// File: bridge/entry/event.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package entry

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/momentics/isorec/bridge"
)

// Emitter receives encoded compilation events. storage.Writer satisfies it.
type Emitter interface {
	Write(record []byte) bool
}

// CompilationEvent is recorded once per DoCompile.
type CompilationEvent struct {
	ID         string `cbor:"1,keyasint"`
	Compilable string `cbor:"2,keyasint"`
	CodeSize   int    `cbor:"3,keyasint,omitempty"`
	FrameSize  int    `cbor:"4,keyasint,omitempty"`
	Nodes      int    `cbor:"5,keyasint,omitempty"`
	Cancelled  bool   `cbor:"6,keyasint,omitempty"`
	Failed     bool   `cbor:"7,keyasint,omitempty"`
	Reason     string `cbor:"8,keyasint,omitempty"`
}

func (e CompilationEvent) Encode() ([]byte, error) {
	return bridge.MarshalBytes(e)
}

func DecodeEvent(p []byte) (CompilationEvent, error) {
	var e CompilationEvent
	err := cbor.Unmarshal(p, &e)
	return e, err
}
