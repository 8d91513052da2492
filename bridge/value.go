// File: bridge/value.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the payload of a Value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindBool
	KindHandle
	KindString
	KindBytes
)

var kindNames = [...]string{"void", "int", "bool", "handle", "string", "bytes"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is the transport-safe form of an argument or result.
type Value struct {
	kind Kind
	n    int64
	s    string
	b    []byte
}

func VoidValue() Value           { return Value{} }
func IntValue(n int64) Value     { return Value{kind: KindInt, n: n} }
func HandleValue(h Handle) Value { return Value{kind: KindHandle, n: int64(h)} }

func BoolValue(v bool) Value {
	if v {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

// StringValue replaces invalid UTF-8 sequences with U+FFFD.
func StringValue(s string) Value {
	return Value{kind: KindString, s: strings.ToValidUTF8(s, "\uFFFD")}
}

// BytesValue copies p.
func BytesValue(p []byte) Value {
	return Value{kind: KindBytes, b: append([]byte(nil), p...)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) expect(k Kind) error {
	if v.kind != k {
		return fmt.Errorf("%w: got %s, want %s", ErrValueKind, v.kind, k)
	}
	return nil
}

func (v Value) AsInt() (int64, error) { return v.n, v.expect(KindInt) }

func (v Value) AsBool() (bool, error) { return v.n != 0, v.expect(KindBool) }

func (v Value) AsHandle() (Handle, error) { return Handle(v.n), v.expect(KindHandle) }

func (v Value) AsString() (string, error) { return v.s, v.expect(KindString) }

func (v Value) AsBytes() ([]byte, error) { return v.b, v.expect(KindBytes) }

// Interface returns the payload as a plain Go value, nil for void.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.n
	case KindBool:
		return v.n != 0
	case KindHandle:
		return Handle(v.n)
	case KindString:
		return v.s
	case KindBytes:
		return v.b
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindVoid:
		return "void"
	case KindString:
		return strconv.Quote(v.s)
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.b))
	case KindHandle:
		return Handle(v.n).String()
	}
	return fmt.Sprint(v.Interface())
}

// CheckArgs verifies the arity and kinds of args.
func CheckArgs(args []Value, kinds ...Kind) error {
	if len(args) != len(kinds) {
		return fmt.Errorf("%w: got %d, want %d", ErrArity, len(args), len(kinds))
	}
	for i, k := range kinds {
		if err := args[i].expect(k); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}
