// File: sink/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sink

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec compresses chunk payloads of a File sink.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecLZ4
	CodecXZ
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecXZ:
		return "xz"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec accepts "", "none", "lz4" and "xz".
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "xz":
		return CodecXZ, nil
	}
	return 0, fmt.Errorf("sink: unknown codec %q", s)
}

func (c Codec) encode(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch c {
	case CodecNone:
		return p, nil
	case CodecLZ4:
		w = lz4.NewWriter(&buf)
	case CodecXZ:
		xw, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		w = xw
	default:
		return nil, fmt.Errorf("sink: encode with %s", c)
	}
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Codec) decode(p []byte, rawLen int) ([]byte, error) {
	var r io.Reader
	switch c {
	case CodecNone:
		return p, nil
	case CodecLZ4:
		r = lz4.NewReader(bytes.NewReader(p))
	case CodecXZ:
		xr, err := xz.NewReader(bytes.NewReader(p))
		if err != nil {
			return nil, err
		}
		r = xr
	default:
		return nil, fmt.Errorf("sink: decode with %s", c)
	}
	out := make([]byte, rawLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("sink: decode %s payload: %w", c, err)
	}
	return out, nil
}
