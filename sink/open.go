// File: sink/open.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sink

import (
	"fmt"

	"github.com/momentics/isorec/api"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("isorec.sink")

// Options selects and configures a sink.
type Options struct {
	// Kind is "memory", "file" or "sqlite".
	Kind string
	// Path is the directory of a file sink or the database of a sqlite sink.
	Path  string
	Codec string
}

// Open builds the sink described by opts.
func Open(opts Options) (api.ChunkWriter, error) {
	switch opts.Kind {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		codec, err := ParseCodec(opts.Codec)
		if err != nil {
			return nil, api.NewError(api.ErrCodeInvalidArgument, err.Error())
		}
		if opts.Path == "" {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "sink: file sink needs a directory").WithContext("kind", opts.Kind)
		}
		return CreateFile(opts.Path, codec)
	case "sqlite":
		if opts.Path == "" {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "sink: sqlite sink needs a database path").WithContext("kind", opts.Kind)
		}
		return OpenSQLite(opts.Path)
	}
	return nil, api.NewError(api.ErrCodeNotSupported, fmt.Sprintf("sink: unknown kind %q", opts.Kind))
}
