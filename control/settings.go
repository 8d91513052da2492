// File: control/settings.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/momentics/isorec/api"
	"github.com/momentics/isorec/sink"
	"github.com/momentics/isorec/storage"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("isorec.control")

// Size is a byte count written as "512KiB", "8k" or a plain number.
type Size int

func (s *Size) UnmarshalText(text []byte) error {
	n, err := units.RAMInBytes(string(text))
	if err != nil {
		return err
	}
	*s = Size(n)
	return nil
}

func (s Size) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(s))), nil
}

// Duration is written as "250ms", "1s" and so on.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Settings is the recorder configuration file.
type Settings struct {
	Storage StorageSettings `toml:"storage"`
	Sink    SinkSettings    `toml:"sink"`
	Log     LogSettings     `toml:"log"`
}

type StorageSettings struct {
	GlobalBufferCount int      `toml:"global-buffer-count"`
	GlobalBufferSize  Size     `toml:"global-buffer-size"`
	ThreadBufferSize  Size     `toml:"thread-buffer-size"`
	ThreadBufferCache int      `toml:"thread-buffer-cache"`
	DiscardThreshold  int      `toml:"discard-threshold"`
	ScavengeThreshold int      `toml:"scavenge-threshold"`
	PromotionRetries  int      `toml:"promotion-retries"`
	ToDisk            bool     `toml:"to-disk"`
	Epochs            bool     `toml:"epochs"`
	LargeRecordLease  bool     `toml:"large-record-lease"`
	FlushInterval     Duration `toml:"flush-interval"`
	PinDrain          bool     `toml:"pin-drain"`
	DrainCPU          int      `toml:"drain-cpu"`
}

type SinkSettings struct {
	Kind  string `toml:"kind"`
	Path  string `toml:"path"`
	Codec string `toml:"codec"`
}

type LogSettings struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Configure applies the log section to the commonlog backend. An empty
// path logs to stderr.
func (l LogSettings) Configure() {
	var path *string
	if l.Path != "" {
		path = &l.Path
	}
	commonlog.Configure(l.Verbosity, path)
}

// DefaultSettings mirrors storage.DefaultConfig with an in-memory sink.
func DefaultSettings() Settings {
	c := storage.DefaultConfig()
	return Settings{
		Storage: StorageSettings{
			GlobalBufferCount: c.GlobalBufferCount,
			GlobalBufferSize:  Size(c.GlobalBufferSize),
			ThreadBufferSize:  Size(c.ThreadBufferSize),
			ThreadBufferCache: c.ThreadBufferCache,
			DiscardThreshold:  c.DiscardThreshold,
			ScavengeThreshold: c.ScavengeThreshold,
			PromotionRetries:  c.PromotionRetries,
			ToDisk:            c.ToDisk,
			Epochs:            c.Epochs,
			LargeRecordLease:  c.LargeRecordLease,
			FlushInterval:     Duration(c.FlushInterval),
			PinDrain:          c.PinDrain,
			DrainCPU:          c.DrainCPU,
		},
		Sink: SinkSettings{Kind: "memory"},
		Log:  LogSettings{Verbosity: 1},
	}
}

// Config converts to the engine configuration.
func (s StorageSettings) Config() storage.Config {
	return storage.Config{
		GlobalBufferCount: s.GlobalBufferCount,
		GlobalBufferSize:  int(s.GlobalBufferSize),
		ThreadBufferSize:  int(s.ThreadBufferSize),
		ThreadBufferCache: s.ThreadBufferCache,
		DiscardThreshold:  s.DiscardThreshold,
		ScavengeThreshold: s.ScavengeThreshold,
		PromotionRetries:  s.PromotionRetries,
		ToDisk:            s.ToDisk,
		Epochs:            s.Epochs,
		LargeRecordLease:  s.LargeRecordLease,
		FlushInterval:     time.Duration(s.FlushInterval),
		PinDrain:          s.PinDrain,
		DrainCPU:          s.DrainCPU,
	}
}

// Options converts to sink options.
func (s SinkSettings) Options() sink.Options {
	return sink.Options{Kind: s.Kind, Path: s.Path, Codec: s.Codec}
}

// Validate reports the first setting the recorder cannot run with.
func (s Settings) Validate() error {
	if err := s.Storage.Config().Validate(); err != nil {
		return err
	}
	switch s.Sink.Kind {
	case "memory", "":
	case "file", "sqlite":
		if s.Sink.Path == "" {
			return api.NewError(api.ErrCodeInvalidArgument, "control: sink path is required").
				WithContext("kind", s.Sink.Kind)
		}
	default:
		return api.NewError(api.ErrCodeInvalidArgument, "control: unknown sink kind").
			WithContext("kind", s.Sink.Kind)
	}
	if _, err := sink.ParseCodec(s.Sink.Codec); err != nil {
		return api.NewError(api.ErrCodeInvalidArgument, err.Error()).WithContext("codec", s.Sink.Codec)
	}
	return nil
}

// ParseSettings decodes TOML text over the defaults and validates it.
func ParseSettings(text string) (Settings, error) {
	s := DefaultSettings()
	md, err := toml.Decode(text, &s)
	if err != nil {
		return s, fmt.Errorf("control: parse settings: %w", err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		log.Warningf("ignoring unknown settings: %s", strings.Join(names, ", "))
	}
	return s, s.Validate()
}

// LoadSettings reads and validates the settings file at path.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("cannot read %s: %w", path, err)
	}
	s, err := ParseSettings(string(data))
	if err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Map flattens the runtime-tunable settings for a ConfigStore.
func (s Settings) Map() map[string]any {
	return map[string]any{
		"storage.global-buffer-count": s.Storage.GlobalBufferCount,
		"storage.global-buffer-size":  units.BytesSize(float64(s.Storage.GlobalBufferSize)),
		"storage.thread-buffer-size":  units.BytesSize(float64(s.Storage.ThreadBufferSize)),
		"storage.discard-threshold":   s.Storage.DiscardThreshold,
		"storage.scavenge-threshold":  s.Storage.ScavengeThreshold,
		"storage.to-disk":             s.Storage.ToDisk,
		"sink.kind":                   s.Sink.Kind,
		"log.verbosity":               s.Log.Verbosity,
	}
}
