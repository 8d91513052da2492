package control_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/isorec/api"
	"github.com/momentics/isorec/control"
)

const sampleSettings = `
[storage]
global-buffer-count = 8
global-buffer-size = "64KiB"
thread-buffer-size = "4k"
scavenge-threshold = 2
to-disk = true
flush-interval = "250ms"

[sink]
kind = "file"
path = "/tmp/isorec"
codec = "lz4"
`

func TestParseSettings(t *testing.T) {
	s, err := control.ParseSettings(sampleSettings)
	if err != nil {
		t.Fatal(err)
	}
	cfg := s.Storage.Config()
	if cfg.GlobalBufferCount != 8 || cfg.GlobalBufferSize != 64*1024 || cfg.ThreadBufferSize != 4*1024 {
		t.Fatalf("unexpected sizes: %+v", cfg)
	}
	if !cfg.ToDisk || cfg.FlushInterval != 250*time.Millisecond || cfg.ScavengeThreshold != 2 {
		t.Fatalf("unexpected storage settings: %+v", cfg)
	}
	// untouched keys keep their defaults
	if cfg.ThreadBufferCache != control.DefaultSettings().Storage.ThreadBufferCache {
		t.Errorf("thread buffer cache not defaulted: %d", cfg.ThreadBufferCache)
	}
	opts := s.Sink.Options()
	if opts.Kind != "file" || opts.Path != "/tmp/isorec" || opts.Codec != "lz4" {
		t.Errorf("unexpected sink options: %+v", opts)
	}
	if s.Map()["storage.global-buffer-size"] != "64KiB" {
		t.Errorf("map: %v", s.Map()["storage.global-buffer-size"])
	}
}

func TestParseSettings_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad size":      "[storage]\nglobal-buffer-size = \"lots\"\n",
		"bad duration":  "[storage]\nflush-interval = \"soon\"\n",
		"no path":       "[sink]\nkind = \"sqlite\"\n",
		"unknown sink":  "[sink]\nkind = \"kafka\"\n",
		"unknown codec": "[sink]\ncodec = \"zstd\"\n",
		"small global":  "[storage]\nglobal-buffer-size = \"1k\"\nthread-buffer-size = \"4k\"\n",
	}
	for name, text := range cases {
		if _, err := control.ParseSettings(text); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	_, err := control.ParseSettings("[sink]\nkind = \"kafka\"\n")
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "isorec.toml")
	if _, err := control.LoadSettings(path); err == nil {
		t.Fatal("expected error for missing file")
	}
	if err := os.WriteFile(path, []byte(sampleSettings), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := control.LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Sink.Codec != "lz4" {
		t.Errorf("codec = %q", s.Sink.Codec)
	}
}
