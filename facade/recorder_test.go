package facade_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/momentics/isorec/control"
	"github.com/momentics/isorec/facade"
	"github.com/momentics/isorec/sink"
	"github.com/momentics/isorec/storage"
)

func records(t *testing.T, chunks []sink.Chunk) map[string]int {
	t.Helper()
	seen := make(map[string]int)
	for _, c := range chunks {
		recs, err := storage.DecodeRecords(c.Data)
		if err != nil {
			t.Fatalf("decode chunk of epoch %d: %v", c.Epoch, err)
		}
		for _, r := range recs {
			seen[string(r)]++
		}
	}
	return seen
}

func TestRecorderLifecycle(t *testing.T) {
	r, err := facade.New(control.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	const producers, perProducer = 4, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		p := p
		r.Go(func() {
			defer wg.Done()
			if _, ok := r.Writer(); !ok {
				t.Error("producer has no writer")
				return
			}
			for i := 0; i < perProducer; i++ {
				if !r.Emit([]byte(fmt.Sprintf("p%d-%d", p, i))) {
					t.Errorf("record p%d-%d dropped", p, i)
				}
			}
		})
	}
	if _, ok := r.Writer(); ok {
		t.Error("test goroutine should not own a writer")
	}
	if !r.Emit([]byte("shared")) {
		t.Error("shared record dropped")
	}
	wg.Wait()

	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := r.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("Start after Shutdown should fail")
	}

	mem, ok := r.Sink().(*sink.Memory)
	if !ok {
		t.Fatalf("default sink is %T", r.Sink())
	}
	seen := records(t, mem.Chunks())
	if len(seen) != producers*perProducer+1 {
		t.Fatalf("recorded %d distinct records, want %d", len(seen), producers*perProducer+1)
	}
	for rec, n := range seen {
		if n != 1 {
			t.Errorf("record %q recorded %d times", rec, n)
		}
	}
	if s := r.Stats(); s.LostBytes != 0 || s.DroppedWrites != 0 {
		t.Errorf("unexpected loss: %+v", s)
	}
}

func TestRecorderReloadAppliesThresholds(t *testing.T) {
	r, err := facade.New(control.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	s := control.DefaultSettings()
	s.Storage.ScavengeThreshold = 9
	s.Storage.DiscardThreshold = 3
	s.Storage.ToDisk = true
	r.Hooks().TriggerSync(s)

	c := r.Engine().Control()
	if c.ScavengeThreshold() != 9 || c.DiscardThreshold() != 3 || !c.ToDisk() {
		t.Fatalf("control not updated: scavenge=%d discard=%d to-disk=%t",
			c.ScavengeThreshold(), c.DiscardThreshold(), c.ToDisk())
	}
	if got := r.Control().GetConfig()["storage.scavenge-threshold"]; got != 9 {
		t.Errorf("config map has scavenge-threshold %v", got)
	}
	if r.Settings().Storage.ScavengeThreshold != 9 {
		t.Error("settings not recorded")
	}
}

func TestRecorderProbesAndMetrics(t *testing.T) {
	r, err := facade.New(control.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	r.Run(func() {
		r.Emit([]byte("probe"))
	})
	r.Stats()
	stats := r.Control().Stats()
	for _, key := range []string{"debug.storage.full", "debug.storage.dead", "debug.storage.lost_bytes", "storage.written_bytes"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("missing %s in control stats", key)
		}
	}
	if dead := stats["debug.storage.dead"]; dead != int64(1) {
		t.Errorf("dead buffers = %v, want 1 after a producer exit", dead)
	}
}

func TestRecorderRejectsBadSettings(t *testing.T) {
	s := control.DefaultSettings()
	s.Sink.Kind = "tape"
	if _, err := facade.New(s); err == nil {
		t.Fatal("unknown sink kind accepted")
	}
}

func TestRecorderOpenFileSink(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "chunks")
	conf := filepath.Join(dir, "isorec.toml")
	text := fmt.Sprintf("[storage]\nflush-interval = \"5ms\"\n\n[sink]\nkind = \"file\"\npath = %q\ncodec = \"lz4\"\n", out)
	if err := os.WriteFile(conf, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := facade.Open(conf)
	if err != nil {
		t.Fatal(err)
	}
	if r.Info().Recording == "" {
		t.Error("file sink recording id missing")
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.Run(func() {
		for i := 0; i < 50; i++ {
			r.Emit([]byte(fmt.Sprintf("rec-%d", i)))
		}
	})
	time.Sleep(20 * time.Millisecond)
	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}

	matches, err := filepath.Glob(filepath.Join(out, "isorec-*.chunks"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("chunk files = %v (%v)", matches, err)
	}
	f, err := sink.OpenFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	chunks, err := f.Chunks()
	if err != nil {
		t.Fatal(err)
	}
	if seen := records(t, chunks); len(seen) != 50 {
		t.Fatalf("file holds %d records, want 50", len(seen))
	}
}

func TestRecorderEmitAfterShutdownIsDropped(t *testing.T) {
	r, err := facade.New(control.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stopped := make(chan struct{})
	result := make(chan bool, 1)
	r.Go(func() {
		r.Emit([]byte("live"))
		<-stopped
		result <- r.Emit([]byte("late"))
	})
	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	close(stopped)
	if <-result {
		t.Error("producer record accepted after Shutdown")
	}
	if r.Emit([]byte("shared late")) {
		t.Error("shared record accepted after Shutdown")
	}
}
