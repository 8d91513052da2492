// File: facade/recorder.go
// Unified facade layer for isorec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Recorder wires the storage engine, its drain service, the sink and the
// control surface behind one type. Producers either run under Go/Run and
// get a private Writer, or call Emit and share one.

package facade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dc0d/onexit"
	"github.com/momentics/isorec/adapters"
	"github.com/momentics/isorec/api"
	"github.com/momentics/isorec/control"
	"github.com/momentics/isorec/internal/threadlocal"
	"github.com/momentics/isorec/pool"
	"github.com/momentics/isorec/sink"
	"github.com/momentics/isorec/storage"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("isorec.facade")

// Version is reported by Recorder.Info.
const Version = "0.3.0"

// sharedThread identifies the Writer behind Emit for goroutines that were
// not started through the Recorder.
const sharedThread pool.ThreadID = 0

// Recorder implements api.GracefulShutdown.
type Recorder struct {
	settings control.Settings
	sink     api.ChunkWriter
	box      *storage.ChannelPostBox
	engine   *storage.Engine
	service  *storage.Service
	hooks    control.ReloadHooks
	control  *adapters.ControlAdapter
	writers  *threadlocal.Local[*storage.Writer]
	started  time.Time

	sharedMu sync.Mutex
	shared   *storage.Writer

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan error
	watcher *control.Watcher
}

var _ api.GracefulShutdown = (*Recorder)(nil)

// New validates settings and builds every component. The drain service
// does not run until Start.
func New(settings control.Settings) (*Recorder, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	cfg := settings.Storage.Config()
	out, err := sink.Open(settings.Sink.Options())
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		settings: settings,
		sink:     out,
		box:      storage.NewChannelPostBox(64),
		writers:  threadlocal.New[*storage.Writer]("isorec.writer"),
	}
	r.engine, err = storage.NewEngine(cfg, out, r.box)
	if err != nil {
		out.Close()
		return nil, err
	}
	r.service = storage.NewService(r.engine, r.box, cfg.FlushInterval)
	r.shared = r.engine.NewWriter(sharedThread)

	r.control = adapters.NewControlAdapter(&r.hooks)
	if err := r.control.SetConfig(settings.Map()); err != nil {
		r.engine.Close()
		return nil, err
	}
	r.hooks.Register(r.apply)
	r.registerProbes()

	onexit.Register(func() {
		if err := r.Shutdown(); err != nil {
			log.Errorf("shutdown on exit: %s", err)
		}
	})
	return r, nil
}

// Open loads settings from a TOML file, builds a Recorder and watches the
// file so that threshold changes apply without a restart.
func Open(path string) (*Recorder, error) {
	settings, err := control.LoadSettings(path)
	if err != nil {
		return nil, err
	}
	r, err := New(settings)
	if err != nil {
		return nil, err
	}
	w, err := control.WatchSettings(path, &r.hooks)
	if err != nil {
		r.Shutdown()
		return nil, fmt.Errorf("facade: watch %s: %w", path, err)
	}
	r.watcher = w
	return r, nil
}

func (r *Recorder) registerProbes() {
	r.control.RegisterDebugProbe("storage.full", func() any { return r.engine.Stats().FullBuffers })
	r.control.RegisterDebugProbe("storage.dead", func() any { return r.engine.Stats().DeadBuffers })
	r.control.RegisterDebugProbe("storage.lost_bytes", func() any { return r.engine.Stats().LostBytes })
	r.control.RegisterDebugProbe("storage.epoch", func() any { return r.engine.Epoch().Counter() })
}

// apply pushes reloadable thresholds into Storage Control. Buffer sizes
// and counts are fixed for the life of the engine.
func (r *Recorder) apply(s control.Settings) {
	c := r.engine.Control()
	cfg := s.Storage.Config()
	if cfg.DiscardThreshold > 0 {
		c.SetDiscardThreshold(cfg.DiscardThreshold)
	}
	c.SetScavengeThreshold(cfg.ScavengeThreshold)
	c.SetToDisk(cfg.ToDisk)
	r.mu.Lock()
	old := r.settings.Storage
	r.settings = s
	r.mu.Unlock()
	if s.Storage.GlobalBufferCount != old.GlobalBufferCount || s.Storage.GlobalBufferSize != old.GlobalBufferSize ||
		s.Storage.ThreadBufferSize != old.ThreadBufferSize {
		log.Warningf("buffer geometry changes take effect on restart")
	}
	log.Infof("settings applied: discard=%d scavenge=%d to-disk=%t",
		c.DiscardThreshold(), c.ScavengeThreshold(), c.ToDisk())
}

// Start runs the drain service in the background. Subsequent calls have no
// effect.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return fmt.Errorf("facade: recorder is shut down: %w", api.ErrSinkClosed)
	}
	if r.running {
		return nil
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan error, 1)
	go func() { r.done <- r.service.Run(ctx) }()
	r.running = true
	r.started = time.Now()
	return nil
}

// Go starts fn as a producer with a Writer of its own. Goroutines fn
// starts itself should go through Go as well; a plain go statement falls
// back to the shared Writer.
func (r *Recorder) Go(fn func()) {
	threadlocal.Go(func() { r.Run(fn) })
}

// Run executes fn on the calling goroutine as a producer. The producer's
// buffer is released for the scavenger when fn returns.
func (r *Recorder) Run(fn func()) {
	w := r.engine.NewWriter(pool.ThreadID(threadlocal.NextID()))
	defer w.Close()
	r.writers.With(w, fn)
}

// Emit records one record for the calling producer. Returns false if the
// record was dropped.
func (r *Recorder) Emit(record []byte) bool {
	if w, ok := r.writers.Get(); ok && w != nil {
		return w.Write(record)
	}
	r.sharedMu.Lock()
	defer r.sharedMu.Unlock()
	return r.shared.Write(record)
}

// Write makes the Recorder usable wherever a record emitter is expected.
func (r *Recorder) Write(record []byte) bool { return r.Emit(record) }

// Writer returns the calling producer's Writer, if it runs under Go or Run.
func (r *Recorder) Writer() (*storage.Writer, bool) {
	w, ok := r.writers.Get()
	return w, ok && w != nil
}

func (r *Recorder) Engine() *storage.Engine     { return r.engine }
func (r *Recorder) Control() api.Control        { return r.control }
func (r *Recorder) Hooks() *control.ReloadHooks { return &r.hooks }
func (r *Recorder) Sink() api.ChunkWriter       { return r.sink }

// Settings returns the settings last applied.
func (r *Recorder) Settings() control.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// Stats returns engine counters and mirrors them into the control metrics.
func (r *Recorder) Stats() api.StorageStats {
	s := r.engine.Stats()
	r.control.SetMetric("storage.full_buffers", s.FullBuffers)
	r.control.SetMetric("storage.dead_buffers", s.DeadBuffers)
	r.control.SetMetric("storage.promoted_bytes", s.PromotedBytes)
	r.control.SetMetric("storage.written_bytes", s.WrittenBytes)
	r.control.SetMetric("storage.lost_bytes", s.LostBytes)
	r.control.SetMetric("storage.lost_buffers", s.LostBuffers)
	r.control.SetMetric("storage.dropped_writes", s.DroppedWrites)
	return s
}

// Info describes the running recording.
func (r *Recorder) Info() api.ServiceInfo {
	info := api.ServiceInfo{Name: "isorec", Version: Version}
	if rec, ok := r.sink.(interface{ Recording() string }); ok {
		info.Recording = rec.Recording()
	}
	r.mu.Lock()
	info.StartedAt = r.started
	r.mu.Unlock()
	return info
}

// Shutdown stops the drain service after a final write, releases every
// buffer and closes the sink. Producers still running afterwards have
// their records dropped. Calling it more than once is a no-op.
func (r *Recorder) Shutdown() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	running, done, watcher := r.running, r.done, r.watcher
	r.running = false
	r.mu.Unlock()

	var errs []error
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.sharedMu.Lock()
	r.shared.Close()
	r.sharedMu.Unlock()
	if running {
		r.cancel()
		if err := <-done; err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	s := r.Stats()
	log.Infof("recorder stopped: %d bytes written, %d bytes lost", s.WrittenBytes, s.LostBytes)
	return errors.Join(errs...)
}
