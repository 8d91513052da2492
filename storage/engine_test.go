// File: storage/engine_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package storage_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/momentics/isorec/api"
	"github.com/momentics/isorec/fake"
	"github.com/momentics/isorec/pool"
	"github.com/momentics/isorec/sink"
	"github.com/momentics/isorec/storage"
)

func testConfig() storage.Config {
	return storage.Config{
		GlobalBufferCount: 4,
		GlobalBufferSize:  256,
		ThreadBufferSize:  100,
		ThreadBufferCache: 2,
		ScavengeThreshold: 1,
		PromotionRetries:  2,
		LargeRecordLease:  true,
	}
}

func newEngine(t *testing.T, cfg storage.Config, post api.PostBox) (*storage.Engine, *sink.Memory) {
	t.Helper()
	mem := sink.NewMemory()
	e, err := storage.NewEngine(cfg, mem, post)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, mem
}

func records(t *testing.T, mem *sink.Memory) [][]byte {
	t.Helper()
	var out [][]byte
	for _, c := range mem.Chunks() {
		recs, err := storage.DecodeRecords(c.Data)
		if err != nil {
			t.Fatalf("DecodeRecords: %v", err)
		}
		out = append(out, recs...)
	}
	return out
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ThreadBufferSize = cfg.GlobalBufferSize + 1
	_, err := storage.NewEngine(cfg, sink.NewMemory(), nil)
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("err=%v, want ErrInvalidArgument", err)
	}
	if _, err := storage.NewEngine(testConfig(), nil, nil); err == nil {
		t.Fatal("nil sink accepted")
	}
}

func TestEngine_FlushPromotesUnflushed(t *testing.T) {
	e, mem := newEngine(t, testConfig(), nil)
	b := e.AcquireThreadLocal(1)
	if b == nil || b.Size() != 100 {
		t.Fatal("no thread-local buffer of 100 bytes")
	}
	if !b.Write(bytes.Repeat([]byte{1}, 90)) {
		t.Fatal("write of 90 bytes failed")
	}
	if got := e.Flush(b, 0, 20, 1); got != b {
		t.Fatal("Flush returned a different buffer")
	}
	if b.Committed() != 0 || b.Flushed() != 0 {
		t.Fatalf("local positions committed=%d flushed=%d, want 0/0", b.Committed(), b.Flushed())
	}
	if !b.Write(bytes.Repeat([]byte{2}, 20)) {
		t.Fatal("write after flush failed")
	}
	if st := e.Stats(); st.PromotedBytes != 90 || st.LostBytes != 0 {
		t.Fatalf("stats %+v", st)
	}
	n, err := e.Write()
	if err != nil || n != 110 || mem.Len() != 110 {
		t.Fatalf("Write = %d, %v; sink holds %d", n, err, mem.Len())
	}
}

func TestEngine_FlushCarriesSpeculativeBytes(t *testing.T) {
	e, _ := newEngine(t, testConfig(), nil)
	b := e.AcquireThreadLocal(1)
	b.Write(bytes.Repeat([]byte{7}, 50))
	copy(b.Reserve(), "abc")
	if e.Flush(b, 3, 60, 1) != b {
		t.Fatal("Flush returned a different buffer")
	}
	if b.Committed() != 0 || string(b.Reserve()[:3]) != "abc" {
		t.Fatalf("speculative bytes lost: committed=%d head=%q", b.Committed(), b.Reserve()[:3])
	}
}

func TestEngine_FlushLargeRecord(t *testing.T) {
	e, _ := newEngine(t, testConfig(), nil)
	b := e.AcquireThreadLocal(1)
	b.Write([]byte("old"))
	copy(b.Reserve(), "hd")
	lease := e.Flush(b, 2, 500, 1)
	if lease == b || !lease.Leased() || !lease.Transient() || lease.Size() < 502 {
		t.Fatal("expected a transient lease for a large record")
	}
	if string(lease.Reserve()[:2]) != "hd" {
		t.Error("speculative header not transferred to lease")
	}
	if b.Committed() != 0 {
		t.Error("old content not promoted")
	}
	lease.Commit(502)
	e.ReleaseLease(lease, 1)
	if e.Stats().FullBuffers != 1 {
		t.Error("non-empty lease not retired into the full pool")
	}

	cfg := testConfig()
	cfg.LargeRecordLease = false
	e2, _ := newEngine(t, cfg, nil)
	b2 := e2.AcquireThreadLocal(1)
	if e2.Flush(b2, 0, 500, 1) != b2 {
		t.Fatal("Flush without leases must return the original buffer")
	}
}

func TestEngine_FlushNotOwnedPanics(t *testing.T) {
	e, _ := newEngine(t, testConfig(), nil)
	b := e.AcquireThreadLocal(1)
	defer func() {
		if recover() == nil {
			t.Error("expected panic flushing a buffer owned by another thread")
		}
	}()
	e.Flush(b, 0, 1, 2)
}

func TestEngine_WriterRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalBufferCount = 32
	e, mem := newEngine(t, cfg, nil)
	w := e.NewWriter(1)
	for i := 0; i < 100; i++ {
		rec := bytes.Repeat([]byte{byte(i)}, 30)
		if !w.Write(rec) {
			t.Fatalf("record %d dropped", i)
		}
	}
	big := bytes.Repeat([]byte{0xee}, 180)
	if !w.Write(big) {
		t.Fatal("large record dropped")
	}
	w.Close()
	if _, err := e.Write(); err != nil {
		t.Fatal(err)
	}
	seen := make(map[byte]int)
	sawBig := false
	for _, r := range records(t, mem) {
		if bytes.Equal(r, big) {
			sawBig = true
			continue
		}
		if len(r) != 30 {
			t.Fatalf("record of %d bytes", len(r))
		}
		seen[r[0]]++
	}
	if !sawBig {
		t.Error("large record missing")
	}
	for i := 0; i < 100; i++ {
		if seen[byte(i)] != 1 {
			t.Fatalf("record %d seen %d times", i, seen[byte(i)])
		}
	}
	if st := e.Stats(); st.LostBytes != 0 || st.DroppedWrites != 0 {
		t.Errorf("unexpected loss: %+v", st)
	}
	if w.Write([]byte("late")) {
		t.Error("write after Close succeeded")
	}
}

func TestEngine_DiscardOldestUnderPressure(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalBufferCount = 2
	cfg.DiscardThreshold = 1
	e, _ := newEngine(t, cfg, nil)
	w := e.NewWriter(1)
	for i := 0; i < 200; i++ {
		w.Write(bytes.Repeat([]byte{1}, 30))
	}
	st := e.Stats()
	if st.LostBuffers == 0 || st.LostBytes == 0 {
		t.Fatalf("expected discards under pressure, got %+v", st)
	}
	w.Close()
}

func TestEngine_ToDiskNotifiesAndNeverDiscards(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalBufferCount = 2
	cfg.ToDisk = true
	box := &fake.PostBox{}
	e, _ := newEngine(t, cfg, box)
	w := e.NewWriter(1)
	for i := 0; i < 200; i++ {
		w.Write(bytes.Repeat([]byte{1}, 30))
	}
	if msgs := box.Messages(); len(msgs) == 0 || msgs[0] != api.MsgFullBuffer {
		t.Fatal("writer not notified of full buffers")
	}
	st := e.Stats()
	if st.LostBuffers != 0 {
		t.Errorf("disk mode discarded %d buffers", st.LostBuffers)
	}
	if st.LostBytes == 0 {
		t.Error("exhausted disk mode must record promotion loss")
	}
	if e.DiscardOldest(1) != true || e.Stats().FullBuffers != 1 {
		t.Error("DiscardOldest on a non-empty full pool failed")
	}
	w.Close()
}

func TestEngine_DiscardOldestEmpty(t *testing.T) {
	e, _ := newEngine(t, testConfig(), nil)
	if e.DiscardOldest(1) {
		t.Fatal("DiscardOldest on empty full pool returned true")
	}
}

func TestEngine_ReleaseAndScavenge(t *testing.T) {
	box := storage.NewChannelPostBox(4)
	e, mem := newEngine(t, testConfig(), box)
	free := e.Local().FreeCount()
	w := e.NewWriter(1)
	w.Write([]byte("last words"))
	w.Close()
	select {
	case msg := <-box.C():
		if msg != api.MsgDeadBuffer {
			t.Fatalf("got %s, want dead-buffer", msg)
		}
	default:
		t.Fatal("no dead-buffer notification")
	}
	if e.Stats().DeadBuffers != 1 {
		t.Fatal("dead count not incremented")
	}
	if _, err := e.Write(); err != nil {
		t.Fatal(err)
	}
	if e.Stats().DeadBuffers != 0 || e.Local().FreeCount() != free {
		t.Errorf("buffer not scavenged: dead=%d free=%d want %d", e.Stats().DeadBuffers, e.Local().FreeCount(), free)
	}
	recs := records(t, mem)
	if len(recs) != 1 || string(recs[0]) != "last words" {
		t.Errorf("records=%q", recs)
	}
}

func TestEngine_Clear(t *testing.T) {
	e, mem := newEngine(t, testConfig(), nil)
	w := e.NewWriter(1)
	for i := 0; i < 20; i++ {
		w.Write(bytes.Repeat([]byte{3}, 30))
	}
	e.Clear()
	n, err := e.Write()
	if err != nil || n != 0 || mem.Len() != 0 {
		t.Fatalf("Write after Clear = %d, %v, sink=%d", n, err, mem.Len())
	}
	w.Close()
}

func TestEngine_ExcludedWriterIsNotRecorded(t *testing.T) {
	e, mem := newEngine(t, testConfig(), nil)
	w := e.NewWriter(1)
	w.SetExcluded(true)
	w.Write([]byte("secret"))
	if _, err := e.Write(); err != nil {
		t.Fatal(err)
	}
	if mem.Len() != 0 {
		t.Errorf("excluded data written: %d bytes", mem.Len())
	}
	w.Close()
}

func TestEngine_WriteAtSafepoint(t *testing.T) {
	e, mem := newEngine(t, testConfig(), nil)
	func() {
		defer func() {
			if recover() == nil {
				t.Error("WriteAtSafepoint outside a safepoint must panic")
			}
		}()
		e.WriteAtSafepoint()
	}()
	w := e.NewWriter(1)
	w.Write([]byte("at safepoint"))
	var (
		n   int
		err error
	)
	e.AtSafepoint(func() {
		if !e.Safepoint().Active() {
			t.Error("safepoint not active inside AtSafepoint")
		}
		n, err = e.WriteAtSafepoint()
	})
	if err != nil || n == 0 || mem.Len() != n {
		t.Fatalf("WriteAtSafepoint = %d, %v", n, err)
	}
	w.Close()
}

func TestEngine_EpochRotation(t *testing.T) {
	cfg := testConfig()
	cfg.Epochs = true
	e, mem := newEngine(t, cfg, nil)
	w := e.NewWriter(1)
	w.Write([]byte("first"))
	if _, err := e.Write(); err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("second"))
	if _, err := e.Write(); err != nil {
		t.Fatal(err)
	}
	chunks := mem.Chunks()
	if len(chunks) != 2 || chunks[0].Epoch != 0 || chunks[1].Epoch != 1 {
		t.Fatalf("chunks=%+v", chunks)
	}
	if e.Stats().DeadBuffers != 0 {
		t.Error("rolled-over buffer not scavenged")
	}
	w.Close()
}

func TestEngine_ConcurrentProducers(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalBufferCount = 64
	cfg.GlobalBufferSize = 4096
	cfg.ThreadBufferSize = 128
	cfg.ToDisk = true
	box := storage.NewChannelPostBox(16)
	e, mem := newEngine(t, cfg, box)

	const producers, perProducer = 8, 500
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id pool.ThreadID) {
			defer wg.Done()
			w := e.NewWriter(id)
			defer w.Close()
			for i := 0; i < perProducer; i++ {
				rec := []byte{byte(id), byte(i >> 8), byte(i), 0, 0, 0, 0, 0, 0, 0, 0, 0}
				if !w.Write(rec) {
					t.Errorf("producer %d dropped record %d", id, i)
				}
			}
		}(pool.ThreadID(p + 1))
	}
	finished := stop(&wg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-box.C():
				e.Write()
			case <-finished:
				return
			}
		}
	}()
	<-done
	if _, err := e.Write(); err != nil {
		t.Fatal(err)
	}
	seen := make(map[[3]byte]bool)
	for _, r := range records(t, mem) {
		key := [3]byte{r[0], r[1], r[2]}
		if seen[key] {
			t.Fatalf("duplicate record %v", key)
		}
		seen[key] = true
	}
	if len(seen) != producers*perProducer {
		t.Errorf("recorded %d records, want %d (stats %+v)", len(seen), producers*perProducer, e.Stats())
	}
}

func stop(wg *sync.WaitGroup) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	return ch
}

func TestEngine_SinkErrorIsReported(t *testing.T) {
	refused := errors.New("disk full")
	var closed bool
	out := &api.MockChunkWriter{
		WriteChunkFunc: func(uint32, []byte) (int, error) { return 0, refused },
		CloseFunc:      func() error { closed = true; return nil },
	}
	e, err := storage.NewEngine(testConfig(), out, nil)
	if err != nil {
		t.Fatal(err)
	}
	w := e.NewWriter(1)
	w.Write([]byte("never stored"))
	w.Close()
	if _, err := e.Write(); !errors.Is(err, refused) {
		t.Fatalf("Write err = %v, want %v", err, refused)
	}
	if err := e.Close(); !errors.Is(err, refused) && err != nil {
		t.Fatalf("Close err = %v", err)
	}
	if !closed {
		t.Error("sink not closed")
	}
}

func TestEngine_WriteAfterCloseIsDropped(t *testing.T) {
	e, mem := newEngine(t, testConfig(), nil)
	w := e.NewWriter(1)
	if !w.Write([]byte("before")) {
		t.Fatal("record before Close dropped")
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if !e.Closed() {
		t.Fatal("engine not reported closed")
	}
	if w.Write([]byte("after close")) {
		t.Error("record after Close accepted")
	}
	if s := e.Stats(); s.DroppedWrites != 1 {
		t.Errorf("dropped writes = %d, want 1", s.DroppedWrites)
	}
	w.Close()
	if n, err := e.Write(); n != 0 || err != nil {
		t.Errorf("Write on closed engine = %d, %v", n, err)
	}
	got := records(t, mem)
	if len(got) != 1 || string(got[0]) != "before" {
		t.Fatalf("recorded %q, want only \"before\"", got)
	}
}

func TestEngine_CloseWithLiveProducers(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalBufferCount = 16
	cfg.GlobalBufferSize = 4096
	cfg.ToDisk = true
	e, _ := newEngine(t, cfg, nil)

	var wg sync.WaitGroup
	var accepted atomic.Int64
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(id pool.ThreadID) {
			defer wg.Done()
			w := e.NewWriter(id)
			defer w.Close()
			rec := bytes.Repeat([]byte{byte(id)}, 24)
			for w.Write(rec) {
				accepted.Add(1)
			}
		}(pool.ThreadID(p + 1))
	}
	finished := stop(&wg)
	for accepted.Load() < 100 {
		select {
		case <-finished:
			t.Fatalf("producers stopped after %d records", accepted.Load())
		default:
			e.Write()
		}
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	<-finished
}

// Every accepted byte ends up either written or lost, even when the drain
// runs while producers promote.
func TestEngine_AccountingUnderConcurrentDrain(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalBufferCount = 64
	cfg.GlobalBufferSize = 4096
	cfg.ThreadBufferSize = 128
	cfg.ToDisk = true
	e, _ := newEngine(t, cfg, nil)

	const producers, perProducer = 8, 2000
	var wg sync.WaitGroup
	var produced atomic.Uint64
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id pool.ThreadID) {
			defer wg.Done()
			w := e.NewWriter(id)
			defer w.Close()
			var hdr [binary.MaxVarintLen64]byte
			for i := 0; i < perProducer; i++ {
				rec := bytes.Repeat([]byte{byte(id)}, 1+i%40)
				if w.Write(rec) {
					produced.Add(uint64(binary.PutUvarint(hdr[:], uint64(len(rec))) + len(rec)))
				}
			}
		}(pool.ThreadID(p + 1))
	}
	finished := stop(&wg)
	for drained := false; !drained; {
		select {
		case <-finished:
			drained = true
		default:
			if _, err := e.Write(); err != nil {
				t.Fatal(err)
			}
		}
	}
	if _, err := e.Write(); err != nil {
		t.Fatal(err)
	}
	s := e.Stats()
	if got := s.WrittenBytes + s.LostBytes; got != produced.Load() {
		t.Fatalf("written %d + lost %d = %d, want %d produced", s.WrittenBytes, s.LostBytes, got, produced.Load())
	}
}
