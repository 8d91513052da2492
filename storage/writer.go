// File: storage/writer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package storage

import (
	"encoding/binary"
	"errors"

	"github.com/momentics/isorec/pool"
)

// ErrTruncatedRecord is returned by DecodeRecords for a chunk that ends
// inside a record.
var ErrTruncatedRecord = errors.New("storage: truncated record")

// Writer is the producer side for one thread. It owns a thread-local buffer
// and frames each record as a uvarint length followed by the payload.
// A Writer must not be used concurrently.
type Writer struct {
	e        *Engine
	id       pool.ThreadID
	buf      *pool.Buffer
	shelved  *pool.Buffer
	excluded bool
	closed   bool
	hdr      [binary.MaxVarintLen64]byte
}

// NewWriter creates the producer side for thread id. The buffer is
// acquired lazily on the first record.
func (e *Engine) NewWriter(id pool.ThreadID) *Writer {
	return &Writer{e: e, id: id}
}

func (w *Writer) ID() pool.ThreadID { return w.id }

// SetExcluded marks the producer's data as not to be recorded.
func (w *Writer) SetExcluded(v bool) {
	w.excluded = v
	if w.buf == nil {
		return
	}
	if v {
		w.buf.SetExcluded()
	} else {
		w.buf.ClearExcluded()
	}
}

// Write appends one record. Returns false if the record was dropped.
func (w *Writer) Write(record []byte) bool {
	if w.closed {
		return false
	}
	w.e.safepoint.enter()
	defer w.e.safepoint.leave()
	if w.e.closed.Load() {
		w.buf, w.shelved = nil, nil
		return w.drop()
	}

	if w.buf != nil && w.e.cfg.Epochs && w.buf.Epoch() != w.e.epoch.Counter() {
		w.e.Release(w.buf, w.id)
		w.buf = nil
	}
	if w.buf == nil && !w.acquire() {
		return w.drop()
	}
	hdr := binary.PutUvarint(w.hdr[:], uint64(len(record)))
	b := w.buf
	if hdr > b.FreeSize() {
		if b = w.flush(b, 0, hdr); b == nil {
			return w.drop()
		}
	}
	copy(b.Reserve(), w.hdr[:hdr])
	if hdr+len(record) > b.FreeSize() {
		if b = w.flush(b, hdr, len(record)); b == nil {
			return w.drop()
		}
	}
	copy(b.Reserve()[hdr:], record)
	b.Commit(hdr + len(record))
	if b.Leased() {
		w.e.ReleaseLease(b, w.id)
		w.buf, w.shelved = w.shelved, nil
	}
	return true
}

func (w *Writer) acquire() bool {
	if w.buf = w.e.AcquireThreadLocal(w.id); w.buf == nil {
		return false
	}
	if w.excluded {
		w.buf.SetExcluded()
	}
	return true
}

// flush returns a buffer with room for used+requested bytes, or nil.
func (w *Writer) flush(b *pool.Buffer, used, requested int) *pool.Buffer {
	leased := b.Leased()
	next := w.e.Flush(b, used, requested, w.id)
	if next != b && !leased {
		w.shelved = b
	}
	w.buf = next
	if next == nil {
		w.buf, w.shelved = w.shelved, nil
		return nil
	}
	if next.FreeSize() < used+requested {
		return nil
	}
	return next
}

func (w *Writer) drop() bool {
	w.e.stats.dropped.Add(1)
	return false
}

// Close releases the thread-local buffer as a thread exit would. After
// Engine.Close the buffers are gone and Close only marks the Writer.
func (w *Writer) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.e.safepoint.enter()
	defer w.e.safepoint.leave()
	if w.e.closed.Load() {
		w.buf, w.shelved = nil, nil
		return
	}
	if w.shelved != nil {
		if w.buf != nil {
			w.e.ReleaseLease(w.buf, w.id)
		}
		w.buf, w.shelved = w.shelved, nil
	}
	if w.buf != nil {
		w.e.Release(w.buf, w.id)
		w.buf = nil
	}
}

// DecodeRecords splits a drained chunk into the records a Writer framed.
func DecodeRecords(p []byte) ([][]byte, error) {
	var out [][]byte
	for len(p) > 0 {
		n, k := binary.Uvarint(p)
		if k <= 0 || uint64(len(p)-k) < n {
			return out, ErrTruncatedRecord
		}
		out = append(out, p[k:k+int(n)])
		p = p[k+int(n):]
	}
	return out, nil
}
