// File: sink/file.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Append-only chunk file. Layout:
//
//	header:  "ISRC" | version u8 | codec u8 | reserved u16
//	frame:   epoch u32 | rawLen u32 | encodedLen u32 | payload
//
// All integers are little endian.

package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/momentics/isorec/api"
)

const (
	fileMagic       = "ISRC"
	fileVersion     = 1
	fileHeaderSize  = 8
	frameHeaderSize = 12
)

// ErrCorruptFile is returned when a chunk file does not parse.
var ErrCorruptFile = errors.New("sink: corrupt chunk file")

// Segment locates one chunk inside a File.
type Segment struct {
	Offset     int64
	Epoch      uint32
	RawLen     uint32
	EncodedLen uint32
}

func segmentLess(a, b Segment) bool { return a.Offset < b.Offset }

// File is safe for concurrent use.
type File struct {
	mu        sync.Mutex
	f         *os.File
	path      string
	recording string
	codec     Codec
	offset    int64
	index     *btree.BTreeG[Segment]
	closed    bool
}

var _ api.ChunkWriter = (*File)(nil)

// CreateFile starts a new recording file in dir named after a fresh
// recording id.
func CreateFile(dir string, codec Codec) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create directory: %w", err)
	}
	recording := uuid.New().String()
	path := filepath.Join(dir, "isorec-"+recording+".chunks")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: create chunk file: %w", err)
	}
	hdr := make([]byte, fileHeaderSize)
	copy(hdr, fileMagic)
	hdr[4] = fileVersion
	hdr[5] = byte(codec)
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: write header: %w", err)
	}
	log.Infof("recording %s to %s (%s)", recording, path, codec)
	return &File{
		f:         f,
		path:      path,
		recording: recording,
		codec:     codec,
		offset:    fileHeaderSize,
		index:     btree.NewG[Segment](16, segmentLess),
	}, nil
}

// OpenFile opens an existing chunk file and rebuilds its segment index.
// New chunks are appended after the last complete frame.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open chunk file: %w", err)
	}
	hdr := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil || string(hdr[:4]) != fileMagic || hdr[4] != fileVersion {
		f.Close()
		return nil, fmt.Errorf("%w: bad header in %s", ErrCorruptFile, path)
	}
	file := &File{
		f:      f,
		path:   path,
		codec:  Codec(hdr[5]),
		offset: fileHeaderSize,
		index:  btree.NewG[Segment](16, segmentLess),
	}
	file.recording = recordingFromPath(path)
	if err := file.scan(); err != nil {
		f.Close()
		return nil, err
	}
	return file, nil
}

func recordingFromPath(path string) string {
	base := filepath.Base(path)
	const prefix, suffix = "isorec-", ".chunks"
	if len(base) > len(prefix)+len(suffix) && base[:len(prefix)] == prefix && base[len(base)-len(suffix):] == suffix {
		return base[len(prefix) : len(base)-len(suffix)]
	}
	return base
}

func (s *File) scan() error {
	st, err := s.f.Stat()
	if err != nil {
		return err
	}
	size := st.Size()
	hdr := make([]byte, frameHeaderSize)
	for s.offset+frameHeaderSize <= size {
		if _, err := s.f.ReadAt(hdr, s.offset); err != nil {
			return fmt.Errorf("sink: scan %s: %w", s.path, err)
		}
		seg := Segment{
			Offset:     s.offset,
			Epoch:      binary.LittleEndian.Uint32(hdr[0:]),
			RawLen:     binary.LittleEndian.Uint32(hdr[4:]),
			EncodedLen: binary.LittleEndian.Uint32(hdr[8:]),
		}
		end := s.offset + frameHeaderSize + int64(seg.EncodedLen)
		if end > size {
			break
		}
		s.index.ReplaceOrInsert(seg)
		s.offset = end
	}
	if s.offset != size {
		log.Warningf("%s: dropping %d trailing bytes of a torn frame", s.path, size-s.offset)
		if err := s.f.Truncate(s.offset); err != nil {
			return fmt.Errorf("sink: truncate torn frame: %w", err)
		}
	}
	return nil
}

func (s *File) Path() string      { return s.path }
func (s *File) Recording() string { return s.recording }
func (s *File) Codec() Codec      { return s.codec }

// WriteChunk appends p as one frame.
func (s *File) WriteChunk(epoch uint32, p []byte) (int, error) {
	payload, err := s.codec.encode(p)
	if err != nil {
		return 0, fmt.Errorf("sink: encode chunk: %w", err)
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:], epoch)
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(p)))
	binary.LittleEndian.PutUint32(frame[8:], uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, api.ErrSinkClosed
	}
	if _, err := s.f.WriteAt(frame, s.offset); err != nil {
		return 0, fmt.Errorf("sink: append chunk: %w", err)
	}
	s.index.ReplaceOrInsert(Segment{
		Offset:     s.offset,
		Epoch:      epoch,
		RawLen:     uint32(len(p)),
		EncodedLen: uint32(len(payload)),
	})
	s.offset += int64(len(frame))
	return len(p), nil
}

// Segments lists chunks whose frame starts in [from, to). A non-positive
// to means the end of the file.
func (s *File) Segments(from, to int64) []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Segment
	collect := func(seg Segment) bool {
		out = append(out, seg)
		return true
	}
	if to <= 0 {
		s.index.AscendGreaterOrEqual(Segment{Offset: from}, collect)
	} else {
		s.index.AscendRange(Segment{Offset: from}, Segment{Offset: to}, collect)
	}
	return out
}

// ReadChunk returns the decoded payload of the frame at offset.
func (s *File) ReadChunk(offset int64) ([]byte, Segment, error) {
	s.mu.Lock()
	seg, ok := s.index.Get(Segment{Offset: offset})
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, seg, api.ErrSinkClosed
	}
	if !ok {
		return nil, seg, fmt.Errorf("sink: no chunk at offset %d: %w", offset, api.ErrNotFound)
	}
	payload := make([]byte, seg.EncodedLen)
	if _, err := s.f.ReadAt(payload, seg.Offset+frameHeaderSize); err != nil {
		return nil, seg, fmt.Errorf("sink: read chunk: %w", err)
	}
	data, err := s.codec.decode(payload, int(seg.RawLen))
	return data, seg, err
}

// Chunks reads every chunk in file order.
func (s *File) Chunks() ([]Chunk, error) {
	var out []Chunk
	for _, seg := range s.Segments(0, 0) {
		data, _, err := s.ReadChunk(seg.Offset)
		if err != nil {
			return out, err
		}
		out = append(out, Chunk{Epoch: seg.Epoch, Data: data})
	}
	return out, nil
}

// Size returns the number of file bytes written so far.
func (s *File) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("sink: sync: %w", err)
	}
	return s.f.Close()
}
