// File: sink/sqlite.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sink

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/momentics/isorec/api"

	_ "modernc.org/sqlite"
)

// SQLite stores chunks as rows of a chunks table keyed by recording and
// sequence number.
type SQLite struct {
	mu        sync.Mutex
	db        *sql.DB
	insert    *sql.Stmt
	recording string
	seq       int64
	closed    bool
}

var _ api.ChunkWriter = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and starts a new
// recording in it.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		recording TEXT NOT NULL,
		seq INTEGER NOT NULL,
		epoch INTEGER NOT NULL,
		data BLOB,
		PRIMARY KEY (recording, seq)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: creating table: %w", err)
	}
	insert, err := db.Prepare("INSERT INTO chunks (recording, seq, epoch, data) VALUES (?, ?, ?, ?)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: preparing insert: %w", err)
	}
	s := &SQLite{db: db, insert: insert, recording: uuid.New().String()}
	log.Infof("recording %s to database %s", s.recording, path)
	return s, nil
}

func (s *SQLite) Recording() string { return s.recording }

func (s *SQLite) WriteChunk(epoch uint32, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, api.ErrSinkClosed
	}
	if _, err := s.insert.Exec(s.recording, s.seq+1, int64(epoch), p); err != nil {
		return 0, fmt.Errorf("sink: inserting chunk: %w", err)
	}
	s.seq++
	return len(p), nil
}

// Chunks returns the chunks of recording in write order. An empty
// recording selects the current one.
func (s *SQLite) Chunks(recording string) ([]Chunk, error) {
	if recording == "" {
		recording = s.recording
	}
	rows, err := s.db.Query("SELECT epoch, data FROM chunks WHERE recording = ? ORDER BY seq", recording)
	if err != nil {
		return nil, fmt.Errorf("sink: querying chunks: %w", err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var (
			epoch int64
			data  []byte
		)
		if err := rows.Scan(&epoch, &data); err != nil {
			return out, fmt.Errorf("sink: scanning chunk: %w", err)
		}
		out = append(out, Chunk{Epoch: uint32(epoch), Data: data})
	}
	return out, rows.Err()
}

// Recordings lists the recordings stored in the database.
func (s *SQLite) Recordings() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT recording FROM chunks ORDER BY recording")
	if err != nil {
		return nil, fmt.Errorf("sink: querying recordings: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return out, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.insert.Close()
	return s.db.Close()
}
