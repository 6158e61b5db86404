// Package store persists encoded transcript blobs under their cache keys.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/podscribe/internal/cachekey"
	"github.com/hpungsan/podscribe/internal/codec"
	"github.com/hpungsan/podscribe/internal/db"
	"github.com/hpungsan/podscribe/internal/errors"
)

// Store is a durable key/value mapping from cache key to blob.
//
// Get returns a NOT_FOUND error when nothing is stored under key.
// Upsert replaces any existing blob in full; concurrent upserts to the same
// key resolve last-write-wins and readers never see a partial blob.
type Store interface {
	Get(ctx context.Context, key cachekey.Key) (*codec.Blob, error)
	Upsert(ctx context.Context, key cachekey.Key, sourceURL string, b *codec.Blob) error
}

// SQLite is the Store backed by the transcripts table.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite wraps a database opened with db.Init.
func NewSQLite(conn *sql.DB) *SQLite {
	return &SQLite{db: conn, now: time.Now}
}

// DB exposes the underlying handle for listing and maintenance queries.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) Get(ctx context.Context, key cachekey.Key) (*codec.Blob, error) {
	row, err := db.Get(ctx, s.db, key.String())
	if err != nil {
		return nil, err
	}
	return &row.Blob, nil
}

func (s *SQLite) Upsert(ctx context.Context, key cachekey.Key, sourceURL string, b *codec.Blob) error {
	if b == nil {
		return errors.NewInvalidRequest("blob is required")
	}
	now := s.now()
	return db.Upsert(ctx, s.db, &db.Row{
		Key:       key.String(),
		SourceURL: sourceURL,
		Blob:      *b,
		Revision:  NewRevision(now),
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	})
}

// NewRevision returns a ULID identifying one write.
func NewRevision(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Memory is an in-process Store. Contents are lost when the process exits.
type Memory struct {
	mu      sync.RWMutex
	entries map[cachekey.Key]memoryEntry
}

type memoryEntry struct {
	sourceURL string
	blob      codec.Blob
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[cachekey.Key]memoryEntry)}
}

func (m *Memory) Get(ctx context.Context, key cachekey.Key) (*codec.Blob, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFound(key.String())
	}
	b := cloneBlob(e.blob)
	return &b, nil
}

func (m *Memory) Upsert(ctx context.Context, key cachekey.Key, sourceURL string, b *codec.Blob) error {
	if b == nil {
		return errors.NewInvalidRequest("blob is required")
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{sourceURL: sourceURL, blob: cloneBlob(*b)}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// cloneBlob copies the optional field pointers so stored blobs never alias
// caller memory.
func cloneBlob(b codec.Blob) codec.Blob {
	b.Chapters = clonePtr(b.Chapters)
	b.Entities = clonePtr(b.Entities)
	b.Sentiment = clonePtr(b.Sentiment)
	return b
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
