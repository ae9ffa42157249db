// Package metadata provides the lifecycle.MetadataStore implementations:
// PostgreSQL for production, Redis as a lighter alternative, and an
// in-memory store for development and tests.
package metadata

import (
	"context"
	"sort"
	"sync"
	"time"

	"tmpshare/internal/lifecycle"
)

// MemoryStore keeps records in a map guarded by a RWMutex. It is not
// durable and exists for local runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]lifecycle.FileRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]lifecycle.FileRecord)}
}

// Insert adds a pending record.
func (m *MemoryStore) Insert(_ context.Context, rec lifecycle.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[rec.FileID]; ok {
		return lifecycle.ErrAlreadyExists
	}
	rec = copyRecord(rec)
	rec.CreatedAt = unixTime(rec.CreatedAt.Unix())
	m.files[rec.FileID] = rec
	return nil
}

// Get returns a copy of the record.
func (m *MemoryStore) Get(_ context.Context, fileID string) (lifecycle.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[fileID]
	if !ok {
		return lifecycle.FileRecord{}, lifecycle.ErrNotFound
	}
	return copyRecord(rec), nil
}

// Arm sets both timestamps under the write lock if the record is pending.
func (m *MemoryStore) Arm(_ context.Context, fileID string, firstDownloadAt, expireAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[fileID]
	if !ok || rec.FirstDownloadAt != nil {
		return false, nil
	}
	first, exp := unixTime(firstDownloadAt.Unix()), unixTime(expireAt.Unix())
	rec.FirstDownloadAt = &first
	rec.ExpireAt = &exp
	m.files[fileID] = rec
	return true, nil
}

// Delete removes the record if present.
func (m *MemoryStore) Delete(_ context.Context, fileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[fileID]
	delete(m.files, fileID)
	return ok, nil
}

// ListExpired returns armed records with ExpireAt <= now, oldest first.
func (m *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]lifecycle.FileRecord, error) {
	cutoff := now.Unix()
	m.mu.RLock()
	var out []lifecycle.FileRecord
	for _, rec := range m.files {
		if rec.ExpireAt != nil && rec.ExpireAt.Unix() <= cutoff {
			out = append(out, copyRecord(rec))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpireAt.Before(*out[j].ExpireAt) })
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

func copyRecord(rec lifecycle.FileRecord) lifecycle.FileRecord {
	out := rec
	if rec.FirstDownloadAt != nil {
		t := *rec.FirstDownloadAt
		out.FirstDownloadAt = &t
	}
	if rec.ExpireAt != nil {
		t := *rec.ExpireAt
		out.ExpireAt = &t
	}
	return out
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
