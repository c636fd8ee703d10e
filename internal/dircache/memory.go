package dircache

import (
	"context"
	"strconv"
	"time"

	cmap "github.com/orcaman/concurrent-map"

	"github.com/binghezhouke/123/internal/pan"
)

// memoryEntry pairs a record with its fetch time for TTL checks.
type memoryEntry struct {
	file      pan.File
	fetchedAt time.Time
}

// Memory is a process-local Cache for callers that do not want an on-disk
// cache. Safe for concurrent use.
type Memory struct {
	entries cmap.ConcurrentMap
	ttl     time.Duration

	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewMemory creates an in-memory cache. ttl <= 0 takes DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Memory{
		entries: cmap.New(),
		ttl:     ttl,
		now:     time.Now,
	}
}

func memoryKey(fileID int64) string {
	return strconv.FormatInt(fileID, 10)
}

// Get returns the cached record unless it is absent or expired.
func (m *Memory) Get(_ context.Context, fileID int64) (*pan.File, bool, error) {
	v, ok := m.entries.Get(memoryKey(fileID))
	if !ok {
		return nil, false, nil
	}

	entry := v.(memoryEntry)
	if m.now().Sub(entry.fetchedAt) > m.ttl {
		m.entries.Remove(memoryKey(fileID))
		return nil, false, nil
	}

	f := entry.file

	return &f, true, nil
}

// Put stores a copy of the record with the current fetch time.
func (m *Memory) Put(_ context.Context, f *pan.File) error {
	m.entries.Set(memoryKey(f.FileID), memoryEntry{file: *f, fetchedAt: m.now()})
	return nil
}

// Invalidate drops one record.
func (m *Memory) Invalidate(_ context.Context, fileID int64) error {
	m.entries.Remove(memoryKey(fileID))
	return nil
}

// Clear drops every record.
func (m *Memory) Clear(_ context.Context) error {
	for _, key := range m.entries.Keys() {
		m.entries.Remove(key)
	}

	return nil
}

// Close is a no-op for the memory backend.
func (m *Memory) Close() error {
	return nil
}
