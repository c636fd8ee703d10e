// Package dircache caches file metadata records by file ID so listing and
// path-resolution callers avoid redundant metadata fetches. The upload
// engine never consults it. Two backends exist: a persistent SQLite store
// and an in-memory map for short-lived processes.
package dircache

import (
	"context"
	"time"

	"github.com/binghezhouke/123/internal/pan"
)

// DefaultTTL bounds how long a cached record is served before callers are
// sent back to the API.
const DefaultTTL = time.Hour

// Cache is a read-through metadata cache keyed by file ID. Get reports a
// miss (ok=false) for absent or expired entries; cache failures degrade to
// misses at the call sites, never to hard errors for the user.
type Cache interface {
	Get(ctx context.Context, fileID int64) (*pan.File, bool, error)
	Put(ctx context.Context, f *pan.File) error
	Invalidate(ctx context.Context, fileID int64) error
	Clear(ctx context.Context) error
	Close() error
}
