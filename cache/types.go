// Package cache provides byte-oriented block caching for blob reads and
// rendered snapshots, with memory accounted by the resource controller.
package cache

import (
	"context"
)

// CacheKind separates key spaces and tuning.
type CacheKind uint8

const (
	CacheKindUnknown  CacheKind = iota
	CacheKindBlob               // blob store blocks
	CacheKindSnapshot           // rendered panorama snapshots
	CacheKindArchive            // decoded archive records
)

// CacheKey must be stable across processes.
type CacheKey struct {
	Kind CacheKind
	// Key identifies the source: a blob key, a file path, or an
	// encoder identity with packed coordinates.
	Key string
	// Offset is a logical block identifier within the source.
	Offset uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key CacheKey) (b []byte, ok bool)
	// Set caches a block. Implementations may copy or retain; caller must treat b as immutable.
	Set(ctx context.Context, key CacheKey, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key CacheKey) bool)
	// Close releases any resources.
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}

// AdmissionPolicy decides whether a value should be cached.
type AdmissionPolicy interface {
	Admit(key CacheKey, sizeBytes int) bool
}
