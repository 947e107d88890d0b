package cache

import (
	basecache "github.com/nestward/nestward/cache"
)

// Aliases bridge to the public cache package so the implementations here
// satisfy its BlockCache interface directly.
type (
	CacheKind       = basecache.CacheKind
	CacheKey        = basecache.CacheKey
	BlockCache      = basecache.BlockCache
	AdmissionPolicy = basecache.AdmissionPolicy
	LRUBlockCache   = basecache.LRUBlockCache
)

const (
	CacheKindUnknown  = basecache.CacheKindUnknown
	CacheKindBlob     = basecache.CacheKindBlob
	CacheKindSnapshot = basecache.CacheKindSnapshot
	CacheKindArchive  = basecache.CacheKindArchive
)

// NewLRUBlockCache is re-exported for callers staying inside internal.
var NewLRUBlockCache = basecache.NewLRUBlockCache

// Compile-time checks
var (
	_ BlockCache = (*ShardedLRUBlockCache)(nil)
	_ BlockCache = (*DiskBlockCache)(nil)
)
