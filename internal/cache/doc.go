// Package cache provides the sharded and disk-backed implementations of
// the public cache.BlockCache interface.
//
// # Sharded cache (RAM)
//
// The ShardedLRUBlockCache distributes entries across 64 shards with a
// per-shard mutex, for callers hitting the cache from many goroutines
// (batch runs replaying archives in parallel).
//
// # Disk cache (L2)
//
// For remote blob stores, DiskBlockCache keeps a persistent second level
// on the local filesystem: async writes off the read path, LRU eviction
// with a configurable size limit, index rebuilt from disk on startup.
package cache
