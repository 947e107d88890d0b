// Package blobstore provides storage abstraction for archived runs and
// memory snapshots.
//
// Store is the interface for reading and writing data blobs (route
// traces, signal logs, snapshots, manifests). Implementations must be
// safe for concurrent use. Keys use forward slashes on every platform.
//
// # Built-in Implementations
//
//   - MemoryStore: In-memory map, for tests and ephemeral runs
//   - LocalStore: Local filesystem with mmap reads and atomic renames
//   - CachingStore: Block-level read cache over any Store
//   - s3.Store: Amazon S3 with range reads and parallel uploads
//   - minio.Store: MinIO and other S3-compatible object stores
//
// # Custom Implementations
//
// Implement the Store interface to support custom storage backends:
//
//	type Store interface {
//	    Open(ctx, key) (Blob, error)            // Open for reading
//	    Create(ctx, key) (WritableBlob, error)  // Create for streaming writes
//	    Put(ctx, key, r) error                  // Atomic write
//	    Delete(ctx, key) error
//	    List(ctx, prefix) iter.Seq2[string, error]
//	    Exists(ctx, key) (bool, error)
//	}
//
// For cloud backends, implement ReadRange for efficient partial reads:
//
//	type Blob interface {
//	    ReadAt(ctx, p, off) (int, error)
//	    ReadRange(ctx, off, length) (io.ReadCloser, error)
//	    Size() int64
//	    Close() error
//	}
package blobstore
