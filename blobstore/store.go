package blobstore

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for reading and writing immutable data blobs
// (run archives, memory snapshots, manifests).
//
// Keys use forward slashes regardless of platform, e.g.
// "agents/a1/runs/r1/trace.nwt". Implementations must be safe for
// concurrent use.
type Store interface {
	// Open opens a blob for reading.
	// Returns ErrNotFound if the key does not exist.
	Open(ctx context.Context, key string) (Blob, error)

	// Create opens a blob for streaming writes. The blob becomes
	// visible to readers only after Close returns nil.
	Create(ctx context.Context, key string) (WritableBlob, error)

	// Put writes a blob atomically from r, replacing any existing blob.
	Put(ctx context.Context, key string, r io.Reader) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, key string) error

	// List yields all keys under prefix in lexical order.
	List(ctx context.Context, prefix string) iter.Seq2[string, error]

	// Exists reports whether a blob exists without opening it.
	Exists(ctx context.Context, key string) (bool, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at offset off. It returns
	// io.EOF when fewer than len(p) bytes remain.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// ReadRange returns a reader over [off, off+length), clamped to the
	// blob size. The caller must close the returned reader.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)

	// Size returns the size of the blob in bytes.
	Size() int64

	io.Closer
}

// WritableBlob is a streaming write handle returned by Store.Create.
type WritableBlob interface {
	io.WriteCloser

	// Sync flushes buffered data to stable storage where the backend
	// supports it. For object stores data is only durable after Close.
	Sync() error
}

// Mappable is an optional interface for Blobs that expose their contents
// as a single byte slice without copying.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// ReadAll opens the blob at key and reads it fully.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	b, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	if m, ok := b.(Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	buf := make([]byte, b.Size())
	n, err := b.ReadAt(ctx, buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if int64(n) != b.Size() {
		return nil, fmt.Errorf("blobstore: short read of %q: %d of %d bytes", key, n, b.Size())
	}
	return buf, nil
}
