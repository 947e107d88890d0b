package blobstore

import (
	"context"
	"errors"
	"io"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/nestward/nestward/cache"
)

// CachingStore wraps a Store and adds block-level read caching.
//
// Reads are served from the block cache where possible; misses are
// fetched from the inner store in coalesced runs. Writes pass through
// and invalidate any cached blocks for the key.
type CachingStore struct {
	inner     Store
	cache     cache.BlockCache
	blockSize int64
}

// NewCachingStore creates a new CachingStore.
// blockSize defaults to 4KB if <= 0.
func NewCachingStore(inner Store, blockCache cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = 4096
	}
	return &CachingStore{
		inner:     inner,
		cache:     blockCache,
		blockSize: blockSize,
	}
}

// Open opens a blob whose reads go through the block cache.
func (s *CachingStore) Open(ctx context.Context, key string) (Blob, error) {
	b, err := s.inner.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{
		inner:     b,
		cache:     s.cache,
		key:       key,
		blockSize: s.blockSize,
	}, nil
}

// Create passes through to the inner store. Cached blocks for the key
// are invalidated so readers opened after the write see fresh data.
func (s *CachingStore) Create(ctx context.Context, key string) (WritableBlob, error) {
	s.invalidate(key)
	return s.inner.Create(ctx, key)
}

// Put writes through to the inner store, invalidating cached blocks.
func (s *CachingStore) Put(ctx context.Context, key string, r io.Reader) error {
	s.invalidate(key)
	return s.inner.Put(ctx, key, r)
}

// Delete removes the blob and its cached blocks.
func (s *CachingStore) Delete(ctx context.Context, key string) error {
	s.invalidate(key)
	return s.inner.Delete(ctx, key)
}

// List delegates to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return s.inner.List(ctx, prefix)
}

// Exists delegates to the inner store.
func (s *CachingStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.inner.Exists(ctx, key)
}

func (s *CachingStore) invalidate(key string) {
	s.cache.Invalidate(func(k cache.CacheKey) bool {
		return k.Kind == cache.CacheKindBlob && k.Key == key
	})
}

// CachingBlob wraps a Blob and serves reads from the block cache.
type CachingBlob struct {
	inner     Blob
	cache     cache.BlockCache
	key       string
	blockSize int64
}

func (b *CachingBlob) Close() error {
	return b.inner.Close()
}

func (b *CachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *CachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	startBlock := off / b.blockSize
	endBlock := (off + int64(len(p)) - 1) / b.blockSize

	// Fetch contiguous runs of missing blocks up front so each backend
	// round trip covers as many blocks as possible.
	if err := b.fillCache(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	totalRead := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		blkStart := blk * b.blockSize

		// Intersection of this block with the requested range.
		intersectStart := max(blkStart, off)
		intersectEnd := min(blkStart+b.blockSize, off+int64(len(p)))
		if intersectEnd <= intersectStart {
			continue
		}

		blockData, err := b.fetchBlock(ctx, blk)
		if err != nil {
			return totalRead, err
		}

		srcOffset := intersectStart - blkStart
		if srcOffset >= int64(len(blockData)) {
			break // past the end of the blob
		}
		copySize := intersectEnd - intersectStart
		if srcOffset+copySize > int64(len(blockData)) {
			copySize = int64(len(blockData)) - srcOffset
		}

		dstOffset := intersectStart - off
		n := copy(p[dstOffset:dstOffset+copySize], blockData[srcOffset:])
		totalRead += n
	}

	if totalRead < len(p) {
		return totalRead, io.EOF
	}
	return totalRead, nil
}

// fillCache loads the missing blocks in [startBlock, endBlock] into the
// cache, coalescing contiguous misses into single backend reads.
func (b *CachingBlob) fillCache(ctx context.Context, startBlock, endBlock int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	type run struct {
		start, count int64
	}
	var missing []run

	runStart := int64(-1)
	runCount := int64(0)
	for blk := startBlock; blk <= endBlock; blk++ {
		if _, ok := b.cache.Get(ctx, b.blockKey(blk)); ok {
			if runStart != -1 {
				missing = append(missing, run{runStart, runCount})
				runStart = -1
				runCount = 0
			}
			continue
		}
		if runStart == -1 {
			runStart = blk
			runCount = 1
		} else {
			runCount++
		}
	}
	if runStart != -1 {
		missing = append(missing, run{runStart, runCount})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

	for _, r := range missing {
		g.Go(func() error {
			byteStart := r.start * b.blockSize
			byteSize := r.count * b.blockSize

			size := b.Size()
			if byteStart >= size {
				return nil
			}
			if byteStart+byteSize > size {
				byteSize = size - byteStart
			}

			buf := make([]byte, byteSize)
			n, err := b.inner.ReadAt(gctx, buf, byteStart)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if n == 0 {
				return nil
			}
			valid := buf[:n]

			for i := int64(0); i < r.count; i++ {
				blockStart := i * b.blockSize
				if blockStart >= int64(len(valid)) {
					break
				}
				blockEnd := min(blockStart+b.blockSize, int64(len(valid)))

				// Copy so the cache never pins the whole run buffer.
				block := make([]byte, blockEnd-blockStart)
				copy(block, valid[blockStart:blockEnd])

				b.cache.Set(gctx, b.blockKey(r.start+i), block)
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *CachingBlob) fetchBlock(ctx context.Context, blk int64) ([]byte, error) {
	key := b.blockKey(blk)

	if data, ok := b.cache.Get(ctx, key); ok {
		return data, nil
	}

	buf := make([]byte, b.blockSize)
	n, err := b.inner.ReadAt(ctx, buf, blk*b.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	valid := buf[:n]
	if n > 0 {
		b.cache.Set(ctx, key, valid)
	}
	return valid, nil
}

func (b *CachingBlob) blockKey(blk int64) cache.CacheKey {
	return cache.CacheKey{
		Kind:   cache.CacheKindBlob,
		Key:    b.key,
		Offset: uint64(blk),
	}
}

// ReadRange serves the range through the block cache via ReadAt.
func (b *CachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	return io.NopCloser(&cachedSectionReader{blob: b, ctx: ctx, off: off, limit: off + length}), nil
}

// cachedSectionReader adapts CachingBlob.ReadAt to io.Reader.
type cachedSectionReader struct {
	blob  *CachingBlob
	ctx   context.Context
	off   int64
	limit int64
}

func (r *cachedSectionReader) Read(p []byte) (n int, err error) {
	if r.off >= r.limit {
		return 0, io.EOF
	}
	if remaining := r.limit - r.off; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err = r.blob.ReadAt(r.ctx, p, r.off)
	r.off += int64(n)
	return
}
