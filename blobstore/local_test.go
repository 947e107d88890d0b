package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectKeys(t *testing.T, s Store, prefix string) []string {
	t.Helper()

	var keys []string
	for key, err := range s.List(context.Background(), prefix) {
		require.NoError(t, err)
		keys = append(keys, key)
	}
	return keys
}

func TestLocalStore_Lifecycle(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	// 1. Create a blob
	key := "runs/run-001/trace.bin"
	data := []byte("hello world, this is a trace blob")

	w, err := store.Create(ctx, key)
	require.NoError(t, err)

	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, w.Close())

	// Verify file exists on disk at the mapped path
	_, err = os.Stat(filepath.Join(store.Root(), "runs", "run-001", "trace.bin"))
	require.NoError(t, err)

	// 2. Open and ReadAt
	blob, err := store.Open(ctx, key)
	require.NoError(t, err)
	defer blob.Close()

	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err = blob.ReadAt(ctx, buf, 6) // "world"
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	// 3. ReadRange
	r, err := blob.ReadRange(ctx, 19, 4) // "this"
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, "this", string(content))

	// 4. Exists / List
	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Put(ctx, "runs/run-001/signals.bin", bytes.NewReader([]byte("sig"))))
	require.Equal(t, []string{"runs/run-001/signals.bin", "runs/run-001/trace.bin"}, collectKeys(t, store, "runs/"))

	// 5. Delete
	require.NoError(t, store.Delete(ctx, key))
	require.Equal(t, []string{"runs/run-001/signals.bin"}, collectKeys(t, store, ""))

	_, err = store.Open(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting again is not an error.
	require.NoError(t, store.Delete(ctx, key))
}

func TestLocalStore_PutReplaces(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "manifest.json", strings.NewReader("v1")))
	require.NoError(t, store.Put(ctx, "manifest.json", strings.NewReader("version-2")))

	got, err := ReadAll(ctx, store, "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "version-2", string(got))
}

func TestLocalStore_ListSkipsTempFiles(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a.bin", strings.NewReader("a")))

	// An in-flight Create leaves a temp file that must stay invisible.
	w, err := store.Create(ctx, "b.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.bin"}, collectKeys(t, store, ""))

	ok, err := store.Exists(ctx, "b.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.Close())
	assert.Equal(t, []string{"a.bin", "b.bin"}, collectKeys(t, store, ""))
}

func TestLocalStore_InvalidKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "/abs", "a//b", "a/./b", "../escape", "a/../../b"} {
		_, err := store.Open(ctx, key)
		assert.Error(t, err, "key %q", key)

		err = store.Put(ctx, key, strings.NewReader("x"))
		assert.Error(t, err, "key %q", key)
	}
}

func TestLocalStore_ReadRangeBoundaries(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("0123456789")
	require.NoError(t, store.Put(ctx, "boundary.bin", bytes.NewReader(data)))

	blob, err := store.Open(ctx, "boundary.bin")
	require.NoError(t, err)
	defer blob.Close()

	// Full range
	r, err := blob.ReadRange(ctx, 0, 10)
	require.NoError(t, err)
	content, _ := io.ReadAll(r)
	r.Close()
	require.True(t, bytes.Equal(data, content))

	// Range past end is clamped
	r, err = blob.ReadRange(ctx, 8, 5)
	require.NoError(t, err)
	content, err = io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "89", string(content))
	r.Close()

	// Offset past EOF yields an empty reader
	r, err = blob.ReadRange(ctx, 20, 5)
	require.NoError(t, err)
	content, err = io.ReadAll(r)
	require.NoError(t, err)
	require.Empty(t, content)
	r.Close()

	// ReadAt past EOF
	buf := make([]byte, 4)
	n, err := blob.ReadAt(ctx, buf, 20)
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, n)

	// Short ReadAt at the tail
	n, err = blob.ReadAt(ctx, buf, 8)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 2, n)
	require.Equal(t, "89", string(buf[:n]))
}

func TestLocalStore_ZeroCopyBytes(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("mapped contents")
	require.NoError(t, store.Put(ctx, "m.bin", bytes.NewReader(data)))

	blob, err := store.Open(ctx, "m.bin")
	require.NoError(t, err)
	defer blob.Close()

	m, ok := blob.(Mappable)
	require.True(t, ok)

	raw, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, raw)
}
