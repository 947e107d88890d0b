package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	require.NoError(t, f.Close())

	info, err = lfs.Stat(fpath)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	entries, err := lfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	require.NoError(t, lfs.Rename(fpath, newPath))

	require.NoError(t, lfs.Truncate(newPath, 3))
	info, err = lfs.Stat(newPath)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	require.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFSWriteLimit(t *testing.T) {
	tmp := t.TempDir()
	errBoom := errors.New("boom")

	ffs := NewFaultyFS(nil)
	ffs.AddRule("limited", Fault{FailAfterBytes: 5, Err: errBoom})

	f, err := ffs.OpenFile(filepath.Join(tmp, "limited.txt"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = f.Write([]byte("!"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	// Unmatched files carry the default fault, which is disarmed.
	g, err := ffs.OpenFile(filepath.Join(tmp, "free.txt"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer g.Close()
	_, err = g.Write([]byte("unbounded"))
	assert.NoError(t, err)
}

func TestFaultyFSSyncAndClose(t *testing.T) {
	tmp := t.TempDir()

	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("sync", Fault{FailAfterBytes: -1, FailOnSync: true})
	ffs.AddRule("close", Fault{FailAfterBytes: -1, FailOnClose: true})

	f, err := ffs.OpenFile(filepath.Join(tmp, "sync.txt"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	assert.Error(t, f.Sync())
	assert.NoError(t, f.Close())

	f, err = ffs.OpenFile(filepath.Join(tmp, "close.txt"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	assert.NoError(t, f.Sync())
	assert.Error(t, f.Close())
}

func TestFaultyFSLongestPatternWins(t *testing.T) {
	tmp := t.TempDir()
	errShort := errors.New("short")
	errLong := errors.New("long")

	ffs := NewFaultyFS(nil)
	ffs.AddRule("data", Fault{FailAfterBytes: 0, Err: errShort})
	ffs.AddRule("data.journal", Fault{FailAfterBytes: 0, Err: errLong})

	f, err := ffs.OpenFile(filepath.Join(tmp, "data.journal"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, errLong)
}

func TestFaultyFSDelegation(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, ffs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, ffs.Truncate(fpath, 10))

	info, err := ffs.Stat(fpath)
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size())

	entries, err := ffs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, ffs.Rename(fpath, fpath+".renamed"))
	require.NoError(t, ffs.Remove(fpath+".renamed"))
}
