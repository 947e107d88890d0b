// Package journal implements an append-only, checksummed record log for
// walk traces.
//
// Every committed walk step can be journalled before the agent advances,
// so a crashed run can be reconstructed up to its last synced record.
// Records are framed as [type][length][crc32c][payload]; payloads are
// encoded with a pluggable codec whose name is stored in the file header
// and validated on reopen.
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/nestward/nestward/codec"
	"github.com/nestward/nestward/internal/fs"
)

// SyncPolicy controls when appended records reach stable storage.
type SyncPolicy int

const (
	// SyncAlways fsyncs before Append returns. Appends from concurrent
	// goroutines share fsyncs through group commit.
	SyncAlways SyncPolicy = iota
	// SyncInterval fsyncs on a background timer. A crash loses at most
	// one interval of records.
	SyncInterval
	// SyncNever relies on the OS page cache.
	SyncNever
)

const (
	journalMagic   = "NWJOURNL" // 8 bytes
	journalVersion = 1
)

var (
	ErrInvalidHeader       = errors.New("invalid journal header")
	ErrIncompatibleVersion = errors.New("incompatible journal version")
	ErrCodecMismatch       = errors.New("journal codec mismatch")
)

// Options configures a Journal.
type Options struct {
	// SyncPolicy selects the durability mode. Defaults to SyncAlways.
	SyncPolicy SyncPolicy
	// SyncInterval is the flush period under SyncInterval.
	SyncInterval time.Duration
	// Codec encodes record payloads appended via AppendValue. Its name is
	// written into the header of new files and checked against existing
	// ones.
	Codec codec.Codec
	// FS abstracts file access, mainly for fault injection in tests.
	FS fs.FileSystem
}

// DefaultOptions returns the default journal configuration.
func DefaultOptions() Options {
	return Options{
		SyncPolicy:   SyncAlways,
		SyncInterval: 200 * time.Millisecond,
		Codec:        codec.Default,
		FS:           fs.Default,
	}
}

// Journal is an append-only record log backed by a single file.
// It is safe for concurrent use.
type Journal struct {
	mu         sync.Mutex
	fs         fs.FileSystem
	file       fs.File
	cw         *countingWriter
	path       string
	opts       Options
	headerSize int64

	// Group commit state, used under SyncAlways.
	syncedOffset int64
	syncCond     *sync.Cond
	doneCond     *sync.Cond
	closed       bool
	lastErr      error
	wg           sync.WaitGroup
	stopTicker   chan struct{}
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriter) Flush() error {
	return cw.w.Flush()
}

// Open opens or creates a journal at the given path.
func Open(path string, optFns ...func(*Options)) (*Journal, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	f, err := opts.FS.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	offset := stat.Size()

	var headerSize int64
	if offset == 0 {
		header := encodeHeader(opts.Codec.Name())
		if _, err := f.Write(header); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, err
		}
		headerSize = int64(len(header))
		offset = headerSize
	} else {
		headerSize, err = verifyHeader(f, offset, opts.Codec.Name())
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	j := &Journal{
		fs:   opts.FS,
		file: f,
		cw: &countingWriter{
			w: bufio.NewWriter(f),
			n: offset,
		},
		path:         path,
		opts:         opts,
		headerSize:   headerSize,
		syncedOffset: offset,
	}
	j.syncCond = sync.NewCond(&j.mu)
	j.doneCond = sync.NewCond(&j.mu)

	switch opts.SyncPolicy {
	case SyncAlways:
		j.wg.Add(1)
		go j.runSyncer()
	case SyncInterval:
		j.stopTicker = make(chan struct{})
		j.wg.Add(1)
		go j.runTicker()
	}

	return j, nil
}

// encodeHeader builds the file header:
// [magic: 8 bytes] [version: 4 bytes] [codec name length: 1 byte] [codec name].
func encodeHeader(codecName string) []byte {
	header := make([]byte, 13+len(codecName))
	copy(header[0:8], journalMagic)
	binary.LittleEndian.PutUint32(header[8:12], journalVersion)
	header[12] = byte(len(codecName))
	copy(header[13:], codecName)
	return header
}

func verifyHeader(f fs.File, size int64, codecName string) (int64, error) {
	if size < 13 {
		return 0, fmt.Errorf("%w: file too small (%d bytes)", ErrInvalidHeader, size)
	}
	fixed := make([]byte, 13)
	if _, err := f.ReadAt(fixed, 0); err != nil {
		return 0, err
	}
	if string(fixed[0:8]) != journalMagic {
		return 0, fmt.Errorf("%w: bad magic %q", ErrInvalidHeader, fixed[0:8])
	}
	if ver := binary.LittleEndian.Uint32(fixed[8:12]); ver != journalVersion {
		return 0, fmt.Errorf("%w: version %d (expected %d)", ErrIncompatibleVersion, ver, journalVersion)
	}
	nameLen := int64(fixed[12])
	if size < 13+nameLen {
		return 0, fmt.Errorf("%w: truncated codec name", ErrInvalidHeader)
	}
	name := make([]byte, nameLen)
	if _, err := f.ReadAt(name, 13); err != nil {
		return 0, err
	}
	if string(name) != codecName {
		return 0, fmt.Errorf("%w: file uses %q, journal configured with %q", ErrCodecMismatch, name, codecName)
	}
	return 13 + nameLen, nil
}

// Append writes a record and, under SyncAlways, waits for it to reach
// stable storage.
func (j *Journal) Append(typ RecordType, payload []byte) error {
	rec := Record{Type: typ, Payload: payload}

	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return os.ErrClosed
	}
	if j.lastErr != nil {
		err := j.lastErr
		j.mu.Unlock()
		return err
	}
	if err := rec.Encode(j.cw); err != nil {
		j.mu.Unlock()
		return err
	}
	if err := j.cw.Flush(); err != nil {
		j.mu.Unlock()
		return err
	}
	endOffset := j.cw.n
	if j.opts.SyncPolicy == SyncAlways {
		j.syncCond.Signal()
	}
	j.mu.Unlock()

	if j.opts.SyncPolicy == SyncAlways {
		return j.waitFor(endOffset)
	}
	return nil
}

// AppendValue encodes v with the journal's codec and appends it.
func (j *Journal) AppendValue(typ RecordType, v any) error {
	payload, err := j.opts.Codec.Marshal(v)
	if err != nil {
		return err
	}
	return j.Append(typ, payload)
}

// DecodeValue decodes a replayed record's payload into v using the
// journal's codec.
func (j *Journal) DecodeValue(rec Record, v any) error {
	return j.opts.Codec.Unmarshal(rec.Payload, v)
}

// Codec returns the codec used for record payloads.
func (j *Journal) Codec() codec.Codec {
	return j.opts.Codec
}

// waitFor blocks until the journal is synced through offset.
func (j *Journal) waitFor(offset int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for j.syncedOffset < offset && !j.closed && j.lastErr == nil {
		j.doneCond.Wait()
	}
	if j.lastErr != nil {
		return j.lastErr
	}
	if j.closed && j.syncedOffset < offset {
		return os.ErrClosed
	}
	return nil
}

// runSyncer batches fsyncs for concurrent appenders (group commit).
func (j *Journal) runSyncer() {
	defer j.wg.Done()
	j.mu.Lock()
	defer j.mu.Unlock()

	for {
		for j.cw.n <= j.syncedOffset && !j.closed {
			j.syncCond.Wait()
		}
		if j.closed && j.cw.n <= j.syncedOffset {
			return
		}

		target := j.cw.n

		j.mu.Unlock()
		err := j.file.Sync()
		j.mu.Lock()

		if err != nil {
			j.lastErr = fmt.Errorf("journal sync failed: %w", err)
			j.doneCond.Broadcast()
			return
		}

		// Checkpoint may have truncated the file while the lock was
		// released; never advance past the current end.
		if target > j.cw.n {
			target = j.cw.n
		}
		if target > j.syncedOffset {
			j.syncedOffset = target
		}
		j.doneCond.Broadcast()
	}
}

// runTicker flushes on a timer under SyncInterval.
func (j *Journal) runTicker() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopTicker:
			return
		case <-ticker.C:
			j.mu.Lock()
			if j.closed {
				j.mu.Unlock()
				return
			}
			if err := j.cw.Flush(); err == nil {
				err = j.file.Sync()
				if err != nil && j.lastErr == nil {
					j.lastErr = fmt.Errorf("journal sync failed: %w", err)
				}
			} else if j.lastErr == nil {
				j.lastErr = err
			}
			j.mu.Unlock()
		}
	}
}

// Sync flushes buffered records and fsyncs the file.
func (j *Journal) Sync() error {
	j.mu.Lock()

	if j.closed {
		j.mu.Unlock()
		return os.ErrClosed
	}
	if j.lastErr != nil {
		err := j.lastErr
		j.mu.Unlock()
		return err
	}
	if err := j.cw.Flush(); err != nil {
		j.mu.Unlock()
		return err
	}

	if j.opts.SyncPolicy != SyncAlways {
		defer j.mu.Unlock()
		return j.file.Sync()
	}

	// Under SyncAlways, piggyback on the group commit loop.
	target := j.cw.n
	j.syncCond.Signal()
	for j.syncedOffset < target && !j.closed && j.lastErr == nil {
		j.doneCond.Wait()
	}
	err := j.lastErr
	j.mu.Unlock()
	return err
}

// Size returns the current journal size in bytes, including the header.
func (j *Journal) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cw.n
}

// Checkpoint discards all records, keeping the header. Callers invoke it
// after the trace has been archived elsewhere.
func (j *Journal) Checkpoint() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return os.ErrClosed
	}
	if err := j.cw.Flush(); err != nil {
		return err
	}
	if err := j.fs.Truncate(j.path, j.headerSize); err != nil {
		return err
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	// The file handle was opened with O_APPEND, so the next write lands
	// at the new end.
	j.cw.n = j.headerSize
	j.syncedOffset = j.headerSize
	return nil
}

// Replay invokes fn for every intact record in order.
//
// A torn final record, from a crash mid-append, ends the replay without
// error. A complete record that fails its checksum aborts the replay
// with ErrCorruptRecord. An error returned by fn aborts the replay with
// that error.
func (j *Journal) Replay(fn func(Record) error) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return os.ErrClosed
	}
	if err := j.cw.Flush(); err != nil {
		j.mu.Unlock()
		return err
	}
	headerSize := j.headerSize
	j.mu.Unlock()

	f, err := j.fs.OpenFile(j.path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(headerSize, io.SeekStart); err != nil {
		return err
	}

	br := bufio.NewReader(f)
	offset := headerSize
	for {
		rec, n, err := Decode(br)
		switch {
		case err == nil:
			// fallthrough below
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			// Torn tail from an interrupted append.
			return nil
		default:
			return fmt.Errorf("journal replay at offset %d: %w", offset, err)
		}
		if err := fn(*rec); err != nil {
			return err
		}
		offset += n
	}
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()

	if j.closed {
		j.mu.Unlock()
		return os.ErrClosed
	}

	if err := j.cw.Flush(); err != nil {
		j.closed = true
		j.syncCond.Signal()
		if j.stopTicker != nil {
			close(j.stopTicker)
		}
		j.mu.Unlock()
		j.wg.Wait()
		j.file.Close()
		return err
	}

	j.closed = true
	j.syncCond.Signal()
	if j.stopTicker != nil {
		close(j.stopTicker)
	}
	j.mu.Unlock()

	j.wg.Wait()

	if err := j.file.Sync(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}
