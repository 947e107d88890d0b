package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MagicNumber identifies nestward binary files (ASCII: "NWS1")
	MagicNumber = 0x4E575331
	// Version is the current file format version (v1.0.0)
	Version = 0x00010000

	// Snapshot kinds
	KindMemory  = 1
	KindRun     = 2
	KindJournal = 3
)

var (
	ErrInvalidMagic     = errors.New("invalid magic number")
	ErrInvalidVersion   = errors.New("unsupported version")
	ErrInvalidKind      = errors.New("invalid snapshot kind")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// FileHeader is the 64-byte header at the start of every snapshot file.
type FileHeader struct {
	Magic       uint32 // 0x4E575331 ("NWS1")
	Version     uint32 // File format version
	Kind        uint8  // 1=Memory, 2=Run, 3=Journal
	Compression uint8  // CompressionType of the payload
	Padding     [2]byte
	CreatedAt   int64  // Unix nanoseconds
	PayloadSize uint64 // Payload length in bytes, after compression
	Checksum    uint32 // CRC32 of the payload bytes as stored
	Reserved    [32]byte
}

// HeaderSize is the encoded size of a FileHeader.
const HeaderSize = 64

// WriteTo encodes the header in little-endian form.
func (h *FileHeader) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	return HeaderSize, nil
}

// ReadHeader decodes a FileHeader and validates magic, version and kind.
func ReadHeader(r io.Reader, kind uint8) (*FileHeader, error) {
	h := &FileHeader{}
	if err := binary.Read(r, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if h.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: 0x%08X", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: 0x%08X", ErrInvalidVersion, h.Version)
	}
	if h.Kind != kind {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKind, h.Kind, kind)
	}

	return h, nil
}

// WritePayload writes header plus payload, filling in size and checksum.
func WritePayload(w io.Writer, kind uint8, compression CompressionType, createdAt int64, payload []byte) error {
	h := &FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Kind:        kind,
		Compression: uint8(compression),
		CreatedAt:   createdAt,
		PayloadSize: uint64(len(payload)),
		Checksum:    CalculateChecksum(payload),
	}
	if _, err := h.WriteTo(w); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// ReadPayload reads header plus payload and verifies the checksum. The
// returned payload is still compressed per header.Compression.
func ReadPayload(r io.Reader, kind uint8) (*FileHeader, []byte, error) {
	h, err := ReadHeader(r, kind)
	if err != nil {
		return nil, nil, err
	}

	payload := make([]byte, h.PayloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, fmt.Errorf("read payload: %w", err)
	}

	if sum := CalculateChecksum(payload); sum != h.Checksum {
		return nil, nil, fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrChecksumMismatch, sum, h.Checksum)
	}

	return h, payload, nil
}
