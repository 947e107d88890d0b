package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nestward/nestward/internal/hash"
)

// RecordType identifies the kind of payload carried by a journal record.
//
// The journal itself is payload-agnostic; the types below document the
// conventions used by the agent. Unknown non-zero types replay cleanly so
// newer writers remain readable by older readers.
type RecordType uint8

const (
	// RecordWalkStep carries one codec-encoded signal record per committed
	// walk step.
	RecordWalkStep RecordType = 1
	// RecordOutcome carries the terminal outcome of a walk.
	RecordOutcome RecordType = 2
	// RecordNote carries free-form annotations (scenario name, seeds).
	RecordNote RecordType = 3
)

var (
	ErrCorruptRecord  = errors.New("corrupt journal record")
	ErrInvalidType    = errors.New("invalid journal record type")
	ErrRecordTooLarge = errors.New("journal record too large")
)

// maxRecordSize bounds a single record. Walk steps are a few hundred
// bytes; anything near this limit indicates a corrupt length field.
const maxRecordSize = 16 << 20

// frameOverhead is the fixed per-record framing cost:
// [type: 1 byte] [length: 4 bytes] [crc32c: 4 bytes].
const frameOverhead = 1 + 4 + 4

// Record is a single journal entry.
type Record struct {
	Type    RecordType
	Payload []byte
}

// Size returns the encoded size of the record in bytes.
func (r *Record) Size() int {
	return frameOverhead + len(r.Payload)
}

// Encode writes the record to w.
// Format: [Type: 1 byte] [Length: 4 bytes] [CRC32C: 4 bytes] [Payload].
// The checksum covers the type, length and payload.
func (r *Record) Encode(w io.Writer) error {
	if len(r.Payload) > maxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(r.Payload))
	}
	if r.Type == 0 {
		return ErrInvalidType
	}

	var prefix [5]byte
	prefix[0] = byte(r.Type)
	binary.LittleEndian.PutUint32(prefix[1:], uint32(len(r.Payload)))

	h := hash.NewCRC32C()
	h.Write(prefix[:])
	h.Write(r.Payload)

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], h.Sum32())

	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := w.Write(sum[:]); err != nil {
		return err
	}
	_, err := w.Write(r.Payload)
	return err
}

// Decode reads one record from r and returns it along with the number of
// bytes consumed.
//
// A clean end of input yields io.EOF with zero bytes consumed. Input that
// ends partway through a frame yields io.ErrUnexpectedEOF; callers treat
// that as a torn tail. A complete frame whose checksum does not match
// yields ErrCorruptRecord.
func Decode(r io.Reader) (*Record, int64, error) {
	var prefix [5]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, 0, err
	}

	typ := RecordType(prefix[0])
	length := binary.LittleEndian.Uint32(prefix[1:])
	if length > maxRecordSize {
		return nil, 5, fmt.Errorf("%w: length %d", ErrRecordTooLarge, length)
	}

	var sumBuf [4]byte
	if _, err := io.ReadFull(r, sumBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, 5, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, 9, err
	}

	consumed := int64(frameOverhead) + int64(length)

	h := hash.NewCRC32C()
	h.Write(prefix[:])
	h.Write(payload)
	if h.Sum32() != binary.LittleEndian.Uint32(sumBuf[:]) {
		return nil, consumed, fmt.Errorf("%w: checksum mismatch", ErrCorruptRecord)
	}
	if typ == 0 {
		return nil, consumed, ErrInvalidType
	}

	return &Record{Type: typ, Payload: payload}, consumed, nil
}
