package mushroom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/nestward/nestward/persistence"
)

// snapshotHeader is the fixed-size block at the start of a snapshot
// payload. The projection is not stored; it is rebuilt from Seed.
type snapshotHeader struct {
	Channels      int32
	Samples       int32
	CodeUnits     int32
	FanIn         int32
	Sparsity      float64
	LearningRate  float32
	InitialWeight float32
	Seed          int64
	Exposures     int64
	TrainedBytes  uint32
	Padding       [4]byte
}

// SaveToWriter writes a snapshot of the network to w.
func (n *Network) SaveToWriter(w io.Writer, compression persistence.CompressionType) error {
	n.mu.Lock()

	trained, err := n.trained.ToBytes()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("serialize trained mask: %w", err)
	}

	var buf bytes.Buffer
	hdr := snapshotHeader{
		Channels:      int32(n.opts.Channels),
		Samples:       int32(n.opts.Samples),
		CodeUnits:     int32(n.opts.CodeUnits),
		FanIn:         int32(n.opts.FanIn),
		Sparsity:      n.opts.Sparsity,
		LearningRate:  n.opts.LearningRate,
		InitialWeight: n.opts.InitialWeight,
		Seed:          n.opts.Seed,
		Exposures:     n.exposures,
		TrainedBytes:  uint32(len(trained)),
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("write snapshot header: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, n.weights); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("write weights: %w", err)
	}
	buf.Write(trained)

	n.mu.Unlock()

	block, err := persistence.Compress(buf.Bytes(), compression)
	if err != nil {
		return err
	}

	return persistence.WritePayload(w, persistence.KindMemory, compression, time.Now().UnixNano(), block)
}

// SaveToFile writes a snapshot of the network to path, atomically.
func (n *Network) SaveToFile(path string, compression persistence.CompressionType) error {
	return persistence.SaveToFile(path, func(w io.Writer) error {
		return n.SaveToWriter(w, compression)
	})
}

// LoadFromReader restores a network from a snapshot. The projection is
// rebuilt from the stored seed, so codes match the saved network.
func LoadFromReader(r io.Reader) (*Network, error) {
	fh, block, err := persistence.ReadPayload(r, persistence.KindMemory)
	if err != nil {
		return nil, err
	}

	payload, err := persistence.Decompress(block, persistence.CompressionType(fh.Compression))
	if err != nil {
		return nil, err
	}

	br := bytes.NewReader(payload)

	var hdr snapshotHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}

	n, err := New(func(o *Options) {
		o.Channels = int(hdr.Channels)
		o.Samples = int(hdr.Samples)
		o.CodeUnits = int(hdr.CodeUnits)
		o.FanIn = int(hdr.FanIn)
		o.Sparsity = hdr.Sparsity
		o.LearningRate = hdr.LearningRate
		o.InitialWeight = hdr.InitialWeight
		o.Seed = hdr.Seed
	})
	if err != nil {
		return nil, err
	}

	if err := binary.Read(br, binary.LittleEndian, n.weights); err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}

	if hdr.TrainedBytes > 0 {
		trained := roaring.New()
		if _, err := trained.ReadFrom(io.LimitReader(br, int64(hdr.TrainedBytes))); err != nil {
			return nil, fmt.Errorf("read trained mask: %w", err)
		}
		n.trained = trained
	}
	n.exposures = hdr.Exposures

	return n, nil
}

// LoadFromFile restores a network from a snapshot file.
func LoadFromFile(path string) (*Network, error) {
	var n *Network
	err := persistence.LoadFromFile(path, func(r io.Reader) error {
		var loadErr error
		n, loadErr = LoadFromReader(r)
		return loadErr
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}
