package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nestward/nestward/blobstore"
	"github.com/nestward/nestward/codec"
	"github.com/nestward/nestward/mushroom"
	"github.com/nestward/nestward/persistence"
	"github.com/nestward/nestward/resource"
	"github.com/nestward/nestward/route"
)

// conditionalPutter is the optional capability of stores that can
// create an object only when it does not exist yet.
type conditionalPutter interface {
	PutIfNotExists(ctx context.Context, key string, data []byte) error
}

// Options contains configuration options for an archive.
type Options struct {
	// Codec encodes traces and signal logs. Defaults to codec.Default.
	Codec codec.Codec

	// Compression applied to archived payloads. Defaults to zstd.
	Compression persistence.CompressionType

	// Controller, when set, gates concurrent uploads and accounts IO
	// bandwidth. Nil disables admission control.
	Controller *resource.Controller
}

// WithCodec configures the payload codec.
func WithCodec(c codec.Codec) func(*Options) {
	return func(o *Options) {
		o.Codec = c
	}
}

// WithCompression configures the payload compression.
func WithCompression(t persistence.CompressionType) func(*Options) {
	return func(o *Options) {
		o.Compression = t
	}
}

// WithController configures upload admission control.
func WithController(rc *resource.Controller) func(*Options) {
	return func(o *Options) {
		o.Controller = rc
	}
}

// Archive reads and writes homing runs and memory snapshots in a blob
// store, using the key scheme agents/<agent>/runs/<run>/...
type Archive struct {
	store       blobstore.Store
	codec       codec.Codec
	compression persistence.CompressionType
	rc          *resource.Controller
}

// New creates an archive over the given store.
func New(store blobstore.Store, optFns ...func(*Options)) *Archive {
	opts := Options{
		Codec:       codec.Default,
		Compression: persistence.CompressionZSTD,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Archive{
		store:       store,
		codec:       opts.Codec,
		compression: opts.Compression,
		rc:          opts.Controller,
	}
}

// SaveRun archives a run. Payloads are uploaded concurrently; the
// manifest is committed last, so a failed save leaves no visible run
// and a retry simply overwrites the orphaned payloads. A zero
// rec.RunID is populated with a fresh one.
func (a *Archive) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec.AgentID == uuid.Nil {
		return errors.New("archive: run record has no agent id")
	}
	if rec.RunID == uuid.Nil {
		rec.RunID = uuid.New()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.Steps == 0 && rec.Homing != nil {
		rec.Steps = rec.Homing.Len()
	}

	prefix := runPrefix(rec.AgentID, rec.RunID)

	g, gctx := errgroup.WithContext(ctx)
	for i, tr := range rec.Learning {
		g.Go(func() error {
			return a.writePayload(gctx, prefix+routeFileName(i), tr)
		})
	}
	if rec.Homing != nil {
		g.Go(func() error {
			return a.writePayload(gctx, prefix+homingFileName, rec.Homing)
		})
	}
	if len(rec.Signals) > 0 {
		g.Go(func() error {
			return a.writePayload(gctx, prefix+signalsFileName, rec.Signals)
		})
	}
	if rec.Memory != nil {
		g.Go(func() error {
			return a.writeMemory(gctx, prefix+memoryFileName, rec.Memory)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("archive: save run %s: %w", rec.RunID, err)
	}

	data, err := json.Marshal(rec.manifest(a.codec.Name(), a.compression.String()))
	if err != nil {
		return fmt.Errorf("archive: encode manifest: %w", err)
	}

	manifestKey := prefix + ManifestFileName
	if cp, ok := a.store.(conditionalPutter); ok {
		if err := cp.PutIfNotExists(ctx, manifestKey, data); err != nil {
			return fmt.Errorf("archive: commit run %s: %w", rec.RunID, err)
		}
	} else if err := a.store.Put(ctx, manifestKey, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("archive: commit run %s: %w", rec.RunID, err)
	}

	// Advance the latest-run pointer. On a commit-log store this is a
	// versioned write; elsewhere it is a plain pointer object.
	if err := a.store.Put(ctx, CurrentFileName, strings.NewReader(manifestKey)); err != nil {
		return fmt.Errorf("archive: update %s: %w", CurrentFileName, err)
	}

	return nil
}

// LoadRun restores an archived run. The payload codec and compression
// are taken from the manifest, not from the archive configuration, so
// runs written with other settings load fine.
func (a *Archive) LoadRun(ctx context.Context, agentID, runID uuid.UUID) (*RunRecord, error) {
	m, err := a.LoadManifest(ctx, agentID, runID)
	if err != nil {
		return nil, err
	}

	c, ok := codec.ByName(m.Codec)
	if !ok {
		return nil, fmt.Errorf("archive: run %s uses unknown codec %q", runID, m.Codec)
	}

	rec := &RunRecord{
		AgentID:   m.AgentID,
		RunID:     m.RunID,
		AgentName: m.AgentName,
		StartedAt: m.CreatedAt,
		Duration:  m.Duration,
		Outcome:   m.Outcome,
		Steps:     m.Steps,
		Stats:     m.MemoryStats,
	}

	prefix := runPrefix(agentID, runID)

	g, gctx := errgroup.WithContext(ctx)
	if m.Routes > 0 {
		rec.Learning = make([]*route.Route, m.Routes)
		for i := 0; i < m.Routes; i++ {
			g.Go(func() error {
				var tr route.Route
				if err := a.readPayload(gctx, prefix+routeFileName(i), c, &tr); err != nil {
					return err
				}
				rec.Learning[i] = &tr
				return nil
			})
		}
	}
	if m.Homing {
		g.Go(func() error {
			var tr route.Route
			if err := a.readPayload(gctx, prefix+homingFileName, c, &tr); err != nil {
				return err
			}
			rec.Homing = &tr
			return nil
		})
	}
	if m.Signals > 0 {
		g.Go(func() error {
			return a.readPayload(gctx, prefix+signalsFileName, c, &rec.Signals)
		})
	}
	if m.Memory {
		g.Go(func() error {
			n, err := a.readMemory(gctx, prefix+memoryFileName)
			if err != nil {
				return err
			}
			rec.Memory = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("archive: load run %s: %w", runID, err)
	}

	return rec, nil
}

// LoadManifest reads a run's manifest without touching its payloads.
func (a *Archive) LoadManifest(ctx context.Context, agentID, runID uuid.UUID) (*Manifest, error) {
	raw, err := blobstore.ReadAll(ctx, a.store, runPrefix(agentID, runID)+ManifestFileName)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("archive: decode manifest: %w", err)
	}
	return &m, nil
}

// ListRuns yields a reference per archived run of the agent, in lexical
// run-id order. Objects under the runs prefix that are not manifests
// are skipped.
func (a *Archive) ListRuns(ctx context.Context, agentID uuid.UUID) iter.Seq2[RunRef, error] {
	prefix := agentRunsPrefix(agentID)
	return func(yield func(RunRef, error) bool) {
		for key, err := range a.store.List(ctx, prefix) {
			if err != nil {
				yield(RunRef{}, err)
				return
			}

			rest, ok := strings.CutPrefix(key, prefix)
			if !ok {
				continue
			}
			runSeg, file, ok := strings.Cut(rest, "/")
			if !ok || file != ManifestFileName {
				continue
			}
			runID, err := uuid.Parse(runSeg)
			if err != nil {
				continue
			}

			if !yield(RunRef{AgentID: agentID, RunID: runID, Key: key}, nil) {
				return
			}
		}
	}
}

// ListAgents yields the ID of every agent with archived objects, in
// lexical order. Keys under the agents prefix that do not start with a
// parseable UUID segment are skipped.
func (a *Archive) ListAgents(ctx context.Context) iter.Seq2[uuid.UUID, error] {
	return func(yield func(uuid.UUID, error) bool) {
		var last uuid.UUID
		for key, err := range a.store.List(ctx, agentsPrefix) {
			if err != nil {
				yield(uuid.Nil, err)
				return
			}

			rest, ok := strings.CutPrefix(key, agentsPrefix)
			if !ok {
				continue
			}
			seg, _, ok := strings.Cut(rest, "/")
			if !ok {
				continue
			}
			id, err := uuid.Parse(seg)
			if err != nil {
				continue
			}

			// Listing is lexical, so an agent's keys are contiguous.
			if id == last {
				continue
			}
			last = id
			if !yield(id, nil) {
				return
			}
		}
	}
}

// LatestManifestKey returns the manifest key recorded by the most
// recent committed run, read from the CURRENT pointer.
func (a *Archive) LatestManifestKey(ctx context.Context) (string, error) {
	data, err := blobstore.ReadAll(ctx, a.store, CurrentFileName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveMemory stores the agent-level memory snapshot, outside any run.
// It overwrites the previous snapshot.
func (a *Archive) SaveMemory(ctx context.Context, agentID uuid.UUID, n *mushroom.Network) error {
	if agentID == uuid.Nil {
		return errors.New("archive: no agent id")
	}
	return a.writeMemory(ctx, memoryKey(agentID), n)
}

// LoadMemory restores the agent-level memory snapshot.
func (a *Archive) LoadMemory(ctx context.Context, agentID uuid.UUID) (*mushroom.Network, error) {
	return a.readMemory(ctx, memoryKey(agentID))
}

// writePayload encodes v with the archive codec, compresses it and
// stores it framed with a snapshot header. Uploads pass through the
// resource controller when one is configured.
func (a *Archive) writePayload(ctx context.Context, key string, v any) error {
	if a.rc != nil {
		if err := a.rc.Acquire(ctx); err != nil {
			return err
		}
		defer a.rc.Release()
	}

	data, err := a.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	block, err := persistence.Compress(data, a.compression)
	if err != nil {
		return fmt.Errorf("compress %s: %w", key, err)
	}

	var buf bytes.Buffer
	if err := persistence.WritePayload(&buf, persistence.KindRun, a.compression, time.Now().UnixNano(), block); err != nil {
		return fmt.Errorf("frame %s: %w", key, err)
	}

	if a.rc != nil {
		if err := a.rc.WaitIO(ctx, buf.Len()); err != nil {
			return err
		}
	}
	return a.store.Put(ctx, key, &buf)
}

// readPayload loads, verifies and decodes one framed payload. The codec
// comes from the manifest of the run being read.
func (a *Archive) readPayload(ctx context.Context, key string, c codec.Codec, v any) error {
	raw, err := blobstore.ReadAll(ctx, a.store, key)
	if err != nil {
		return err
	}

	h, block, err := persistence.ReadPayload(bytes.NewReader(raw), persistence.KindRun)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	data, err := persistence.Decompress(block, persistence.CompressionType(h.Compression))
	if err != nil {
		return fmt.Errorf("decompress %s: %w", key, err)
	}
	if err := c.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// writeMemory snapshots the network into a buffer first so every
// backend sees a single atomic Put.
func (a *Archive) writeMemory(ctx context.Context, key string, n *mushroom.Network) error {
	if a.rc != nil {
		if err := a.rc.Acquire(ctx); err != nil {
			return err
		}
		defer a.rc.Release()
	}

	var buf bytes.Buffer
	if err := n.SaveToWriter(&buf, a.compression); err != nil {
		return fmt.Errorf("snapshot memory: %w", err)
	}

	if a.rc != nil {
		if err := a.rc.WaitIO(ctx, buf.Len()); err != nil {
			return err
		}
	}
	return a.store.Put(ctx, key, &buf)
}

func (a *Archive) readMemory(ctx context.Context, key string) (*mushroom.Network, error) {
	raw, err := blobstore.ReadAll(ctx, a.store, key)
	if err != nil {
		return nil, err
	}

	n, err := mushroom.LoadFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("restore memory from %s: %w", key, err)
	}
	return n, nil
}
