// Package archive persists homing runs and memory snapshots to a blob
// store.
//
// A run is archived as a set of payload objects (learning traces, the
// homing trace, the signal log, optionally a memory snapshot) plus a
// JSON manifest, laid out as
//
//	agents/<agent-id>/runs/<run-id>/manifest.json
//	agents/<agent-id>/runs/<run-id>/routes/00000.bin
//	agents/<agent-id>/runs/<run-id>/homing.bin
//	agents/<agent-id>/runs/<run-id>/signals.bin
//	agents/<agent-id>/runs/<run-id>/memory.bin
//	agents/<agent-id>/memory.bin
//	CURRENT
//
// Payloads are encoded with the configured codec, compressed, and
// framed with a checksummed snapshot header. The manifest is committed
// last, so a partially uploaded run is never visible, and it records
// the codec and compression used so LoadRun needs no configuration to
// match. CURRENT points at the manifest of the most recent run; stores
// with a commit log (blobstore/s3.CommitStore) version that pointer.
//
// # Basic Usage
//
//	store, _ := blobstore.NewLocalStore("/var/lib/nestward")
//	arc := archive.New(store, archive.WithCompression(persistence.CompressionZSTD))
//
//	rec := &archive.RunRecord{
//	    AgentID:  agent.ID(),
//	    Outcome:  outcome.String(),
//	    Learning: traces,
//	    Homing:   homeTrace,
//	    Signals:  agent.SignalLog().Records(),
//	}
//	if err := arc.SaveRun(ctx, rec); err != nil {
//	    log.Fatal(err)
//	}
//
//	for ref, err := range arc.ListRuns(ctx, agent.ID()) {
//	    ...
//	}
package archive
