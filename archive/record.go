package archive

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nestward/nestward"
	"github.com/nestward/nestward/mushroom"
	"github.com/nestward/nestward/route"
)

const (
	// ManifestFileName is the per-run manifest object. A run is visible
	// only once its manifest exists.
	ManifestFileName = "manifest.json"

	// CurrentFileName is the store-level pointer to the manifest of the
	// most recently committed run. Stores with a commit log intercept
	// writes to it and version them.
	CurrentFileName = "CURRENT"

	homingFileName  = "homing.bin"
	signalsFileName = "signals.bin"
	memoryFileName  = "memory.bin"
)

// RunRecord bundles everything archived for one run: the learning
// replay traces, the homing trace, the signal log and, optionally, a
// snapshot of the memory as it stood after the run.
type RunRecord struct {
	// AgentID identifies the agent that produced the run. Required.
	AgentID uuid.UUID

	// RunID identifies the run. A zero ID is replaced with a random one
	// by SaveRun.
	RunID uuid.UUID

	// AgentName labels the run in listings.
	AgentName string

	// StartedAt is when the run began. Zero means now.
	StartedAt time.Time

	// Duration is the wall time of the run.
	Duration time.Duration

	// Outcome is the terminal homing outcome, in string form.
	Outcome string

	// Steps is the number of committed homing steps. When zero it is
	// derived from the homing trace.
	Steps int

	// Learning holds one replay trace per bound route.
	Learning []*route.Route

	// Homing is the homing trace, nil when the run never homed.
	Homing *route.Route

	// Signals is the per-step signal log of the run.
	Signals []nestward.SignalRecord

	// Stats is a snapshot of the memory counters after the run.
	Stats *mushroom.Stats

	// Memory, when set, archives a full snapshot of the memory with the
	// run so it can be restored later.
	Memory *mushroom.Network
}

// Manifest is the committed description of an archived run. Manifests
// are always JSON so a reader can bootstrap the codec and compression
// of the remaining payloads from the manifest alone.
type Manifest struct {
	RunID       uuid.UUID       `json:"run_id"`
	AgentID     uuid.UUID       `json:"agent_id"`
	AgentName   string          `json:"agent_name,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Duration    time.Duration   `json:"duration_ns,omitempty"`
	Outcome     string          `json:"outcome,omitempty"`
	Steps       int             `json:"steps,omitempty"`
	Codec       string          `json:"codec"`
	Compression string          `json:"compression"`
	Routes      int             `json:"routes"`
	Signals     int             `json:"signals"`
	Homing      bool            `json:"homing"`
	Memory      bool            `json:"memory"`
	MemoryStats *mushroom.Stats `json:"memory_stats,omitempty"`
}

// RunRef locates an archived run within the store.
type RunRef struct {
	AgentID uuid.UUID
	RunID   uuid.UUID

	// Key is the manifest key of the run.
	Key string
}

func (r *RunRecord) manifest(codecName, compression string) *Manifest {
	return &Manifest{
		RunID:       r.RunID,
		AgentID:     r.AgentID,
		AgentName:   r.AgentName,
		CreatedAt:   r.StartedAt,
		Duration:    r.Duration,
		Outcome:     r.Outcome,
		Steps:       r.Steps,
		Codec:       codecName,
		Compression: compression,
		Routes:      len(r.Learning),
		Signals:     len(r.Signals),
		Homing:      r.Homing != nil,
		Memory:      r.Memory != nil,
		MemoryStats: r.Stats,
	}
}

const agentsPrefix = "agents/"

func agentPrefix(agentID uuid.UUID) string {
	return agentsPrefix + agentID.String() + "/"
}

func agentRunsPrefix(agentID uuid.UUID) string {
	return agentPrefix(agentID) + "runs/"
}

func runPrefix(agentID, runID uuid.UUID) string {
	return agentRunsPrefix(agentID) + runID.String() + "/"
}

func routeFileName(i int) string {
	return fmt.Sprintf("routes/%05d.bin", i)
}

func memoryKey(agentID uuid.UUID) string {
	return agentPrefix(agentID) + memoryFileName
}
