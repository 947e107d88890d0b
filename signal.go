package nestward

import (
	"slices"
	"sync"

	"github.com/nestward/nestward/route"
)

// Stage identifies which walk produced a signal record.
type Stage int

const (
	StageLearning Stage = iota + 1
	StageHoming
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageLearning:
		return "learning"
	case StageHoming:
		return "homing"
	default:
		return "unknown"
	}
}

// SignalRecord captures the memory response for one committed walk step.
// Learning steps carry a single familiarity; homing steps additionally
// carry the full fan of raw familiarities and the chosen turn.
type SignalRecord struct {
	Stage       Stage      `json:"stage"`
	RouteIndex  int        `json:"route_index"`
	SampleIndex int        `json:"sample_index"`
	Pose        route.Pose `json:"pose"`
	Familiarity float32    `json:"familiarity"`
	Fan         []float32  `json:"fan,omitempty"`
	Turn        float64    `json:"turn,omitempty"`
}

// SignalLog accumulates signal records across walks. It is safe for
// concurrent use; walks append to it while observers read.
type SignalLog struct {
	mu      sync.Mutex
	records []SignalRecord
}

// Append adds a record to the log. The record's Fan slice is copied so
// later reuse of the caller's buffer cannot alter history.
func (l *SignalLog) Append(rec SignalRecord) {
	rec.Fan = slices.Clone(rec.Fan)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Records returns a copy of all accumulated records.
func (l *SignalLog) Records() []SignalRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}

// Len returns the number of accumulated records.
func (l *SignalLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Reset discards all accumulated records.
func (l *SignalLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}
