package nestward

import (
	"math"

	"github.com/google/uuid"

	"github.com/nestward/nestward/journal"
	"github.com/nestward/nestward/mushroom"
	"github.com/nestward/nestward/route"
)

// Options contains configuration options for an agent.
type Options struct {
	// Name labels the agent in logs and archives.
	Name string

	// ID identifies the agent. A zero ID is replaced with a random one.
	ID uuid.UUID

	// Memory is the associative memory scoring views. When nil, a
	// mushroom.Network is constructed from MemoryOptions.
	Memory Memory

	// MemoryOptions configure the internally constructed memory. Ignored
	// when Memory is set.
	MemoryOptions []func(*mushroom.Options)

	// Condition transforms routes before they are bound. Defaults to
	// route.Noop.
	Condition route.Condition

	// FanSamples is the number of candidate headings evaluated per homing
	// step. Must be odd so the fan has a center sample.
	FanSamples int

	// FanHalfWidth is the angular half-width of the fan in radians.
	FanHalfWidth float64

	// TieBreakMagnitude is the peak of the bias ramp added to scanned
	// familiarities so that, on near ties, smaller turns win. It must stay
	// below the familiarity differences that separate distinct views.
	TieBreakMagnitude float64

	// NestTolerance is the distance to the nest at which homing succeeds.
	NestTolerance float64

	// SafetyCap bounds the accumulated distance walked away from the
	// feeder before homing gives up.
	SafetyCap float64

	// StepLimit bounds the number of homing steps. Zero derives the limit
	// from SafetyCap and the route's step length.
	StepLimit int

	// Logger receives structured walk logs. Defaults to NoopLogger.
	Logger *Logger

	// Metrics receives operational metrics. Defaults to
	// NoopMetricsCollector.
	Metrics MetricsCollector

	// Journal, when set, receives every committed walk step for
	// crash-safe tracing. Journal append failures fail the walk.
	Journal *journal.Journal
}

// DefaultOptions contains the default configuration options for an agent.
var DefaultOptions = Options{
	FanSamples:        61,
	FanHalfWidth:      math.Pi / 3,
	TieBreakMagnitude: 0.01,
	NestTolerance:     0.1,
	SafetyCap:         15,
}

// WithJournal configures the walk journal.
func WithJournal(j *journal.Journal) func(*Options) {
	return func(o *Options) {
		o.Journal = j
	}
}

// WithMemory injects a pre-built memory, for example one restored from a
// snapshot.
func WithMemory(m Memory) func(*Options) {
	return func(o *Options) {
		o.Memory = m
	}
}
