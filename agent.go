package nestward

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nestward/nestward/journal"
	"github.com/nestward/nestward/mushroom"
	"github.com/nestward/nestward/route"
	"github.com/nestward/nestward/vision"
)

// State is the lifecycle state of an agent.
type State int

const (
	// StateUninitialised means no route has been bound yet.
	StateUninitialised State = iota
	// StateReady means at least one route is bound and the agent rests at
	// the feeder.
	StateReady
	// StateLearning means a learning walk is replaying routes through the
	// memory.
	StateLearning
	// StateHoming means a homing walk is stepping toward the nest.
	StateHoming
	// StateDone means the last homing walk reached a terminal condition.
	// Reset returns the agent to StateReady.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialised:
		return "uninitialised"
	case StateReady:
		return "ready"
	case StateLearning:
		return "learning"
	case StateHoming:
		return "homing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Memory scores projection vectors for familiarity. Lower values mean
// the view resembles previously learned ones.
//
// mushroom.Network is the canonical implementation; tests substitute
// scripted memories.
type Memory interface {
	// Dimension returns the expected projection vector length.
	Dimension() int
	// Forward scores pv and, when learn is true, depresses the weights of
	// the active code units.
	Forward(pv []float32, learn bool) (float32, error)
	// Reset restores the initial weights, forgetting all training.
	Reset()
}

var _ Memory = (*mushroom.Network)(nil)

// Agent is the homing controller. It owns its pose, the bound routes and
// the associative memory, and drives the learning and homing walks.
//
// All methods are safe for concurrent use, but walks themselves are
// sequential: one walk cursor drives the pipeline at a time.
type Agent struct {
	mu sync.Mutex

	id   uuid.UUID
	name string
	opts Options

	memory  Memory
	world   vision.Encoder
	cond    route.Condition
	fan     *fan
	signals *SignalLog

	routes []*route.Route
	state  State
	pose   route.Pose
	nest   route.Pose
	feeder route.Pose
	step   float64

	logger  *Logger
	metrics MetricsCollector
	journal *journal.Journal
}

// NewAgent creates an agent.
//
// Example:
//
//	agent, err := nestward.NewAgent(func(o *nestward.Options) {
//		o.Name = "forager-1"
//		o.MemoryOptions = []func(*mushroom.Options){
//			func(mo *mushroom.Options) { mo.Samples = 720 },
//		}
//	})
func NewAgent(optFns ...func(*Options)) (*Agent, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	if opts.ID == uuid.Nil {
		opts.ID = uuid.New()
	}
	if opts.Name == "" {
		opts.Name = "agent-" + opts.ID.String()[:8]
	}

	memory := opts.Memory
	if memory == nil {
		network, err := mushroom.New(opts.MemoryOptions...)
		if err != nil {
			return nil, translateError(err)
		}
		memory = network
	}

	cond := opts.Condition
	if cond == nil {
		cond = route.Noop{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = NoopLogger()
	}

	var metrics MetricsCollector = opts.Metrics
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}

	return &Agent{
		id:      opts.ID,
		name:    opts.Name,
		opts:    opts,
		memory:  memory,
		cond:    cond,
		fan:     newFan(opts.FanSamples, opts.FanHalfWidth, opts.TieBreakMagnitude),
		signals: &SignalLog{},
		state:   StateUninitialised,
		logger:  logger.WithAgent(opts.Name),
		metrics: metrics,
		journal: opts.Journal,
	}, nil
}

func validateOptions(opts Options) error {
	if opts.FanSamples < 3 || opts.FanSamples%2 == 0 {
		return fmt.Errorf("%w: fan samples must be odd and at least 3, got %d", ErrInvalidOptions, opts.FanSamples)
	}
	if opts.FanHalfWidth <= 0 {
		return fmt.Errorf("%w: fan half-width must be positive, got %g", ErrInvalidOptions, opts.FanHalfWidth)
	}
	if opts.TieBreakMagnitude < 0 {
		return fmt.Errorf("%w: tie-break magnitude must be non-negative, got %g", ErrInvalidOptions, opts.TieBreakMagnitude)
	}
	if opts.NestTolerance <= 0 {
		return fmt.Errorf("%w: nest tolerance must be positive, got %g", ErrInvalidOptions, opts.NestTolerance)
	}
	if opts.SafetyCap <= 0 {
		return fmt.Errorf("%w: safety cap must be positive, got %g", ErrInvalidOptions, opts.SafetyCap)
	}
	if opts.StepLimit < 0 {
		return fmt.Errorf("%w: step limit must be non-negative, got %d", ErrInvalidOptions, opts.StepLimit)
	}
	return nil
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() uuid.UUID {
	return a.id
}

// Name returns the agent's label.
func (a *Agent) Name() string {
	return a.name
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Pose returns the agent's current pose.
func (a *Agent) Pose() route.Pose {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pose
}

// Nest returns the homing target, the last pose of the most recently
// bound route.
func (a *Agent) Nest() route.Pose {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nest
}

// Feeder returns the walk origin, the first pose of the most recently
// bound route.
func (a *Agent) Feeder() route.Pose {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.feeder
}

// StepLength returns the forward distance advanced per homing step.
func (a *Agent) StepLength() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.step
}

// Routes returns deep copies of the bound routes in bind order.
func (a *Agent) Routes() []*route.Route {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*route.Route, len(a.routes))
	for i, r := range a.routes {
		out[i] = r.Clone()
	}
	return out
}

// Memory returns the agent's associative memory.
func (a *Agent) Memory() Memory {
	return a.memory
}

// SignalLog returns the signal history accumulated across walks.
func (a *Agent) SignalLog() *SignalLog {
	return a.signals
}

// SetWorld sets the sensory encoder the agent perceives through. The
// encoder's dimensionality must match the memory's.
func (a *Agent) SetWorld(enc vision.Encoder) error {
	if enc == nil {
		return ErrNoWorld
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateLearning || a.state == StateHoming {
		return fmt.Errorf("%w: walk in progress", ErrNotReady)
	}
	if got, want := enc.Dimension(), a.memory.Dimension(); got != want {
		return &ErrDimensionMismatch{Expected: want, Actual: got}
	}

	a.world = enc
	return nil
}

// BindRoute conditions and binds a private copy of the route. The nest,
// feeder and step length follow the most recently bound route. The first
// successful bind readies the agent at the feeder.
//
// Binding fails without state change when the route is empty, the world
// is unset, or the route's ID is already bound.
func (a *Agent) BindRoute(r *route.Route) error {
	if r == nil || r.Len() == 0 {
		return route.ErrEmptyRoute
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.world == nil {
		a.logger.LogBindRoute(context.Background(), r.Seq, r.Len(), ErrNoWorld)
		return ErrNoWorld
	}
	if a.state == StateLearning || a.state == StateHoming {
		return fmt.Errorf("%w: walk in progress", ErrNotReady)
	}
	for _, bound := range a.routes {
		if bound.ID == r.ID {
			return fmt.Errorf("%w: %s", ErrRouteBound, r.ID)
		}
	}

	conditioned := a.cond.Apply(r)
	if conditioned.Len() == 0 {
		return route.ErrEmptyRoute
	}
	if conditioned.Step <= 0 {
		return fmt.Errorf("%w: route step length must be positive", ErrInvalidOptions)
	}

	a.routes = append(a.routes, conditioned)
	a.nest = conditioned.Nest()
	a.feeder = conditioned.Feeder()
	a.step = conditioned.Step

	if a.state == StateUninitialised {
		a.pose = a.feeder
		a.state = StateReady
	}

	a.logger.LogBindRoute(context.Background(), conditioned.Seq, conditioned.Len(), nil)
	return nil
}

// Reset places the agent back at the feeder with the initial heading of
// the most recently bound route and readies it for a new walk. The
// memory keeps its training; use WipeMemory to forget.
func (a *Agent) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.routes) == 0 {
		return ErrNoRoutes
	}
	if a.state == StateLearning || a.state == StateHoming {
		return fmt.Errorf("%w: walk in progress", ErrNotReady)
	}

	a.pose = a.routes[len(a.routes)-1].Feeder()
	a.state = StateReady
	return nil
}

// WipeMemory restores the memory's initial weights, forgetting all
// learned routes. Bound routes and the agent's pose are unaffected.
func (a *Agent) WipeMemory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memory.Reset()
}

// journalRecord appends a signal record to the journal, if one is
// configured.
func (a *Agent) journalRecord(ctx context.Context, rec SignalRecord) error {
	if a.journal == nil {
		return nil
	}
	if err := a.journal.AppendValue(journal.RecordWalkStep, rec); err != nil {
		a.logger.LogJournal(ctx, err)
		return fmt.Errorf("journal walk step: %w", err)
	}
	return nil
}

// journalOutcome records a terminal outcome in the journal, best effort.
func (a *Agent) journalOutcome(ctx context.Context, stage Stage, outcome Outcome) {
	if a.journal == nil {
		return
	}
	payload := struct {
		Stage   string `json:"stage"`
		Outcome string `json:"outcome"`
	}{Stage: stage.String(), Outcome: outcome.String()}
	if err := a.journal.AppendValue(journal.RecordOutcome, payload); err != nil {
		a.logger.LogJournal(ctx, err)
	}
}
