package nestward

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nestward/nestward/route"
)

// Outcome describes how a walk ended.
type Outcome int

const (
	// OutcomeNone means the walk has not reached a terminal state, or
	// ended on a hard fault.
	OutcomeNone Outcome = iota
	// OutcomeReached means the walk reached its goal: the nest for a
	// homing walk, the end of the final route for a learning walk.
	OutcomeReached
	// OutcomeCapExceeded means the homing walk hit the safety cap or the
	// step limit before reaching the nest.
	OutcomeCapExceeded
	// OutcomeCancelled means the caller cancelled the walk. The partial
	// trace remains available; cancellation is not an error.
	OutcomeCancelled
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeReached:
		return "reached"
	case OutcomeCapExceeded:
		return "cap_exceeded"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// WalkStep reports one committed step of a walk.
//
// RouteIndex is the bound-route index for learning steps and -1 for
// homing steps. Fan and Turn are only set for homing steps.
type WalkStep struct {
	Stage       Stage
	RouteIndex  int
	SampleIndex int
	Pose        route.Pose
	Familiarity float32
	Fan         []float32
	Turn        float64
}

// LearningWalk is a cursor over a learning walk. Each Next call commits
// one recorded route sample: the agent teleports to the sample, perceives
// it and depresses the memory weights of the view's active code units.
type LearningWalk struct {
	agent   *Agent
	traces  []*route.Route
	ri, si  int
	steps   int
	outcome Outcome
	done    bool
	began   time.Time
}

// StartLearningWalk begins replaying all bound routes through the memory
// in learning mode. The agent must be ready.
func (a *Agent) StartLearningWalk(ctx context.Context) (*LearningWalk, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.world == nil {
		return nil, ErrNoWorld
	}
	if len(a.routes) == 0 {
		return nil, ErrNoRoutes
	}
	if a.state != StateReady {
		return nil, fmt.Errorf("%w: state %s", ErrNotReady, a.state)
	}

	traces := make([]*route.Route, len(a.routes))
	for i, r := range a.routes {
		traces[i] = &route.Route{
			ID:      uuid.New(),
			AgentID: a.id,
			Seq:     r.Seq,
			Step:    r.Step,
			Poses:   make([]route.Pose, 0, r.Len()),
		}
	}

	a.state = StateLearning
	a.logger.InfoContext(ctx, "learning walk started", "routes", len(a.routes))

	return &LearningWalk{
		agent:  a,
		traces: traces,
		began:  time.Now(),
	}, nil
}

// Next commits one learning sample and reports it. It returns ErrWalkDone
// once every sample of every route has been replayed, or after
// cancellation; Outcome distinguishes the two.
func (w *LearningWalk) Next(ctx context.Context) (WalkStep, error) {
	a := w.agent
	a.mu.Lock()
	defer a.mu.Unlock()

	if w.done {
		return WalkStep{}, ErrWalkDone
	}
	if ctx.Err() != nil {
		w.outcome = OutcomeCancelled
		w.finish(ctx, StateReady)
		a.logger.InfoContext(ctx, "learning walk cancelled", "samples", w.steps)
		return WalkStep{}, ErrWalkDone
	}

	r := a.routes[w.ri]
	sample := r.Poses[w.si]
	start := time.Now()

	a.pose = sample
	step, err := w.commitSample(ctx, sample)
	if err != nil {
		a.metrics.RecordLearnSample(time.Since(start), err)
		a.logger.LogLearnSample(ctx, w.ri, w.si, 0, err)
		w.finish(ctx, StateDone)
		return WalkStep{}, err
	}

	a.metrics.RecordLearnSample(time.Since(start), nil)
	a.logger.LogLearnSample(ctx, step.RouteIndex, step.SampleIndex, step.Familiarity, nil)

	w.steps++
	w.si++
	if w.si >= r.Len() {
		w.si = 0
		w.ri++
	}
	if w.ri >= len(a.routes) {
		w.outcome = OutcomeReached
		w.finish(ctx, StateReady)
		a.pose = a.feeder
		a.logger.LogLearningWalk(ctx, len(a.routes), w.steps, nil)
	}

	return step, nil
}

// commitSample perceives one route sample in learning mode and records
// it. Called with the agent's lock held.
func (w *LearningWalk) commitSample(ctx context.Context, sample route.Pose) (WalkStep, error) {
	a := w.agent

	pv, err := a.world.Snapshot(sample, 0)
	if err != nil {
		return WalkStep{}, fmt.Errorf("snapshot: %w", err)
	}
	fam, err := a.memory.Forward(pv, true)
	if err != nil {
		return WalkStep{}, translateError(err)
	}

	w.traces[w.ri].Poses = append(w.traces[w.ri].Poses, sample)
	rec := SignalRecord{
		Stage:       StageLearning,
		RouteIndex:  w.ri,
		SampleIndex: w.si,
		Pose:        sample,
		Familiarity: fam,
	}
	a.signals.Append(rec)
	if err := a.journalRecord(ctx, rec); err != nil {
		return WalkStep{}, err
	}

	return WalkStep{
		Stage:       StageLearning,
		RouteIndex:  w.ri,
		SampleIndex: w.si,
		Pose:        sample,
		Familiarity: fam,
	}, nil
}

// finish transitions the walk into its terminal state. Called with the
// agent's lock held.
func (w *LearningWalk) finish(ctx context.Context, next State) {
	w.done = true
	w.agent.state = next
	w.agent.metrics.RecordWalk(StageLearning, w.steps, time.Since(w.began), w.outcome)
	if w.outcome != OutcomeNone {
		w.agent.journalOutcome(ctx, StageLearning, w.outcome)
	}
}

// Steps iterates the walk to its terminal state, yielding each committed
// step. Iteration stops at the first error; ErrWalkDone is consumed, not
// yielded.
func (w *LearningWalk) Steps(ctx context.Context) iter.Seq2[WalkStep, error] {
	return func(yield func(WalkStep, error) bool) {
		for {
			step, err := w.Next(ctx)
			if errors.Is(err, ErrWalkDone) {
				return
			}
			if !yield(step, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Outcome reports how the walk ended, or OutcomeNone while in progress.
func (w *LearningWalk) Outcome() Outcome {
	w.agent.mu.Lock()
	defer w.agent.mu.Unlock()
	return w.outcome
}

// Traces returns deep copies of the replay traces built so far, one per
// bound route.
func (w *LearningWalk) Traces() []*route.Route {
	w.agent.mu.Lock()
	defer w.agent.mu.Unlock()

	out := make([]*route.Route, len(w.traces))
	for i, tr := range w.traces {
		out[i] = tr.Clone()
	}
	return out
}

// Learn drives a learning walk to completion and returns the replay
// traces. A cancelled walk returns the partial traces without error.
func (a *Agent) Learn(ctx context.Context) ([]*route.Route, error) {
	walk, err := a.StartLearningWalk(ctx)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := walk.Next(ctx); err != nil {
			if errors.Is(err, ErrWalkDone) {
				return walk.Traces(), nil
			}
			return walk.Traces(), err
		}
	}
}

// HomingWalk is a cursor over a homing walk. Each Next call scans the
// familiarity fan, turns toward the most familiar heading and advances
// one step length.
type HomingWalk struct {
	agent   *Agent
	trace   *route.Route
	dFeeder float64
	steps   int
	limit   int
	outcome Outcome
	done    bool
	began   time.Time
}

// StartHoming places the agent at the feeder with the initial heading of
// the most recently bound route and begins a homing walk. The agent must
// be ready; the memory is queried read-only from here on.
func (a *Agent) StartHoming(ctx context.Context) (*HomingWalk, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.world == nil {
		return nil, ErrNoWorld
	}
	if len(a.routes) == 0 {
		return nil, ErrNoRoutes
	}
	if a.state != StateReady {
		return nil, fmt.Errorf("%w: state %s", ErrNotReady, a.state)
	}

	limit := a.opts.StepLimit
	if limit == 0 {
		limit = int(math.Ceil(a.opts.SafetyCap / a.step))
	}

	a.pose = a.routes[len(a.routes)-1].Feeder()
	a.state = StateHoming
	a.logger.InfoContext(ctx, "homing walk started",
		"step", a.step,
		"nest_tolerance", a.opts.NestTolerance,
		"safety_cap", a.opts.SafetyCap,
		"step_limit", limit,
	)

	return &HomingWalk{
		agent: a,
		trace: &route.Route{
			ID:      uuid.New(),
			AgentID: a.id,
			Seq:     len(a.routes),
			Step:    a.step,
		},
		limit: limit,
		began: time.Now(),
	}, nil
}

// Next commits one scan-and-step cycle and reports it. Terminal
// conditions are checked before scanning: reaching the nest tolerance,
// exceeding the safety cap or step limit, and cancellation all end the
// walk with ErrWalkDone and a corresponding Outcome.
func (w *HomingWalk) Next(ctx context.Context) (WalkStep, error) {
	a := w.agent
	a.mu.Lock()
	defer a.mu.Unlock()

	if w.done {
		return WalkStep{}, ErrWalkDone
	}

	switch {
	case ctx.Err() != nil:
		w.outcome = OutcomeCancelled
	case route.Dist2D(a.pose, a.nest) <= a.opts.NestTolerance:
		w.outcome = OutcomeReached
	case w.dFeeder >= a.opts.SafetyCap || w.steps >= w.limit:
		w.outcome = OutcomeCapExceeded
	}
	if w.outcome != OutcomeNone {
		w.finish(ctx)
		return WalkStep{}, ErrWalkDone
	}

	start := time.Now()
	scan, err := a.scanFan()
	a.metrics.RecordScan(len(a.fan.offsets), time.Since(start), err)
	if err != nil {
		a.metrics.RecordHomingStep(time.Since(start), err)
		a.logger.LogHomingStep(ctx, w.steps, 0, 0, route.Dist2D(a.pose, a.nest), err)
		w.fail()
		return WalkStep{}, err
	}

	a.pose.Heading = route.NormalizeHeading(a.pose.Heading + scan.turn)
	a.pose.X += a.step * math.Cos(a.pose.Heading)
	a.pose.Y += a.step * math.Sin(a.pose.Heading)
	w.dFeeder += a.step
	w.trace.Poses = append(w.trace.Poses, a.pose)

	rec := SignalRecord{
		Stage:       StageHoming,
		RouteIndex:  -1,
		SampleIndex: w.steps,
		Pose:        a.pose,
		Familiarity: scan.fam[scan.argmin],
		Fan:         scan.fam,
		Turn:        scan.turn,
	}
	a.signals.Append(rec)
	if err := a.journalRecord(ctx, rec); err != nil {
		a.metrics.RecordHomingStep(time.Since(start), err)
		w.fail()
		return WalkStep{}, err
	}

	step := WalkStep{
		Stage:       StageHoming,
		RouteIndex:  -1,
		SampleIndex: w.steps,
		Pose:        a.pose,
		Familiarity: rec.Familiarity,
		Fan:         scan.fam,
		Turn:        scan.turn,
	}
	w.steps++

	a.metrics.RecordHomingStep(time.Since(start), nil)
	a.logger.LogHomingStep(ctx, step.SampleIndex, scan.turn, step.Familiarity, route.Dist2D(a.pose, a.nest), nil)

	return step, nil
}

// finish transitions the walk into its terminal state. Called with the
// agent's lock held.
func (w *HomingWalk) finish(ctx context.Context) {
	a := w.agent
	w.done = true
	a.state = StateDone
	a.metrics.RecordWalk(StageHoming, w.steps, time.Since(w.began), w.outcome)
	a.logger.LogHomingWalk(ctx, w.outcome, w.steps, route.Dist2D(a.pose, a.nest))
	a.journalOutcome(ctx, StageHoming, w.outcome)
}

// fail ends the walk on a hard fault, leaving the outcome OutcomeNone.
// Called with the agent's lock held.
func (w *HomingWalk) fail() {
	a := w.agent
	w.done = true
	a.state = StateDone
	a.metrics.RecordWalk(StageHoming, w.steps, time.Since(w.began), OutcomeNone)
}

// Steps iterates the walk to its terminal state, yielding each committed
// step. Iteration stops at the first error; ErrWalkDone is consumed, not
// yielded.
func (w *HomingWalk) Steps(ctx context.Context) iter.Seq2[WalkStep, error] {
	return func(yield func(WalkStep, error) bool) {
		for {
			step, err := w.Next(ctx)
			if errors.Is(err, ErrWalkDone) {
				return
			}
			if !yield(step, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Outcome reports how the walk ended, or OutcomeNone while in progress.
func (w *HomingWalk) Outcome() Outcome {
	w.agent.mu.Lock()
	defer w.agent.mu.Unlock()
	return w.outcome
}

// Trace returns a deep copy of the homing trace recorded so far.
func (w *HomingWalk) Trace() *route.Route {
	w.agent.mu.Lock()
	defer w.agent.mu.Unlock()
	return w.trace.Clone()
}

// DistanceFromFeeder returns the accumulated walked distance.
func (w *HomingWalk) DistanceFromFeeder() float64 {
	w.agent.mu.Lock()
	defer w.agent.mu.Unlock()
	return w.dFeeder
}

// Home drives a homing walk to its terminal state and returns the trace
// and outcome. Cancellation returns the partial trace with
// OutcomeCancelled and a nil error; only hard faults (encoder failures,
// dimension mismatches, journal errors) return a non-nil error.
func (a *Agent) Home(ctx context.Context) (*route.Route, Outcome, error) {
	walk, err := a.StartHoming(ctx)
	if err != nil {
		return nil, OutcomeNone, err
	}
	for {
		if _, err := walk.Next(ctx); err != nil {
			if errors.Is(err, ErrWalkDone) {
				return walk.Trace(), walk.Outcome(), nil
			}
			return walk.Trace(), walk.Outcome(), err
		}
	}
}
