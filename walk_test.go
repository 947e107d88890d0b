package nestward_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestward/nestward"
	"github.com/nestward/nestward/journal"
	"github.com/nestward/nestward/route"
)

var errBoom = errors.New("boom")

// stubWorld is a scripted encoder. The returned vector carries the view
// offset in its first element so a stubMemory can score individual fan
// samples.
type stubWorld struct {
	dim  int
	fail func(p route.Pose, offset float64) error
}

func (w *stubWorld) Dimension() int { return w.dim }

func (w *stubWorld) Snapshot(p route.Pose, offset float64) ([]float32, error) {
	if w.fail != nil {
		if err := w.fail(p, offset); err != nil {
			return nil, err
		}
	}
	pv := make([]float32, w.dim)
	pv[0] = float32(offset)
	if w.dim > 2 {
		pv[1] = float32(p.X)
		pv[2] = float32(p.Y)
	}
	return pv, nil
}

// stubMemory is a scripted memory. score maps the view offset carried in
// the vector's first element to a familiarity value; nil scores
// everything 0.5.
type stubMemory struct {
	dim     int
	score   func(offset float64) float32
	failAt  int // fail the nth learning pass, 0 disables
	learned int
	resets  int
}

func (m *stubMemory) Dimension() int { return m.dim }

func (m *stubMemory) Forward(pv []float32, learn bool) (float32, error) {
	if learn {
		m.learned++
		if m.failAt > 0 && m.learned == m.failAt {
			return 0, errBoom
		}
	}
	if m.score == nil {
		return 0.5, nil
	}
	return m.score(float64(pv[0])), nil
}

func (m *stubMemory) Reset() { m.resets++ }

// stubAgent builds an agent wired to scripted doubles.
func stubAgent(t *testing.T, optFns ...func(o *nestward.Options)) (*nestward.Agent, *stubWorld, *stubMemory) {
	t.Helper()

	world := &stubWorld{dim: 4}
	memory := &stubMemory{dim: 4}

	fns := append([]func(o *nestward.Options){nestward.WithMemory(memory)}, optFns...)
	agent, err := nestward.NewAgent(fns...)
	require.NoError(t, err)
	require.NoError(t, agent.SetWorld(world))

	return agent, world, memory
}

// lineRoute records n poses along a straight segment, all sharing the
// start heading.
func lineRoute(t *testing.T, agent *nestward.Agent, seq, n int, from, to route.Pose) *route.Route {
	t.Helper()

	poses := make([]route.Pose, n)
	for i := range poses {
		f := float64(i) / float64(n-1)
		poses[i] = route.Pose{
			X:       from.X + f*(to.X-from.X),
			Y:       from.Y + f*(to.Y-from.Y),
			Heading: from.Heading,
		}
	}
	r, err := route.New(agent.ID(), seq, poses)
	require.NoError(t, err)
	return r
}

// fanOffset returns the view offset of fan sample i for the default
// 61-sample, ±60° fan.
func fanOffset(i int) float64 {
	return -math.Pi/3 + float64(i)*(math.Pi/90)
}

func TestLearningWalkReplaysRoutes(t *testing.T) {
	ctx := context.Background()
	agent, _, memory := stubAgent(t)

	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 3, route.Pose{}, route.Pose{X: 1})))
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 1, 2, route.Pose{X: 1, Heading: math.Pi / 2}, route.Pose{X: 1, Y: 1, Heading: math.Pi / 2})))

	walk, err := agent.StartLearningWalk(ctx)
	require.NoError(t, err)
	assert.Equal(t, nestward.StateLearning, agent.State())

	var steps []nestward.WalkStep
	for {
		step, err := walk.Next(ctx)
		if errors.Is(err, nestward.ErrWalkDone) {
			break
		}
		require.NoError(t, err)
		steps = append(steps, step)
	}

	// Every sample of every route, in bind order.
	require.Len(t, steps, 5)
	wantOrder := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}}
	for i, want := range wantOrder {
		assert.Equal(t, nestward.StageLearning, steps[i].Stage)
		assert.Equal(t, want[0], steps[i].RouteIndex)
		assert.Equal(t, want[1], steps[i].SampleIndex)
	}

	assert.Equal(t, 5, memory.learned)
	assert.Equal(t, nestward.OutcomeReached, walk.Outcome())
	assert.Equal(t, nestward.StateReady, agent.State())
	assert.Equal(t, agent.Feeder(), agent.Pose())

	traces := walk.Traces()
	require.Len(t, traces, 2)
	routes := agent.Routes()
	assert.Equal(t, routes[0].Poses, traces[0].Poses)
	assert.Equal(t, routes[1].Poses, traces[1].Poses)
	assert.Equal(t, agent.ID(), traces[0].AgentID)
	assert.Equal(t, 0, traces[0].Seq)
	assert.Equal(t, 1, traces[1].Seq)

	require.Equal(t, 5, agent.SignalLog().Len())
	recs := agent.SignalLog().Records()
	assert.Equal(t, nestward.StageLearning, recs[3].Stage)
	assert.Equal(t, 1, recs[3].RouteIndex)
	assert.Equal(t, 0, recs[3].SampleIndex)
}

func TestLearnDrivesToCompletion(t *testing.T) {
	agent, _, memory := stubAgent(t)
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 4, route.Pose{}, route.Pose{X: 1})))

	traces, err := agent.Learn(context.Background())
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, 4, traces[0].Len())
	assert.Equal(t, 4, memory.learned)
}

func TestLearningWalkCancelled(t *testing.T) {
	agent, _, _ := stubAgent(t)
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 4, route.Pose{}, route.Pose{X: 1})))

	ctx, cancel := context.WithCancel(context.Background())
	walk, err := agent.StartLearningWalk(ctx)
	require.NoError(t, err)

	_, err = walk.Next(ctx)
	require.NoError(t, err)

	cancel()

	_, err = walk.Next(ctx)
	assert.ErrorIs(t, err, nestward.ErrWalkDone)
	assert.Equal(t, nestward.OutcomeCancelled, walk.Outcome())
	assert.Equal(t, nestward.StateReady, agent.State())

	traces := walk.Traces()
	require.Len(t, traces, 1)
	assert.Equal(t, 1, traces[0].Len())
}

func TestLearningWalkMemoryFault(t *testing.T) {
	ctx := context.Background()
	agent, _, memory := stubAgent(t)
	memory.failAt = 2
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 4, route.Pose{}, route.Pose{X: 1})))

	walk, err := agent.StartLearningWalk(ctx)
	require.NoError(t, err)

	_, err = walk.Next(ctx)
	require.NoError(t, err)

	_, err = walk.Next(ctx)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, nestward.OutcomeNone, walk.Outcome())
	assert.Equal(t, nestward.StateDone, agent.State())

	_, err = walk.Next(ctx)
	assert.ErrorIs(t, err, nestward.ErrWalkDone)

	require.NoError(t, agent.Reset())
	assert.Equal(t, nestward.StateReady, agent.State())
}

func TestHomingTurnsTowardMinimum(t *testing.T) {
	ctx := context.Background()
	agent, _, memory := stubAgent(t)

	// Sample 33 of the fan carries the global minimum: three bins right
	// of centre, a +6° turn.
	memory.score = func(off float64) float32 {
		if math.Abs(off-fanOffset(33)) < 1e-4 {
			return 0.20
		}
		return 0.40
	}

	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 5, route.Pose{}, route.Pose{X: 10})))

	walk, err := agent.StartHoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, nestward.StateHoming, agent.State())

	step, err := walk.Next(ctx)
	require.NoError(t, err)

	const turn = math.Pi / 30 // +6°
	stepLen := agent.StepLength()

	assert.Equal(t, nestward.StageHoming, step.Stage)
	assert.Equal(t, -1, step.RouteIndex)
	assert.Equal(t, 0, step.SampleIndex)
	assert.InDelta(t, turn, step.Turn, 1e-9)
	assert.InDelta(t, turn, step.Pose.Heading, 1e-9)
	assert.InDelta(t, stepLen*math.Cos(turn), step.Pose.X, 1e-9)
	assert.InDelta(t, stepLen*math.Sin(turn), step.Pose.Y, 1e-9)

	require.Len(t, step.Fan, 61)
	assert.InDelta(t, 0.20, float64(step.Fan[33]), 1e-6)
	assert.InDelta(t, 0.20, float64(step.Familiarity), 1e-6)
}

func TestHomingTieBreak(t *testing.T) {
	ctx := context.Background()

	t.Run("flat fan prefers straight ahead", func(t *testing.T) {
		agent, _, _ := stubAgent(t)
		require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 5, route.Pose{}, route.Pose{X: 10})))

		walk, err := agent.StartHoming(ctx)
		require.NoError(t, err)

		step, err := walk.Next(ctx)
		require.NoError(t, err)
		assert.Zero(t, step.Turn)
		assert.Zero(t, step.Pose.Heading)
		assert.InDelta(t, agent.StepLength(), step.Pose.X, 1e-9)
		assert.InDelta(t, 0, step.Pose.Y, 1e-9)
	})

	t.Run("symmetric tie falls to the lower index", func(t *testing.T) {
		agent, _, memory := stubAgent(t)
		// Samples 28 and 32 tie after the ramp; 28 wins, a -4° turn.
		memory.score = func(off float64) float32 {
			if math.Abs(off-fanOffset(28)) < 1e-4 || math.Abs(off-fanOffset(32)) < 1e-4 {
				return 0.20
			}
			return 0.40
		}
		require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 5, route.Pose{}, route.Pose{X: 10})))

		walk, err := agent.StartHoming(ctx)
		require.NoError(t, err)

		step, err := walk.Next(ctx)
		require.NoError(t, err)
		assert.InDelta(t, fanOffset(28), step.Turn, 1e-9)
		assert.Negative(t, step.Turn)
	})
}

func TestHomingReachesNest(t *testing.T) {
	ctx := context.Background()
	agent, _, _ := stubAgent(t)

	// One straight step lands exactly on the nest.
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 2, route.Pose{}, route.Pose{X: 0.25})))

	walk, err := agent.StartHoming(ctx)
	require.NoError(t, err)

	step, err := walk.Next(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, step.Pose.X, 1e-9)

	_, err = walk.Next(ctx)
	assert.ErrorIs(t, err, nestward.ErrWalkDone)
	assert.Equal(t, nestward.OutcomeReached, walk.Outcome())
	assert.Equal(t, nestward.StateDone, agent.State())

	trace := walk.Trace()
	require.Equal(t, 1, trace.Len())
	assert.InDelta(t, 0.25, trace.Poses[0].X, 1e-9)
}

func TestHomeDrivesToNest(t *testing.T) {
	agent, _, _ := stubAgent(t)
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 2, route.Pose{}, route.Pose{X: 0.25})))

	trace, outcome, err := agent.Home(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nestward.OutcomeReached, outcome)
	assert.Equal(t, 1, trace.Len())
}

func TestHomingSafetyCap(t *testing.T) {
	ctx := context.Background()
	agent, _, _ := stubAgent(t, func(o *nestward.Options) {
		o.SafetyCap = 1.0
	})

	r, err := route.New(agent.ID(), 0, []route.Pose{{}, {X: 100}}, func(o *route.Options) {
		o.Step = 0.25
	})
	require.NoError(t, err)
	require.NoError(t, agent.BindRoute(r))

	walk, err := agent.StartHoming(ctx)
	require.NoError(t, err)

	// ceil(1.0 / 0.25) = 4 committed steps before the cap trips.
	for i := 0; i < 4; i++ {
		_, err := walk.Next(ctx)
		require.NoError(t, err)
	}

	_, err = walk.Next(ctx)
	assert.ErrorIs(t, err, nestward.ErrWalkDone)
	assert.Equal(t, nestward.OutcomeCapExceeded, walk.Outcome())
	assert.InDelta(t, 1.0, walk.DistanceFromFeeder(), 1e-9)
	assert.Equal(t, 4, walk.Trace().Len())
}

func TestHomingStepLimit(t *testing.T) {
	agent, _, _ := stubAgent(t, func(o *nestward.Options) {
		o.StepLimit = 2
	})
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 5, route.Pose{}, route.Pose{X: 10})))

	trace, outcome, err := agent.Home(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nestward.OutcomeCapExceeded, outcome)
	assert.Equal(t, 2, trace.Len())
}

func TestHomingCancellation(t *testing.T) {
	agent, _, _ := stubAgent(t)
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 5, route.Pose{}, route.Pose{X: 10})))

	ctx, cancel := context.WithCancel(context.Background())
	walk, err := agent.StartHoming(ctx)
	require.NoError(t, err)

	_, err = walk.Next(ctx)
	require.NoError(t, err)

	cancel()

	_, err = walk.Next(ctx)
	assert.ErrorIs(t, err, nestward.ErrWalkDone)
	assert.Equal(t, nestward.OutcomeCancelled, walk.Outcome())
	assert.Equal(t, 1, walk.Trace().Len())
}

func TestHomeCancelledIsNotAnError(t *testing.T) {
	agent, _, _ := stubAgent(t)
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 5, route.Pose{}, route.Pose{X: 10})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trace, outcome, err := agent.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, nestward.OutcomeCancelled, outcome)
	assert.Equal(t, 0, trace.Len())
}

func TestHomingEncoderFault(t *testing.T) {
	ctx := context.Background()
	agent, world, _ := stubAgent(t)
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 5, route.Pose{}, route.Pose{X: 10})))

	world.fail = func(route.Pose, float64) error { return errBoom }

	walk, err := agent.StartHoming(ctx)
	require.NoError(t, err)

	_, err = walk.Next(ctx)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, nestward.OutcomeNone, walk.Outcome())
	assert.Equal(t, nestward.StateDone, agent.State())

	_, err = walk.Next(ctx)
	assert.ErrorIs(t, err, nestward.ErrWalkDone)
}

func TestHomingStepsIterator(t *testing.T) {
	agent, _, _ := stubAgent(t, func(o *nestward.Options) {
		o.StepLimit = 3
	})
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 5, route.Pose{}, route.Pose{X: 10})))

	walk, err := agent.StartHoming(context.Background())
	require.NoError(t, err)

	count := 0
	for step, err := range walk.Steps(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, count, step.SampleIndex)
		count++
	}
	assert.Equal(t, 3, count)
	assert.Equal(t, nestward.OutcomeCapExceeded, walk.Outcome())
}

func TestWalkGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("no world", func(t *testing.T) {
		memory := &stubMemory{dim: 4}
		agent, err := nestward.NewAgent(nestward.WithMemory(memory))
		require.NoError(t, err)

		_, err = agent.StartLearningWalk(ctx)
		assert.ErrorIs(t, err, nestward.ErrNoWorld)
		_, err = agent.StartHoming(ctx)
		assert.ErrorIs(t, err, nestward.ErrNoWorld)
	})

	t.Run("no routes", func(t *testing.T) {
		agent, _, _ := stubAgent(t)
		_, err := agent.StartLearningWalk(ctx)
		assert.ErrorIs(t, err, nestward.ErrNoRoutes)
		_, err = agent.StartHoming(ctx)
		assert.ErrorIs(t, err, nestward.ErrNoRoutes)
	})

	t.Run("walk in progress", func(t *testing.T) {
		agent, world, _ := stubAgent(t)
		require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 3, route.Pose{}, route.Pose{X: 1})))

		walk, err := agent.StartLearningWalk(ctx)
		require.NoError(t, err)

		_, err = agent.StartLearningWalk(ctx)
		assert.ErrorIs(t, err, nestward.ErrNotReady)
		_, err = agent.StartHoming(ctx)
		assert.ErrorIs(t, err, nestward.ErrNotReady)
		assert.ErrorIs(t, agent.BindRoute(lineRoute(t, agent, 1, 3, route.Pose{}, route.Pose{X: 1})), nestward.ErrNotReady)
		assert.ErrorIs(t, agent.SetWorld(world), nestward.ErrNotReady)
		assert.ErrorIs(t, agent.Reset(), nestward.ErrNotReady)

		for {
			if _, err := walk.Next(ctx); errors.Is(err, nestward.ErrWalkDone) {
				break
			}
		}
		assert.Equal(t, nestward.StateReady, agent.State())
	})
}

func TestHomingStartsAtFeeder(t *testing.T) {
	ctx := context.Background()
	agent, _, _ := stubAgent(t, func(o *nestward.Options) {
		o.StepLimit = 1
	})
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 5, route.Pose{Y: 2}, route.Pose{X: 10, Y: 2})))

	_, outcome, err := agent.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, nestward.OutcomeCapExceeded, outcome)
	assert.NotEqual(t, agent.Feeder(), agent.Pose())
	assert.Equal(t, nestward.StateDone, agent.State())

	require.NoError(t, agent.Reset())
	assert.Equal(t, agent.Feeder(), agent.Pose())

	walk, err := agent.StartHoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, agent.Feeder(), agent.Pose())
	_, err = walk.Next(ctx)
	require.NoError(t, err)
}

func TestWalkJournalRecords(t *testing.T) {
	ctx := context.Background()

	j, err := journal.Open(filepath.Join(t.TempDir(), "walks.journal"))
	require.NoError(t, err)
	defer j.Close()

	agent, _, _ := stubAgent(t, nestward.WithJournal(j), func(o *nestward.Options) {
		o.StepLimit = 2
	})
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 3, route.Pose{}, route.Pose{X: 10})))

	_, err = agent.Learn(ctx)
	require.NoError(t, err)

	require.NoError(t, agent.Reset())
	_, _, err = agent.Home(ctx)
	require.NoError(t, err)

	var stepRecs, outcomeRecs int
	var first nestward.SignalRecord
	require.NoError(t, j.Replay(func(rec journal.Record) error {
		switch rec.Type {
		case journal.RecordWalkStep:
			if stepRecs == 0 {
				require.NoError(t, j.DecodeValue(rec, &first))
			}
			stepRecs++
		case journal.RecordOutcome:
			outcomeRecs++
		}
		return nil
	}))

	// 3 learning samples + 2 homing steps, plus one outcome per walk.
	assert.Equal(t, 5, stepRecs)
	assert.Equal(t, 2, outcomeRecs)
	assert.Equal(t, nestward.StageLearning, first.Stage)
	assert.Equal(t, 0, first.RouteIndex)
}

func TestBasicMetricsAcrossWalks(t *testing.T) {
	ctx := context.Background()
	metrics := &nestward.BasicMetricsCollector{}

	agent, _, _ := stubAgent(t, func(o *nestward.Options) {
		o.Metrics = metrics
		o.StepLimit = 2
	})
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 3, route.Pose{}, route.Pose{X: 10})))

	_, err := agent.Learn(ctx)
	require.NoError(t, err)
	require.NoError(t, agent.Reset())
	_, _, err = agent.Home(ctx)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.LearnSampleCount)
	assert.Equal(t, int64(0), stats.LearnSampleErrors)
	assert.Equal(t, int64(2), stats.ScanCount)
	assert.Equal(t, int64(122), stats.ScanSamples)
	assert.Equal(t, int64(2), stats.HomingStepCount)
	assert.Equal(t, int64(2), stats.WalkCount)
	assert.Equal(t, int64(5), stats.WalkSteps)
	assert.Equal(t, int64(1), stats.WalksReached)
	assert.Equal(t, int64(1), stats.WalksCapExceeded)
}
