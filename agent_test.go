package nestward_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestward/nestward"
	"github.com/nestward/nestward/route"
)

func TestNewAgentValidation(t *testing.T) {
	tests := []struct {
		name  string
		optFn func(o *nestward.Options)
	}{
		{
			name:  "even fan samples",
			optFn: func(o *nestward.Options) { o.FanSamples = 60 },
		},
		{
			name:  "too few fan samples",
			optFn: func(o *nestward.Options) { o.FanSamples = 1 },
		},
		{
			name:  "zero fan half width",
			optFn: func(o *nestward.Options) { o.FanHalfWidth = 0 },
		},
		{
			name:  "negative tie break magnitude",
			optFn: func(o *nestward.Options) { o.TieBreakMagnitude = -0.1 },
		},
		{
			name:  "zero nest tolerance",
			optFn: func(o *nestward.Options) { o.NestTolerance = 0 },
		},
		{
			name:  "zero safety cap",
			optFn: func(o *nestward.Options) { o.SafetyCap = 0 },
		},
		{
			name:  "negative step limit",
			optFn: func(o *nestward.Options) { o.StepLimit = -1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := nestward.NewAgent(tt.optFn)
			assert.ErrorIs(t, err, nestward.ErrInvalidOptions)
		})
	}
}

func TestNewAgentDefaults(t *testing.T) {
	agent, err := nestward.NewAgent()
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, agent.ID())
	assert.True(t, strings.HasPrefix(agent.Name(), "agent-"))
	assert.Equal(t, nestward.StateUninitialised, agent.State())

	// The default memory is a mushroom network over a 360-bin panorama.
	require.NotNil(t, agent.Memory())
	assert.Equal(t, 360, agent.Memory().Dimension())
}

func TestSetWorld(t *testing.T) {
	agent, err := nestward.NewAgent(nestward.WithMemory(&stubMemory{dim: 4}))
	require.NoError(t, err)

	assert.ErrorIs(t, agent.SetWorld(nil), nestward.ErrNoWorld)

	var mismatch *nestward.ErrDimensionMismatch
	err = agent.SetWorld(&stubWorld{dim: 5})
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 5, mismatch.Actual)

	assert.NoError(t, agent.SetWorld(&stubWorld{dim: 4}))
	// Swapping the world outside a walk is allowed.
	assert.NoError(t, agent.SetWorld(&stubWorld{dim: 4}))
}

func TestBindRoute(t *testing.T) {
	t.Run("empty route", func(t *testing.T) {
		agent, _, _ := stubAgent(t)
		assert.ErrorIs(t, agent.BindRoute(nil), route.ErrEmptyRoute)
		assert.ErrorIs(t, agent.BindRoute(&route.Route{}), route.ErrEmptyRoute)
		assert.Equal(t, nestward.StateUninitialised, agent.State())
	})

	t.Run("no world", func(t *testing.T) {
		agent, err := nestward.NewAgent(nestward.WithMemory(&stubMemory{dim: 4}))
		require.NoError(t, err)

		r, err := route.New(agent.ID(), 0, []route.Pose{{}, {X: 1}})
		require.NoError(t, err)
		assert.ErrorIs(t, agent.BindRoute(r), nestward.ErrNoWorld)
	})

	t.Run("first bind readies the agent", func(t *testing.T) {
		agent, _, _ := stubAgent(t)
		r := lineRoute(t, agent, 0, 5, route.Pose{X: 1, Y: 2}, route.Pose{X: 5, Y: 2})

		require.NoError(t, agent.BindRoute(r))
		assert.Equal(t, nestward.StateReady, agent.State())
		assert.Equal(t, r.Feeder(), agent.Pose())
		assert.Equal(t, r.Feeder(), agent.Feeder())
		assert.Equal(t, r.Nest(), agent.Nest())
		assert.InDelta(t, 1.0, agent.StepLength(), 1e-9)
	})

	t.Run("duplicate id", func(t *testing.T) {
		agent, _, _ := stubAgent(t)
		r := lineRoute(t, agent, 0, 3, route.Pose{}, route.Pose{X: 1})

		require.NoError(t, agent.BindRoute(r))
		assert.ErrorIs(t, agent.BindRoute(r), nestward.ErrRouteBound)
		assert.Len(t, agent.Routes(), 1)
	})

	t.Run("latest bind wins", func(t *testing.T) {
		agent, _, _ := stubAgent(t)
		first := lineRoute(t, agent, 0, 3, route.Pose{}, route.Pose{X: 1})
		second := lineRoute(t, agent, 1, 3, route.Pose{X: 3, Y: 3}, route.Pose{X: 3, Y: 9})

		require.NoError(t, agent.BindRoute(first))
		require.NoError(t, agent.BindRoute(second))

		assert.Equal(t, second.Feeder(), agent.Feeder())
		assert.Equal(t, second.Nest(), agent.Nest())
		assert.InDelta(t, 3.0, agent.StepLength(), 1e-9)
		// The pose only follows the feeder on the first bind.
		assert.Equal(t, first.Feeder(), agent.Pose())
		assert.Len(t, agent.Routes(), 2)
	})
}

func TestBindRouteConditioned(t *testing.T) {
	world := &stubWorld{dim: 4}
	agent, err := nestward.NewAgent(
		nestward.WithMemory(&stubMemory{dim: 4}),
		func(o *nestward.Options) {
			o.Condition = route.Hybrid{TauX: 0.1}
		},
	)
	require.NoError(t, err)
	require.NoError(t, agent.SetWorld(world))

	r, err := route.New(agent.ID(), 0, []route.Pose{{}, {X: 1}})
	require.NoError(t, err)
	require.NoError(t, agent.BindRoute(r))

	// Densified to 0.1-spaced poses; the nominal step length is kept.
	bound := agent.Routes()[0]
	assert.Equal(t, 11, bound.Len())
	assert.InDelta(t, 1.0, agent.StepLength(), 1e-9)

	// The caller's route is untouched.
	assert.Equal(t, 2, r.Len())
}

func TestReset(t *testing.T) {
	agent, _, _ := stubAgent(t)
	assert.ErrorIs(t, agent.Reset(), nestward.ErrNoRoutes)

	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 3, route.Pose{Y: 1}, route.Pose{X: 1, Y: 1})))
	require.NoError(t, agent.Reset())
	assert.Equal(t, nestward.StateReady, agent.State())
	assert.Equal(t, agent.Feeder(), agent.Pose())
}

func TestWipeMemory(t *testing.T) {
	agent, _, memory := stubAgent(t)
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 3, route.Pose{}, route.Pose{X: 1})))

	agent.WipeMemory()
	assert.Equal(t, 1, memory.resets)
	// Wiping is orthogonal to the walk state machine.
	assert.Equal(t, nestward.StateReady, agent.State())
}

func TestRoutesDeepCopy(t *testing.T) {
	agent, _, _ := stubAgent(t)
	require.NoError(t, agent.BindRoute(lineRoute(t, agent, 0, 3, route.Pose{}, route.Pose{X: 1})))

	rs := agent.Routes()
	rs[0].Poses[0].X = 99

	assert.Zero(t, agent.Routes()[0].Poses[0].X)
}
