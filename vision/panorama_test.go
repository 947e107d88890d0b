package vision

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestward/nestward/cache"
	"github.com/nestward/nestward/route"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		fn   func(o *Options)
	}{
		{"two channels", func(o *Options) { o.Channels = 2 }},
		{"zero samples", func(o *Options) { o.Samples = 0 }},
		{"negative landmarks", func(o *Options) { o.Landmarks = -1 }},
		{"zero field radius", func(o *Options) { o.FieldRadius = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fn)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestSnapshotDeterministic(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	pose := route.Pose{X: 1.5, Y: -0.5, Heading: 0.3}

	a, err := p.Snapshot(pose, 0.1)
	require.NoError(t, err)
	b, err := p.Snapshot(pose, 0.1)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, p.Dimension())

	// The pose is untouched.
	assert.Equal(t, 0.3, pose.Heading)
}

func TestSnapshotSeedDeterminism(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	assert.Equal(t, a.Landmarks(), b.Landmarks())

	pose := route.Pose{X: 0.2, Y: 0.7, Heading: 1.1}
	va, err := a.Snapshot(pose, 0)
	require.NoError(t, err)
	vb, err := b.Snapshot(pose, 0)
	require.NoError(t, err)
	assert.Equal(t, va, vb)

	c, err := New(func(o *Options) { o.Seed = 2 })
	require.NoError(t, err)
	assert.NotEqual(t, a.Landmarks(), c.Landmarks())
}

func TestSnapshotValuesInRange(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	pv, err := p.Snapshot(route.Pose{X: 2, Y: 3, Heading: 0.7}, 0)
	require.NoError(t, err)

	for i, v := range pv {
		assert.GreaterOrEqualf(t, v, float32(0), "index %d", i)
		assert.LessOrEqualf(t, v, float32(1), "index %d", i)
	}
}

func TestSnapshotRotationShiftsBins(t *testing.T) {
	p, err := New(func(o *Options) { o.Autocontrast = false; o.Invert = false })
	require.NoError(t, err)

	n := p.Options().Samples
	pose := route.Pose{X: 0.5, Y: 0.5, Heading: 0}

	base, err := p.Snapshot(pose, 0)
	require.NoError(t, err)

	// One whole bin of rotation moves each sample down one slot.
	turned := pose
	turned.Heading = 2 * math.Pi / float64(n)
	shifted, err := p.Snapshot(turned, 0)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		assert.InDelta(t, base[(i+1)%n], shifted[i], 1e-5, "bin %d", i)
	}
}

func TestSnapshotOffsetMatchesHeading(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	pose := route.Pose{X: 1, Y: 2, Heading: 0.4}
	viaOffset, err := p.Snapshot(pose, 0.25)
	require.NoError(t, err)

	turned := pose
	turned.Heading = 0.65
	viaHeading, err := p.Snapshot(turned, 0)
	require.NoError(t, err)

	for i := range viaOffset {
		assert.InDelta(t, viaHeading[i], viaOffset[i], 1e-5, "bin %d", i)
	}
}

func TestSnapshotRGB(t *testing.T) {
	p, err := New(func(o *Options) { o.Channels = 3 })
	require.NoError(t, err)

	pv, err := p.Snapshot(route.Pose{}, 0)
	require.NoError(t, err)
	assert.Len(t, pv, 3*p.Options().Samples)
}

func TestAutocontrast(t *testing.T) {
	ch := []float32{0.2, 0.4, 0.6}
	autocontrast(ch)
	assert.InDelta(t, 0.0, ch[0], 1e-6)
	assert.InDelta(t, 0.5, ch[1], 1e-6)
	assert.InDelta(t, 1.0, ch[2], 1e-6)

	flat := []float32{0.3, 0.3}
	autocontrast(flat)
	assert.Equal(t, []float32{0.3, 0.3}, flat)
}

func TestSetTimeDarkensNight(t *testing.T) {
	p, err := New(func(o *Options) {
		o.Landmarks = 0
		o.Autocontrast = false
		o.Invert = false
	})
	require.NoError(t, err)

	day, err := p.Snapshot(route.Pose{}, 0)
	require.NoError(t, err)

	p.SetTime(time.Date(2017, time.June, 21, 1, 0, 0, 0, time.UTC))
	night, err := p.Snapshot(route.Pose{}, 0)
	require.NoError(t, err)

	var daySum, nightSum float64
	for i := range day {
		daySum += float64(day[i])
		nightSum += float64(night[i])
	}
	assert.Less(t, nightSum, daySum, "night sky must be darker than day")
}

func TestSnapshotCache(t *testing.T) {
	bc := cache.NewLRUBlockCache(1<<20, nil)
	p, err := New(WithSnapshotCache(bc))
	require.NoError(t, err)

	pose := route.Pose{X: 1, Y: 1, Heading: 0.2}

	first, err := p.Snapshot(pose, 0)
	require.NoError(t, err)
	second, err := p.Snapshot(pose, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	hits, misses := bc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	// Advancing the sky invalidates the cached entry.
	p.SetTime(p.Time().Add(6 * time.Hour))
	_, err = p.Snapshot(pose, 0)
	require.NoError(t, err)

	hits, misses = bc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestNoLandmarksPureSky(t *testing.T) {
	p, err := New(func(o *Options) {
		o.Landmarks = 0
		o.Autocontrast = false
		o.Invert = false
	})
	require.NoError(t, err)

	// Identical sky regardless of position when nothing breaks it.
	a, err := p.Snapshot(route.Pose{X: 0, Y: 0}, 0)
	require.NoError(t, err)
	b, err := p.Snapshot(route.Pose{X: 5, Y: -3}, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
