package vision

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/nestward/nestward/cache"
	"github.com/nestward/nestward/route"
	"github.com/nestward/nestward/util"
)

// Compile-time check
var _ Encoder = (*Panorama)(nil)

// ErrInvalidOptions is returned when panorama options fail validation.
var ErrInvalidOptions = errors.New("invalid options")

// Landmark is a dark cylinder in the panorama world.
type Landmark struct {
	X, Y   float64
	Radius float64
}

// Options contains configuration options for the panorama world.
type Options struct {
	// Channels is 1 (luminance) or 3 (tinted RGB).
	Channels int

	// Samples is the number of azimuth bins per channel.
	Samples int

	// Latitude and Longitude place the world for the sun position.
	Latitude  float64
	Longitude float64

	// Time fixes the sun. Use SetTime to run a live sky.
	Time time.Time

	// Landmarks is the number of landmarks scattered in the field.
	Landmarks int

	// FieldRadius is the radius of the disc the landmarks scatter over.
	FieldRadius float64

	// Seed drives the landmark scatter.
	Seed int64

	// Autocontrast rescales each channel to the full [0, 1] span.
	Autocontrast bool

	// Invert flips values so landmarks read bright against a dim sky.
	Invert bool

	// SnapshotCache, if set, caches rendered snapshots keyed by
	// quantised pose and offset.
	SnapshotCache cache.BlockCache
}

// DefaultOptions contains the default configuration options for the
// panorama world. The coordinates are Edinburgh at mid-morning on the
// June solstice.
var DefaultOptions = Options{
	Channels:     1,
	Samples:      360,
	Latitude:     55.9533,
	Longitude:    -3.1883,
	Time:         time.Date(2017, time.June, 21, 10, 0, 0, 0, time.UTC),
	Landmarks:    40,
	FieldRadius:  10.0,
	Seed:         1,
	Autocontrast: true,
	Invert:       true,
}

// WithSnapshotCache caches rendered snapshots in bc.
func WithSnapshotCache(bc cache.BlockCache) func(o *Options) {
	return func(o *Options) {
		o.SnapshotCache = bc
	}
}

// Panorama is a synthetic world: a sun-lit sky with a field of dark
// landmarks, rendered into azimuth bins around the agent's heading.
//
// The vector layout is channel-major: sample i of channel c sits at
// index c*Samples+i. Rotating the agent by whole bins circularly shifts
// each channel.
type Panorama struct {
	opts      Options
	landmarks []Landmark
	cacheID   string

	mu    sync.RWMutex
	now   time.Time
	sunAz float64
	sunEl float64
	epoch uint64 // bumped by SetTime, part of the cache key
}

// New creates a new panorama world from the given options.
func New(optFns ...func(o *Options)) (*Panorama, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Channels != 1 && opts.Channels != 3 {
		return nil, fmt.Errorf("%w: Channels must be 1 or 3, got %d", ErrInvalidOptions, opts.Channels)
	}
	if opts.Samples <= 0 {
		return nil, fmt.Errorf("%w: Samples must be > 0, got %d", ErrInvalidOptions, opts.Samples)
	}
	if opts.Landmarks < 0 {
		return nil, fmt.Errorf("%w: Landmarks must be >= 0, got %d", ErrInvalidOptions, opts.Landmarks)
	}
	if opts.Landmarks > 0 && opts.FieldRadius <= 0 {
		return nil, fmt.Errorf("%w: FieldRadius must be > 0, got %g", ErrInvalidOptions, opts.FieldRadius)
	}

	p := &Panorama{
		opts:      opts,
		landmarks: scatterLandmarks(opts),
		cacheID:   "pano/" + strconv.FormatInt(opts.Seed, 10),
		now:       opts.Time,
	}
	p.sunAz, p.sunEl = sunPosition(opts.Time, opts.Latitude, opts.Longitude)

	return p, nil
}

// scatterLandmarks places landmarks uniformly over the field disc.
func scatterLandmarks(opts Options) []Landmark {
	rng := util.NewRNG(opts.Seed)

	lms := make([]Landmark, opts.Landmarks)
	for i := range lms {
		r := opts.FieldRadius * math.Sqrt(rng.Float64())
		a := 2 * math.Pi * rng.Float64()
		lms[i] = Landmark{
			X:      r * math.Cos(a),
			Y:      r * math.Sin(a),
			Radius: rng.Float64In(0.05, 0.35),
		}
	}

	return lms
}

func sunPosition(t time.Time, lat, lon float64) (azimuth, elevation float64) {
	pos := suncalc.GetPosition(t, lat, lon)
	return pos.Azimuth, pos.Altitude
}

// Options returns the options the panorama was created with.
func (p *Panorama) Options() Options {
	return p.opts
}

// Landmarks returns a copy of the landmark field.
func (p *Panorama) Landmarks() []Landmark {
	out := make([]Landmark, len(p.landmarks))
	copy(out, p.landmarks)
	return out
}

// Dimension returns the length of the vectors Snapshot produces.
func (p *Panorama) Dimension() int {
	return p.opts.Channels * p.opts.Samples
}

// Time returns the current sky time.
func (p *Panorama) Time() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.now
}

// SetTime advances the sky to t and invalidates cached snapshots. The
// epoch bump keeps renders already in flight from reinserting a stale
// sky after the sweep.
func (p *Panorama) SetTime(t time.Time) {
	p.mu.Lock()
	p.now = t
	p.sunAz, p.sunEl = sunPosition(t, p.opts.Latitude, p.opts.Longitude)
	p.epoch++
	p.mu.Unlock()

	if p.opts.SnapshotCache != nil {
		prefix := p.cacheID + "/"
		p.opts.SnapshotCache.Invalidate(func(k cache.CacheKey) bool {
			return k.Kind == cache.CacheKindSnapshot && strings.HasPrefix(k.Key, prefix)
		})
	}
}

// Snapshot renders the view at p with offset added to the heading.
func (p *Panorama) Snapshot(pose route.Pose, offset float64) ([]float32, error) {
	p.mu.RLock()
	sunAz, sunEl, epoch := p.sunAz, p.sunEl, p.epoch
	p.mu.RUnlock()

	var key cache.CacheKey
	if p.opts.SnapshotCache != nil {
		key = p.cacheKey(pose, offset, epoch)
		if b, ok := p.opts.SnapshotCache.Get(context.Background(), key); ok {
			return bytesToFloats(b), nil
		}
	}

	pv := p.render(pose, offset, sunAz, sunEl)

	if p.opts.Autocontrast {
		for c := 0; c < p.opts.Channels; c++ {
			autocontrast(pv[c*p.opts.Samples : (c+1)*p.opts.Samples])
		}
	}
	if p.opts.Invert {
		for i, v := range pv {
			pv[i] = 1 - v
		}
	}

	if p.opts.SnapshotCache != nil {
		p.opts.SnapshotCache.Set(context.Background(), key, floatsToBytes(pv))
	}

	return pv, nil
}

// render paints the raw luminance panorama.
func (p *Panorama) render(pose route.Pose, offset float64, sunAz, sunEl float64) []float32 {
	n := p.opts.Samples
	pv := make([]float32, p.opts.Channels*n)

	// Sky level by sun elevation; below the horizon the sky goes dark.
	skyLevel := 0.05
	if sunEl > 0 {
		skyLevel = 0.25 + 0.75*math.Sin(sunEl)
	}

	phi := pose.Heading + offset
	for i := 0; i < n; i++ {
		bearing := phi + 2*math.Pi*float64(i)/float64(n)

		// Sky shaded towards the sun's azimuth.
		sunW := 0.5 * (1 + math.Cos(bearing-sunAz))
		v := skyLevel * (0.6 + 0.4*sunW)
		ground := false

		// Nearest landmark subtending this bearing wins the bin.
		nearest := math.Inf(1)
		for _, lm := range p.landmarks {
			dx, dy := lm.X-pose.X, lm.Y-pose.Y
			dist := math.Hypot(dx, dy)
			if dist >= nearest {
				continue
			}
			if dist <= lm.Radius {
				// Standing inside the landmark: it fills the view.
				nearest = dist
				v = 0.02
				ground = true
				continue
			}
			halfWidth := math.Atan(lm.Radius / dist)
			if math.Abs(route.AngleDiff(bearing, math.Atan2(dy, dx))) <= halfWidth {
				nearest = dist
				// Foreground darkness fades into the sky with distance.
				fade := dist / (2 * p.opts.FieldRadius)
				if fade > 1 {
					fade = 1
				}
				v = 0.05*(1-fade) + skyLevel*0.8*fade
				ground = true
			}
		}

		p.paint(pv, i, v, ground)
	}

	return pv
}

// paint writes the bin value into every channel, tinted in RGB mode.
func (p *Panorama) paint(pv []float32, i int, v float64, ground bool) {
	if p.opts.Channels == 1 {
		pv[i] = float32(v)
		return
	}

	tint := skyTint
	if ground {
		tint = groundTint
	}
	n := p.opts.Samples
	for c := 0; c < 3; c++ {
		pv[c*n+i] = float32(v * tint[c])
	}
}

var (
	skyTint    = [3]float64{0.55, 0.75, 1.0}
	groundTint = [3]float64{0.45, 0.60, 0.30}
)

// autocontrast rescales one channel to the full [0, 1] span in place.
// Flat channels are left untouched.
func autocontrast(ch []float32) {
	if len(ch) == 0 {
		return
	}

	lo, hi := ch[0], ch[0]
	for _, v := range ch {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	span := hi - lo
	if span == 0 {
		return
	}
	for i, v := range ch {
		ch[i] = (v - lo) / span
	}
}

// snapshotGrid quantises cache coordinates to 0.1mm.
const snapshotGrid = 1e-4

// cacheKey packs the quantised pose and view angle. Z is excluded: the
// render is planar.
func (p *Panorama) cacheKey(pose route.Pose, offset float64, epoch uint64) cache.CacheKey {
	var b [24]byte
	binary.LittleEndian.PutUint64(b[0:], uint64(int64(math.Round(pose.X/snapshotGrid))))
	binary.LittleEndian.PutUint64(b[8:], uint64(int64(math.Round(pose.Y/snapshotGrid))))
	phi := route.NormalizeHeading(pose.Heading + offset)
	binary.LittleEndian.PutUint64(b[16:], uint64(int64(math.Round(phi/snapshotGrid))))

	return cache.CacheKey{
		Kind:   cache.CacheKindSnapshot,
		Key:    p.cacheID + "/" + string(b[:]),
		Offset: epoch,
	}
}

func floatsToBytes(pv []float32) []byte {
	b := make([]byte, 4*len(pv))
	for i, v := range pv {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func bytesToFloats(b []byte) []float32 {
	pv := make([]float32, len(b)/4)
	for i := range pv {
		pv[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return pv
}
