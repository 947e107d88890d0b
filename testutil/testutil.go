package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/nestward/nestward/route"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// Float64 returns, as a float64, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float32 in a loop).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// FillUniformRange fills dst with random values in range [minVal, maxVal).
func (r *RNG) FillUniformRange(dst []float32, minVal, maxVal float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal
	for i := range dst {
		dst[i] = minVal + r.rand.Float32()*span
	}
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}

	return vectors
}

// Perturb returns a copy of pv with the given fraction of elements
// redrawn uniformly from [0, 1). A fraction of 0 returns a plain copy.
func (r *RNG) Perturb(pv []float32, fraction float64) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]float32, len(pv))
	copy(out, pv)

	n := int(math.Round(fraction * float64(len(pv))))
	for range n {
		out[r.rand.Intn(len(out))] = r.rand.Float32()
	}

	return out
}

// RoutePoses generates a plausible outbound route from feeder to nest:
// n poses along the straight line with perpendicular jitter, headings
// pointing along the path. The first pose sits exactly on the feeder
// and the last exactly on the nest.
func (r *RNG) RoutePoses(n int, feeder, nest route.Pose, jitter float64) []route.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n < 2 {
		n = 2
	}

	dx := nest.X - feeder.X
	dy := nest.Y - feeder.Y
	length := math.Hypot(dx, dy)

	// Unit normal for jitter offsets.
	nx, ny := 0.0, 0.0
	if length > 0 {
		nx, ny = -dy/length, dx/length
	}

	poses := make([]route.Pose, n)
	for i := range n {
		t := float64(i) / float64(n-1)
		off := 0.0
		if i > 0 && i < n-1 {
			off = (r.rand.Float64()*2 - 1) * jitter
		}
		poses[i] = route.Pose{
			X: feeder.X + t*dx + off*nx,
			Y: feeder.Y + t*dy + off*ny,
			Z: feeder.Z + t*(nest.Z-feeder.Z),
		}
	}

	for i := range n - 1 {
		poses[i].Heading = math.Atan2(poses[i+1].Y-poses[i].Y, poses[i+1].X-poses[i].X)
	}
	poses[n-1].Heading = poses[n-2].Heading

	return poses
}
