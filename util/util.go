package util

import "math/rand"

// RNG struct encapsulates the random number generator and seed.
type RNG struct {
	rand *rand.Rand
	seed int64
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), // nolint gosec
		seed: seed,
	}
}

// Seed returns the seed the RNG was created with.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Reset reseeds the RNG so it replays the same sequence.
func (r *RNG) Reset() {
	r.rand = rand.New(rand.NewSource(r.seed)) // nolint gosec
}

// Intn returns a uniform value in [0, n).
func (r *RNG) Intn(n int) int {
	return r.rand.Intn(n)
}

// Float32 returns a uniform value in [0, 1).
func (r *RNG) Float32() float32 {
	return r.rand.Float32()
}

// Float64 returns a uniform value in [0, 1).
func (r *RNG) Float64() float64 {
	return r.rand.Float64()
}

// Float64In returns a uniform value in [lo, hi).
func (r *RNG) Float64In(lo, hi float64) float64 {
	return lo + (hi-lo)*r.rand.Float64()
}

// NormFloat64 returns a standard normal value.
func (r *RNG) NormFloat64() float64 {
	return r.rand.NormFloat64()
}

// Sample returns k distinct values drawn uniformly from [0, n), in draw
// order. For k close to n it falls back to a truncated permutation.
func (r *RNG) Sample(n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	if k*2 > n {
		return r.rand.Perm(n)[:k]
	}

	out := make([]int, 0, k)
	seen := make(map[int]struct{}, k)
	for len(out) < k {
		v := r.rand.Intn(n)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}

// Shuffle randomizes the order of n elements using the given swap func.
func (r *RNG) Shuffle(n int, swap func(i, j int)) {
	r.rand.Shuffle(n, swap)
}
