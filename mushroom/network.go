package mushroom

import (
	"fmt"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/nestward/nestward/queue"
	"github.com/nestward/nestward/util"
)

// Options contains configuration options for the network.
type Options struct {
	// Channels is the number of sensory channels per sample.
	Channels int

	// Samples is the number of samples per channel. The input dimension
	// is Channels*Samples and is enforced on every forward pass.
	Samples int

	// CodeUnits is the size of the expanded code layer.
	CodeUnits int

	// FanIn is the number of input indices sampled per code unit.
	FanIn int

	// Sparsity is the fraction of code units kept active per pass.
	Sparsity float64

	// LearningRate is subtracted from the weight of every active unit
	// on a learning pass. Weights never go below zero.
	LearningRate float32

	// InitialWeight is the starting weight of every code unit.
	InitialWeight float32

	// Seed drives the random projection. Networks built from the same
	// options produce identical codes.
	Seed int64
}

// DefaultOptions contains the default configuration options for the network.
var DefaultOptions = Options{
	Channels:      1,
	Samples:       360,
	CodeUnits:     20000,
	FanIn:         10,
	Sparsity:      0.05,
	LearningRate:  1.0,
	InitialWeight: 1.0,
	Seed:          1,
}

// Network is a sparse associative familiarity memory.
//
// The projection is fixed for the lifetime of the network; only the
// output weight vector changes, and only on learning passes.
type Network struct {
	mu        sync.Mutex
	opts      Options
	dimension int
	active    int // units kept per pass
	proj      []uint32
	weights   []float32
	trained   *roaring.Bitmap
	exposures int64
	acts      []float32 // scratch, guarded by mu
}

// Stats is a point-in-time snapshot of network counters.
type Stats struct {
	Exposures    int64   `json:"exposures"`     // learning passes applied
	TrainedUnits uint64  `json:"trained_units"` // code units depressed at least once
	CodeUnits    int     `json:"code_units"`    // code layer size
	ActiveUnits  int     `json:"active_units"`  // units active per pass
	WeightMass   float64 `json:"weight_mass"`   // sum of all weights
	MinWeight    float32 `json:"min_weight"`
	MaxWeight    float32 `json:"max_weight"`
}

// New creates a new network from the given options.
func New(optFns ...func(o *Options)) (*Network, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	dimension := opts.Channels * opts.Samples

	active := int(math.Round(float64(opts.CodeUnits) * opts.Sparsity))
	if active < 1 {
		active = 1
	}
	if active > opts.CodeUnits {
		active = opts.CodeUnits
	}

	n := &Network{
		opts:      opts,
		dimension: dimension,
		active:    active,
		proj:      buildProjection(opts, dimension),
		weights:   make([]float32, opts.CodeUnits),
		trained:   roaring.New(),
		acts:      make([]float32, opts.CodeUnits),
	}
	for i := range n.weights {
		n.weights[i] = opts.InitialWeight
	}

	return n, nil
}

func validateOptions(opts Options) error {
	if opts.Channels <= 0 {
		return fmt.Errorf("%w: Channels must be > 0, got %d", ErrInvalidOptions, opts.Channels)
	}
	if opts.Samples <= 0 {
		return fmt.Errorf("%w: Samples must be > 0, got %d", ErrInvalidOptions, opts.Samples)
	}
	if opts.CodeUnits <= 0 {
		return fmt.Errorf("%w: CodeUnits must be > 0, got %d", ErrInvalidOptions, opts.CodeUnits)
	}
	if opts.FanIn <= 0 || opts.FanIn > opts.Channels*opts.Samples {
		return fmt.Errorf("%w: FanIn must be in [1, %d], got %d", ErrInvalidOptions, opts.Channels*opts.Samples, opts.FanIn)
	}
	if opts.Sparsity <= 0 || opts.Sparsity > 1 {
		return fmt.Errorf("%w: Sparsity must be in (0, 1], got %g", ErrInvalidOptions, opts.Sparsity)
	}
	if opts.LearningRate < 0 {
		return fmt.Errorf("%w: LearningRate must be >= 0, got %g", ErrInvalidOptions, opts.LearningRate)
	}
	if opts.InitialWeight < 0 {
		return fmt.Errorf("%w: InitialWeight must be >= 0, got %g", ErrInvalidOptions, opts.InitialWeight)
	}
	return nil
}

// buildProjection samples FanIn distinct input indices per code unit,
// stored flat with stride FanIn.
func buildProjection(opts Options, dimension int) []uint32 {
	rng := util.NewRNG(opts.Seed)

	proj := make([]uint32, opts.CodeUnits*opts.FanIn)
	for u := 0; u < opts.CodeUnits; u++ {
		base := u * opts.FanIn
		for i, idx := range rng.Sample(dimension, opts.FanIn) {
			proj[base+i] = uint32(idx)
		}
	}

	return proj
}

// Options returns the options the network was created with.
func (n *Network) Options() Options {
	return n.opts
}

// Dimension returns the expected input vector length.
func (n *Network) Dimension() int {
	return n.dimension
}

// CodeUnits returns the size of the code layer.
func (n *Network) CodeUnits() int {
	return n.opts.CodeUnits
}

// ActiveUnits returns the number of code units active per pass.
func (n *Network) ActiveUnits() int {
	return n.active
}

// Forward computes the familiarity of the input vector. Lower values
// mean more familiar. With learn set, the weights of the active code
// units are depressed after the output is read, floored at zero.
//
// A zero input activates the lowest-index code units: all activations
// tie at zero and selection prefers lower unit ids.
func (n *Network) Forward(pv []float32, learn bool) (float32, error) {
	if len(pv) != n.dimension {
		return 0, &ErrDimensionMismatch{Expected: n.dimension, Actual: len(pv)}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	active := n.codeLocked(pv)

	var familiarity float32
	for _, u := range active {
		familiarity += n.weights[u]
	}

	if learn {
		if n.opts.LearningRate > 0 {
			for _, u := range active {
				w := n.weights[u] - n.opts.LearningRate
				if w < 0 {
					w = 0
				}
				n.weights[u] = w
				n.trained.Add(u)
			}
		}
		n.exposures++
	}

	return familiarity, nil
}

// Code returns the sparse code of the input vector: the ids of the
// active code units, ascending. The code is a pure function of the
// input; ties between equally activated units keep the lower id.
func (n *Network) Code(pv []float32) ([]uint32, error) {
	if len(pv) != n.dimension {
		return nil, &ErrDimensionMismatch{Expected: n.dimension, Actual: len(pv)}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	return n.codeLocked(pv), nil
}

// codeLocked computes activations into the scratch buffer and selects
// the top active units. Caller must hold mu.
func (n *Network) codeLocked(pv []float32) []uint32 {
	fanIn := n.opts.FanIn
	for u := 0; u < n.opts.CodeUnits; u++ {
		var sum float32
		base := u * fanIn
		for _, idx := range n.proj[base : base+fanIn] {
			sum += pv[idx]
		}
		n.acts[u] = sum
	}

	return queue.TopK(n.acts, n.active)
}

// Overlap returns the number of code units shared by the sparse codes
// of the two inputs.
func (n *Network) Overlap(a, b []float32) (int, error) {
	if len(a) != n.dimension {
		return 0, &ErrDimensionMismatch{Expected: n.dimension, Actual: len(a)}
	}
	if len(b) != n.dimension {
		return 0, &ErrDimensionMismatch{Expected: n.dimension, Actual: len(b)}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ca := roaring.New()
	ca.AddMany(n.codeLocked(a))
	cb := roaring.New()
	cb.AddMany(n.codeLocked(b))

	return int(ca.AndCardinality(cb)), nil
}

// Reset restores all weights to InitialWeight and clears the learning
// history. The projection is untouched, so codes are unchanged.
func (n *Network) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := range n.weights {
		n.weights[i] = n.opts.InitialWeight
	}
	n.trained.Clear()
	n.exposures = 0
}

// Stats returns a snapshot of the network counters.
func (n *Network) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := Stats{
		Exposures:    n.exposures,
		TrainedUnits: n.trained.GetCardinality(),
		CodeUnits:    n.opts.CodeUnits,
		ActiveUnits:  n.active,
	}

	st.MinWeight = n.weights[0]
	st.MaxWeight = n.weights[0]
	for _, w := range n.weights {
		st.WeightMass += float64(w)
		if w < st.MinWeight {
			st.MinWeight = w
		}
		if w > st.MaxWeight {
			st.MaxWeight = w
		}
	}

	return st
}
