package nestward

import (
	"fmt"
	"math"
)

// fan precomputes the candidate heading offsets of a homing scan and the
// tie-break ramp added to their familiarities.
//
// Offsets span [-halfWidth, +halfWidth] in samples uniform steps, so the
// center sample is straight ahead. The ramp rises linearly from zero at
// the center to tieBreak at the edges; on (near) ties it makes the scan
// prefer the smaller turn, and among equal magnitudes the argmin's
// first-wins rule picks the lower index.
type fan struct {
	offsets []float64
	ramp    []float32
	center  int
}

func newFan(samples int, halfWidth, tieBreak float64) *fan {
	center := (samples - 1) / 2
	f := &fan{
		offsets: make([]float64, samples),
		ramp:    make([]float32, samples),
		center:  center,
	}
	// Offsets are laid out from the center so straight ahead is exactly
	// zero and the fan is symmetric.
	width := 2 * halfWidth / float64(samples-1)
	for i := range f.offsets {
		f.offsets[i] = float64(i-center) * width
		f.ramp[i] = float32(tieBreak * math.Abs(float64(i-center)) / float64(center))
	}
	return f
}

// scanResult is the outcome of evaluating one familiarity fan.
type scanResult struct {
	// fam holds the raw familiarity per sample, without the ramp.
	fam    []float32
	argmin int
	turn   float64
}

// scanFan renders and scores every candidate heading around the current
// pose. The pose itself is unchanged; offsets are applied by the encoder.
// Called with the agent's lock held.
func (a *Agent) scanFan() (scanResult, error) {
	fam := make([]float32, len(a.fan.offsets))

	best := -1
	var bestScore float32
	for i, offset := range a.fan.offsets {
		pv, err := a.world.Snapshot(a.pose, offset)
		if err != nil {
			return scanResult{}, fmt.Errorf("snapshot at offset %.3f: %w", offset, err)
		}
		f, err := a.memory.Forward(pv, false)
		if err != nil {
			return scanResult{}, translateError(err)
		}
		fam[i] = f

		biased := f + a.fan.ramp[i]
		if best < 0 || biased < bestScore {
			best = i
			bestScore = biased
		}
	}

	return scanResult{fam: fam, argmin: best, turn: a.fan.offsets[best]}, nil
}
