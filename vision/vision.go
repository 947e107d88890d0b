// Package vision is the sensory boundary of an agent: it turns a pose
// into the flat panorama vector the memory consumes.
//
// The package ships one reference implementation, Panorama, a synthetic
// world with a sun-lit sky and a scattered landmark field. Deployments
// with a real renderer or camera rig implement Encoder themselves.
package vision

import (
	"github.com/nestward/nestward/route"
)

// Encoder renders the view from a pose into a flat vector of length
// Dimension. Implementations must be deterministic in pose and offset
// and safe for concurrent use; Snapshot sits on the walk hot path.
type Encoder interface {
	// Dimension returns the length of the vectors Snapshot produces.
	Dimension() int

	// Snapshot renders the view at p with offset added to the heading.
	// The pose itself is not modified.
	Snapshot(p route.Pose, offset float64) ([]float32, error)
}
