// Package route provides recorded agent paths and the policies that
// condition them before training.
package route

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

// ErrEmptyRoute is returned when a route has no poses.
var ErrEmptyRoute = errors.New("route has no poses")

// Pose is a position and heading in the world. Heading is in radians,
// counterclockwise from the positive x axis.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Heading float64 `json:"heading"`
}

// Route is a recorded path. The first pose marks the feeder, the last
// pose marks the nest.
type Route struct {
	ID      uuid.UUID `json:"id"`
	AgentID uuid.UUID `json:"agent_id"`
	Seq     int       `json:"seq"`
	Step    float64   `json:"step"`
	Poses   []Pose    `json:"poses"`
}

// Options contains configuration options for a new route.
type Options struct {
	// ID identifies the route. A zero ID is replaced with a random one.
	ID uuid.UUID

	// Step is the nominal step length. When zero it is derived from the
	// median distance between consecutive poses.
	Step float64
}

// New creates a route owned by the given agent. The poses are copied.
func New(agentID uuid.UUID, seq int, poses []Pose, optFns ...func(o *Options)) (*Route, error) {
	if len(poses) == 0 {
		return nil, ErrEmptyRoute
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.ID == uuid.Nil {
		opts.ID = uuid.New()
	}

	step := opts.Step
	if step == 0 {
		step = deriveStep(poses)
	}
	if step < 0 {
		return nil, fmt.Errorf("invalid step length %g", step)
	}

	r := &Route{
		ID:      opts.ID,
		AgentID: agentID,
		Seq:     seq,
		Step:    step,
		Poses:   make([]Pose, len(poses)),
	}
	copy(r.Poses, poses)

	return r, nil
}

// deriveStep returns the median 2D distance between consecutive poses.
// The median tolerates dwell points and outlier jumps in recordings.
func deriveStep(poses []Pose) float64 {
	if len(poses) < 2 {
		return 0
	}

	dists := make([]float64, 0, len(poses)-1)
	for i := 1; i < len(poses); i++ {
		dists = append(dists, Dist2D(poses[i-1], poses[i]))
	}
	sort.Float64s(dists)

	mid := len(dists) / 2
	if len(dists)%2 == 1 {
		return dists[mid]
	}
	return (dists[mid-1] + dists[mid]) / 2
}

// Len returns the number of poses.
func (r *Route) Len() int {
	return len(r.Poses)
}

// Feeder returns the first pose of the route.
func (r *Route) Feeder() Pose {
	return r.Poses[0]
}

// Nest returns the last pose of the route.
func (r *Route) Nest() Pose {
	return r.Poses[len(r.Poses)-1]
}

// Clone returns a deep copy of the route.
func (r *Route) Clone() *Route {
	c := *r
	c.Poses = make([]Pose, len(r.Poses))
	copy(c.Poses, r.Poses)
	return &c
}

// Dist2D returns the distance between two poses in the ground plane.
func Dist2D(a, b Pose) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// NormalizeHeading wraps phi into [0, 2π).
func NormalizeHeading(phi float64) float64 {
	phi = math.Mod(phi, 2*math.Pi)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	return phi
}

// AngleDiff returns the signed smallest rotation from one heading to
// another, in (-π, π].
func AngleDiff(to, from float64) float64 {
	d := math.Mod(to-from, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	}
	if d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}
