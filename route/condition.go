package route

import "math"

// Condition transforms a recorded route before it is bound for
// training. Implementations must not mutate the argument and must
// return a new route.
type Condition interface {
	Apply(r *Route) *Route
	Name() string
}

// Compile-time checks to ensure conditions satisfy the interface.
var (
	_ Condition = Noop{}
	_ Condition = Hybrid{}
)

// Noop returns routes unchanged.
type Noop struct{}

// Apply returns a copy of the route.
func (Noop) Apply(r *Route) *Route { return r.Clone() }

// Name returns the condition name.
func (Noop) Name() string { return "noop" }

// Hybrid densifies a route so consecutive poses are at most TauX apart
// in the ground plane and consecutive headings turn at most TauPhi.
// Long segments and sharp turns are split into evenly interpolated
// intermediate poses.
type Hybrid struct {
	TauX   float64 // max distance between consecutive poses; 0 disables
	TauPhi float64 // max heading change between consecutive poses; 0 disables
}

// Apply returns the densified route.
func (h Hybrid) Apply(r *Route) *Route {
	c := r.Clone()
	if len(c.Poses) < 2 {
		return c
	}

	out := make([]Pose, 0, len(c.Poses))
	out = append(out, c.Poses[0])

	for i := 1; i < len(c.Poses); i++ {
		prev := out[len(out)-1]
		next := c.Poses[i]

		steps := 1
		if h.TauX > 0 {
			if d := Dist2D(prev, next); d > h.TauX {
				steps = int(math.Ceil(d / h.TauX))
			}
		}
		if h.TauPhi > 0 {
			if dphi := math.Abs(AngleDiff(next.Heading, prev.Heading)); dphi > h.TauPhi {
				if s := int(math.Ceil(dphi / h.TauPhi)); s > steps {
					steps = s
				}
			}
		}

		turn := AngleDiff(next.Heading, prev.Heading)
		for j := 1; j <= steps; j++ {
			t := float64(j) / float64(steps)
			out = append(out, Pose{
				X:       prev.X + t*(next.X-prev.X),
				Y:       prev.Y + t*(next.Y-prev.Y),
				Z:       prev.Z + t*(next.Z-prev.Z),
				Heading: NormalizeHeading(prev.Heading + t*turn),
			})
		}
	}

	c.Poses = out
	return c
}

// Name returns the condition name.
func (Hybrid) Name() string { return "hybrid" }
