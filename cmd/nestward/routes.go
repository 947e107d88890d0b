package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nestward/nestward/route"
	"github.com/nestward/nestward/testutil"
)

// routesCmd groups training route utilities
var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Training route utilities",
}

var (
	genSamples int
	genFeeder  []float64
	genNest    []float64
	genJitter  float64
	genSeed    int64
	genOut     string
)

// routesGenCmd emits a synthetic training route
var routesGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a synthetic training route as JSON",
	Long: `Generates a jittered feeder-to-nest route and writes it as JSON,
ready to be referenced from a scenario's routes list.

Example:
  nestward routes gen --samples 60 --feeder 2.5,2.5 --nest 0,0 --out routes/out.json`,
	RunE: runRoutesGen,
}

func init() {
	routesGenCmd.Flags().IntVar(&genSamples, "samples", 40, "Number of poses")
	routesGenCmd.Flags().Float64SliceVar(&genFeeder, "feeder", []float64{2.5, 2.5}, "Feeder position x,y[,z]")
	routesGenCmd.Flags().Float64SliceVar(&genNest, "nest", []float64{0, 0}, "Nest position x,y[,z]")
	routesGenCmd.Flags().Float64Var(&genJitter, "jitter", 0.05, "Perpendicular jitter")
	routesGenCmd.Flags().Int64Var(&genSeed, "seed", 0, "Generator seed (0 follows --seed, then 1)")
	routesGenCmd.Flags().StringVar(&genOut, "out", "", "Output file (default stdout)")

	routesCmd.AddCommand(routesGenCmd)
	rootCmd.AddCommand(routesCmd)
}

func runRoutesGen(cmd *cobra.Command, args []string) error {
	feeder, err := poseAt(genFeeder, "feeder")
	if err != nil {
		return err
	}
	nest, err := poseAt(genNest, "nest")
	if err != nil {
		return err
	}
	if feeder == nest {
		return fmt.Errorf("feeder and nest coincide")
	}

	s := genSeed
	if s == 0 {
		s = seed
	}
	if s == 0 {
		s = 1
	}

	rng := testutil.NewRNG(s)
	poses := rng.RoutePoses(genSamples, feeder, nest, genJitter)
	r, err := route.New(uuid.Nil, 0, poses)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if genOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(genOut, data, 0o644)
}

// poseAt turns a --feeder/--nest slice value into a pose.
func poseAt(xy []float64, name string) (route.Pose, error) {
	switch len(xy) {
	case 2:
		return route.Pose{X: xy[0], Y: xy[1]}, nil
	case 3:
		return route.Pose{X: xy[0], Y: xy[1], Z: xy[2]}, nil
	default:
		return route.Pose{}, fmt.Errorf("--%s wants x,y or x,y,z, got %d values", name, len(xy))
	}
}
