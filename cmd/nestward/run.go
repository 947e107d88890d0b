package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nestward/nestward"
	"github.com/nestward/nestward/archive"
	"github.com/nestward/nestward/mushroom"
	"github.com/nestward/nestward/persistence"
	"github.com/nestward/nestward/route"
)

var (
	runScenarioPath string
	runShowMetrics  bool
)

// runCmd executes a single scenario
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scenario: learn the routes, then walk home",
	Long: `Builds the world and the agent from a scenario file, replays the
training routes through the memory, runs the homing walk and archives
the finished run.

Example:
  nestward run --scenario scenarios/forager.yaml --store runs/`,
	RunE: runScenario,
}

func init() {
	runCmd.Flags().StringVar(&runScenarioPath, "scenario", "", "Scenario YAML file (required)")
	runCmd.Flags().BoolVar(&runShowMetrics, "metrics", false, "Print walk metrics after the run")
	runCmd.MarkFlagRequired("scenario")

	rootCmd.AddCommand(runCmd)
}

func runScenario(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := executeScenario(ctx, runScenarioPath, logger)
	printResults(os.Stdout, res)
	if runShowMetrics && res.Metrics != nil {
		printMetrics(os.Stdout, res.Metrics.GetStats())
	}
	return res.Err
}

// runResult summarises one completed scenario.
type runResult struct {
	Scenario   string
	Agent      string
	AgentID    uuid.UUID
	RunID      uuid.UUID
	Outcome    nestward.Outcome
	Learned    int
	Steps      int
	DistToNest float64
	Duration   time.Duration
	Archived   bool
	Metrics    *nestward.BasicMetricsCollector
	Err        error
}

// executeScenario runs one scenario end to end: build, learn, home,
// archive. Cancellation ends the walks gracefully and still archives
// the partial run.
func executeScenario(ctx context.Context, path string, log *nestward.Logger) runResult {
	res := runResult{Scenario: filepath.Base(path)}

	scn, err := LoadScenario(path)
	if err != nil {
		res.Err = err
		return res
	}

	built, err := scn.build(effectiveSeed(scn), log)
	if err != nil {
		res.Err = err
		return res
	}
	defer built.Close()

	agent := built.agent
	res.Agent = agent.Name()
	res.AgentID = agent.ID()
	res.Metrics = built.metrics

	started := time.Now()
	learning, err := agent.Learn(ctx)
	if err != nil {
		res.Err = fmt.Errorf("learning walk: %w", err)
		return res
	}
	for _, tr := range learning {
		res.Learned += tr.Len()
	}

	homing, outcome, err := agent.Home(ctx)
	if err != nil {
		res.Err = fmt.Errorf("homing walk: %w", err)
		return res
	}

	res.Outcome = outcome
	res.Steps = homing.Len()
	res.DistToNest = route.Dist2D(agent.Pose(), agent.Nest())
	res.Duration = time.Since(started)

	if scn.Archive.Disabled {
		return res
	}

	rec := &archive.RunRecord{
		AgentID:   agent.ID(),
		AgentName: agent.Name(),
		StartedAt: started.UTC(),
		Duration:  res.Duration,
		Outcome:   outcome.String(),
		Learning:  learning,
		Homing:    homing,
		Signals:   agent.SignalLog().Records(),
	}
	if n, ok := agent.Memory().(*mushroom.Network); ok {
		stats := n.Stats()
		rec.Stats = &stats
		if scn.Archive.Memory {
			rec.Memory = n
		}
	}

	arc, err := openArchive(ctx, scn, built)
	if err != nil {
		res.Err = err
		return res
	}
	if err := arc.SaveRun(ctx, rec); err != nil {
		res.Err = fmt.Errorf("archive run: %w", err)
		return res
	}

	res.RunID = rec.RunID
	res.Archived = true
	return res
}

// openArchive opens the resolved store and wraps it in an archive with
// the scenario's compression and the run's resource controller.
func openArchive(ctx context.Context, scn *Scenario, built *builtScenario) (*archive.Archive, error) {
	store, err := openStore(ctx, effectiveStore(scn))
	if err != nil {
		return nil, err
	}

	optFns := []func(*archive.Options){archive.WithController(built.rc)}
	if scn.Archive.Compression != "" {
		comp, err := persistence.ParseCompression(scn.Archive.Compression)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		optFns = append(optFns, archive.WithCompression(comp))
	}
	return archive.New(store, optFns...), nil
}

// effectiveSeed resolves the seed chain: --seed and NESTWARD_SEED beat
// the scenario value, which beats the default of 1.
func effectiveSeed(scn *Scenario) int64 {
	if rootCmd.PersistentFlags().Changed("seed") {
		return seed
	}
	if scn.Seed != 0 {
		return scn.Seed
	}
	return 1
}

// effectiveStore resolves the store chain the same way.
func effectiveStore(scn *Scenario) string {
	if rootCmd.PersistentFlags().Changed("store") {
		return storeURI
	}
	if scn.Store != "" {
		return scn.Store
	}
	return storeURI
}

// printResults writes the outcome table. Failed scenarios report the
// error in place of the walk columns.
func printResults(w io.Writer, results ...runResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tAGENT\tOUTCOME\tLEARNED\tSTEPS\tDIST\tDURATION\tRUN")
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\terror: %v\t\t\t\t\t\n", res.Scenario, res.Agent, res.Err)
			continue
		}
		run := "-"
		if res.Archived {
			run = res.RunID.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.3f\t%s\t%s\n",
			res.Scenario,
			res.Agent,
			res.Outcome,
			res.Learned,
			res.Steps,
			res.DistToNest,
			res.Duration.Round(time.Millisecond),
			run,
		)
	}
	tw.Flush()
}

// printMetrics writes the walk metrics snapshot.
func printMetrics(w io.Writer, s nestward.BasicMetricsStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nMETRIC\tCOUNT\tERRORS\tAVG")
	fmt.Fprintf(tw, "learn samples\t%d\t%d\t%s\n",
		s.LearnSampleCount, s.LearnSampleErrors, time.Duration(s.LearnSampleAvgNanos))
	fmt.Fprintf(tw, "fan scans\t%d\t%d\t%s\n",
		s.ScanCount, s.ScanErrors, time.Duration(s.ScanAvgNanos))
	fmt.Fprintf(tw, "homing steps\t%d\t%d\t%s\n",
		s.HomingStepCount, s.HomingStepErrors, time.Duration(s.HomingStepAvgNanos))
	fmt.Fprintf(tw, "walks\t%d\t\t\n", s.WalkCount)
	tw.Flush()
}
