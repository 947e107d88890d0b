package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nestward/nestward"
	"github.com/nestward/nestward/archive"
	"github.com/nestward/nestward/route"
)

// runsCmd groups archived run inspection
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived runs",
}

var runsAgent string

// runsLsCmd lists archived runs
var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List archived runs",
	Long: `Lists the archived runs in the store, across all agents or for one
agent selected with --agent.`,
	RunE: runRunsLs,
}

var (
	runsShowFull bool
	runsShowJSON bool
)

// runsShowCmd shows one archived run
var runsShowCmd = &cobra.Command{
	Use:   "show run-id",
	Short: "Show one archived run",
	Long: `Shows the manifest of an archived run. With --full the run payloads
are loaded and the homing trace and signal summary are included. When
--agent is not given, every agent in the store is searched.`,
	Args: cobra.ExactArgs(1),
	RunE: runRunsShow,
}

func init() {
	runsCmd.PersistentFlags().StringVar(&runsAgent, "agent", "", "Agent ID")
	runsShowCmd.Flags().BoolVar(&runsShowFull, "full", false, "Load the run payloads, not just the manifest")
	runsShowCmd.Flags().BoolVar(&runsShowJSON, "json", false, "Print the manifest as JSON")

	runsCmd.AddCommand(runsLsCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	arc, err := openRunsArchive(ctx)
	if err != nil {
		return err
	}

	agents, err := selectAgents(ctx, arc)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tAGENT\tCREATED\tOUTCOME\tSTEPS\tROUTES\tSIGNALS")
	rows := 0
	for _, agentID := range agents {
		for ref, err := range arc.ListRuns(ctx, agentID) {
			if err != nil {
				return err
			}
			m, err := arc.LoadManifest(ctx, ref.AgentID, ref.RunID)
			if err != nil {
				return err
			}
			name := m.AgentName
			if name == "" {
				name = shortID(m.AgentID)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
				m.RunID,
				name,
				m.CreatedAt.Format(time.RFC3339),
				m.Outcome,
				m.Steps,
				m.Routes,
				m.Signals,
			)
			rows++
		}
	}
	tw.Flush()

	if rows == 0 {
		fmt.Println("no archived runs")
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	runID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("run id %q: %w", args[0], err)
	}

	arc, err := openRunsArchive(ctx)
	if err != nil {
		return err
	}

	ref, err := findRun(ctx, arc, runID)
	if err != nil {
		return err
	}

	m, err := arc.LoadManifest(ctx, ref.AgentID, ref.RunID)
	if err != nil {
		return err
	}

	if runsShowJSON {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printManifest(os.Stdout, m)
	if !runsShowFull {
		return nil
	}

	rec, err := arc.LoadRun(ctx, ref.AgentID, ref.RunID)
	if err != nil {
		return err
	}
	printRunDetail(os.Stdout, rec)
	return nil
}

// openRunsArchive opens the store named by --store. Scenario overrides
// do not apply here; runs commands always address one store directly.
func openRunsArchive(ctx context.Context) (*archive.Archive, error) {
	store, err := openStore(ctx, storeURI)
	if err != nil {
		return nil, err
	}
	return archive.New(store), nil
}

// selectAgents resolves --agent, or lists every agent in the store.
func selectAgents(ctx context.Context, arc *archive.Archive) ([]uuid.UUID, error) {
	if runsAgent != "" {
		id, err := uuid.Parse(runsAgent)
		if err != nil {
			return nil, fmt.Errorf("agent id %q: %w", runsAgent, err)
		}
		return []uuid.UUID{id}, nil
	}

	var agents []uuid.UUID
	for id, err := range arc.ListAgents(ctx) {
		if err != nil {
			return nil, err
		}
		agents = append(agents, id)
	}
	return agents, nil
}

// findRun locates a run by ID within the agents selected by --agent.
func findRun(ctx context.Context, arc *archive.Archive, runID uuid.UUID) (archive.RunRef, error) {
	agents, err := selectAgents(ctx, arc)
	if err != nil {
		return archive.RunRef{}, err
	}

	for _, agentID := range agents {
		for ref, err := range arc.ListRuns(ctx, agentID) {
			if err != nil {
				return archive.RunRef{}, err
			}
			if ref.RunID == runID {
				return ref, nil
			}
		}
	}
	return archive.RunRef{}, fmt.Errorf("run %s not found", runID)
}

func printManifest(w io.Writer, m *archive.Manifest) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", m.RunID)
	agent := m.AgentID.String()
	if m.AgentName != "" {
		agent = fmt.Sprintf("%s (%s)", m.AgentName, m.AgentID)
	}
	fmt.Fprintf(tw, "Agent:\t%s\n", agent)
	fmt.Fprintf(tw, "Created:\t%s\n", m.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Duration:\t%s\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(tw, "Outcome:\t%s\n", m.Outcome)
	fmt.Fprintf(tw, "Steps:\t%d\n", m.Steps)
	fmt.Fprintf(tw, "Routes:\t%d\n", m.Routes)
	fmt.Fprintf(tw, "Signals:\t%d\n", m.Signals)
	fmt.Fprintf(tw, "Codec:\t%s\n", m.Codec)
	fmt.Fprintf(tw, "Compression:\t%s\n", m.Compression)
	fmt.Fprintf(tw, "Memory:\t%v\n", m.Memory)
	if s := m.MemoryStats; s != nil {
		fmt.Fprintf(tw, "Trained units:\t%d of %d\n", s.TrainedUnits, s.CodeUnits)
		fmt.Fprintf(tw, "Weight mass:\t%.1f\n", s.WeightMass)
	}
	tw.Flush()
}

func printRunDetail(w io.Writer, rec *archive.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw)

	for i, tr := range rec.Learning {
		fmt.Fprintf(tw, "Route %d:\t%d poses, step %.3f\n", i, tr.Len(), tr.Step)
	}

	if tr := rec.Homing; tr != nil && tr.Len() > 0 {
		last := tr.Nest()
		fmt.Fprintf(tw, "Homing trace:\t%d poses, step %.3f\n", tr.Len(), tr.Step)
		fmt.Fprintf(tw, "Final pose:\t(%.3f, %.3f) heading %.1f°\n",
			last.X, last.Y, last.Heading*180/math.Pi)
		if n := len(rec.Learning); n > 0 {
			nest := rec.Learning[n-1].Nest()
			fmt.Fprintf(tw, "Dist to nest:\t%.3f\n", route.Dist2D(last, nest))
		}
	}

	var homing int
	var minFam, sumFam float64
	for _, sig := range rec.Signals {
		if sig.Stage != nestward.StageHoming {
			continue
		}
		f := float64(sig.Familiarity)
		if homing == 0 || f < minFam {
			minFam = f
		}
		sumFam += f
		homing++
	}
	if homing > 0 {
		fmt.Fprintf(tw, "Homing familiarity:\tmin %.3f, mean %.3f over %d steps\n",
			minFam, sumFam/float64(homing), homing)
	}
	tw.Flush()
}

// shortID abbreviates a UUID for table display.
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
