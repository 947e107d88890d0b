package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	batchDir      string
	batchParallel int
)

// batchCmd runs every scenario in a directory
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every scenario in a directory",
	Long: `Runs all *.yaml and *.yml scenarios found in a directory, up to
--parallel at a time, and prints one outcome row per scenario. A failed
scenario is reported in its row and does not stop the others.

Example:
  nestward batch --dir scenarios/ --parallel 4`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "scenarios", "Directory of scenario YAML files")
	batchCmd.Flags().IntVar(&batchParallel, "parallel", 1, "Concurrent scenarios")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	if batchParallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", batchParallel)
	}

	paths, err := scenarioFiles(batchDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no scenarios in %s", batchDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make([]runResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallel)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = executeScenario(ctx, path, logger)
			return nil
		})
	}
	// Scenario failures are reported per row, not propagated, so one
	// bad scenario does not cancel the rest.
	_ = g.Wait()

	printResults(os.Stdout, results...)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(paths))
	}
	return nil
}

// scenarioFiles returns the scenario files in dir, sorted by name.
func scenarioFiles(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}
