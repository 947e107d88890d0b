// Command nestward drives insect-style visual homing simulations. It
// builds a synthetic panorama world and an agent from a scenario file,
// replays the training routes through the agent's memory, runs the
// homing walk and archives the outcome for later inspection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nestward/nestward"
	"github.com/nestward/nestward/blobstore"
	s3blob "github.com/nestward/nestward/blobstore/s3"
)

var (
	// Global flags
	logLevel  string
	logFormat string
	storeURI  string
	seed      int64

	// Logger shared by all commands.
	logger *nestward.Logger
)

// flagEnv maps persistent flags to the environment variables backing
// them. Flags given on the command line win over the environment; both
// win over scenario file values.
var flagEnv = map[string]string{
	"log-level":  "NESTWARD_LOG_LEVEL",
	"log-format": "NESTWARD_LOG_FORMAT",
	"store":      "NESTWARD_STORE",
	"seed":       "NESTWARD_SEED",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nestward",
	Short: "nestward - insect-style visual homing simulator",
	Long: `nestward simulates visually guided homing.

An agent learns one or more outbound routes by replaying them through a
sparse associative memory, then walks home by scanning a fan of
candidate headings at every step and turning toward the most familiar
view. Scenarios are YAML files describing the world, the agent and the
training routes; finished runs are archived to a local directory or an
S3 bucket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyEnv(cmd.Flags()); err != nil {
			return err
		}
		var err error
		logger, err = buildLogger(logLevel, logFormat)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&storeURI, "store", "nestward-data", "Archive store: a directory or s3://bucket[/prefix]")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Override the seed of every scenario")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nestward:", err)
		os.Exit(1)
	}
}

// applyEnv fills unset flags from their NESTWARD_* variables. Applied
// values are marked as set so they also override scenario file values.
func applyEnv(flags *pflag.FlagSet) error {
	for name, env := range flagEnv {
		f := flags.Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		v, ok := os.LookupEnv(env)
		if !ok || v == "" {
			continue
		}
		if err := f.Value.Set(v); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		f.Changed = true
	}
	return nil
}

// buildLogger constructs the slog-backed logger selected by the
// --log-level and --log-format flags. Logs go to stderr; command output
// stays on stdout.
func buildLogger(level, format string) (*nestward.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lv}
	switch strings.ToLower(format) {
	case "text":
		return nestward.NewLogger(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return nestward.NewLogger(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", format)
	}
}

// openStore resolves a store URI. s3://bucket[/prefix] selects an S3
// store on the default AWS credential chain; anything else is a local
// directory, created if missing.
func openStore(ctx context.Context, uri string) (blobstore.Store, error) {
	if rest, ok := strings.CutPrefix(uri, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("store %q: missing bucket", uri)
		}
		var optFns []func(*s3blob.Options)
		if prefix != "" {
			optFns = append(optFns, s3blob.WithPrefix(prefix))
		}
		return s3blob.New(ctx, bucket, optFns...)
	}
	return blobstore.NewLocalStore(uri)
}
