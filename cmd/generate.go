package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kvtrace/hitrate-sim/sim/workload"
)

var (
	genSeed     int64  // Seed for synthetic trace generation
	genCalls    int    // Number of calls; 0 keeps the spec value
	genSessions int    // Number of sessions; 0 keeps the spec value
	genSpec     string // Optional YAML synthesis spec
	genOutput   string // Output JSONL path
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a synthetic agent-style JSONL trace",
	Long: `Generates a deterministic trace in the collector format: a shared system
prompt, a shuffled selection of reusable memory blocks and fresh user text
per call. Useful for exercising replay without recorded traces.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := workload.DefaultSynthesisSpec()
		if genSpec != "" {
			loaded, err := workload.LoadSynthesisSpec(genSpec)
			if err != nil {
				return err
			}
			spec = *loaded
		}
		if genCalls > 0 {
			spec.Calls = genCalls
		}
		if genSessions > 0 {
			spec.Sessions = genSessions
		}

		lines, err := workload.GenerateAgentTrace(spec, genSeed)
		if err != nil {
			return err
		}
		if err := workload.WriteTrace(genOutput, lines); err != nil {
			return err
		}
		logrus.Infof("wrote %s calls to %s (seed %d)", humanize.Comma(int64(len(lines))), genOutput, genSeed)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", genOutput)
		return nil
	},
}

func init() {
	generateCmd.Flags().Int64Var(&genSeed, "seed", 42, "Seed for random trace generation")
	generateCmd.Flags().IntVar(&genCalls, "calls", 0, "Number of calls (default from spec)")
	generateCmd.Flags().IntVar(&genSessions, "sessions", 0, "Number of sessions (default from spec)")
	generateCmd.Flags().StringVar(&genSpec, "spec", "", "YAML synthesis spec")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "synthetic_session.jsonl", "Output trace path")
}
