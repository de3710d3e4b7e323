package cmd

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kvtrace/hitrate-sim/sim/trace"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize MATCHES...",
	Short: "Recompute hit-rate summaries from match files",
	Long: `Reads <name>_matches.jsonl files written by replay and recomputes each
summary from the match ranges. A stored summary that disagrees with the
records is reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSummarize(cmd.OutOrStdout(), args)
	},
}

type summaryRow struct {
	name    string
	summary *trace.Summary
}

func runSummarize(out io.Writer, paths []string) error {
	rows := make([]summaryRow, 0, len(paths))
	for _, path := range paths {
		s, err := summarizeFile(path)
		if err != nil {
			return err
		}
		rows = append(rows, summaryRow{name: matchFileName(path), summary: s})
	}
	printSummaryTable(out, rows)
	return nil
}

func summarizeFile(path string) (*trace.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening match file: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, stored, err := trace.ReadMatches(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s := trace.Summarize(records)
	if stored == nil {
		logrus.Warnf("%s has no summary line; the replay may not have completed", path)
		return s, nil
	}
	s.SkippedEntries = stored.SkippedEntries
	if stored.TotalCalls != s.TotalCalls ||
		math.Abs(stored.SubstringHitRate-s.SubstringHitRate) > 1e-9 ||
		math.Abs(stored.PrefixHitRate-s.PrefixHitRate) > 1e-9 {
		logrus.Warnf("%s: stored summary (calls=%d prefix=%.4f substring=%.4f) disagrees with records (calls=%d prefix=%.4f substring=%.4f)",
			path, stored.TotalCalls, stored.PrefixHitRate, stored.SubstringHitRate,
			s.TotalCalls, s.PrefixHitRate, s.SubstringHitRate)
	}
	return s, nil
}

// matchFileName strips the directory and the "_matches.jsonl" suffix.
func matchFileName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, "_matches")
}

func printSummaryTable(w io.Writer, rows []summaryRow) {
	_, _ = fmt.Fprintf(w, "%-24s %8s %14s %10s %10s %8s %8s\n",
		"trace", "calls", "input tokens", "prefix", "substring", "gap", "skipped")
	for _, r := range rows {
		s := r.summary
		_, _ = fmt.Fprintf(w, "%-24s %8d %14s %9.2f%% %9.2f%% %7.2f%% %8d\n",
			r.name, s.TotalCalls, humanize.Comma(s.TotalInputTokens),
			s.PrefixHitRate*100, s.SubstringHitRate*100, s.Gap*100, s.SkippedEntries)
	}
}
