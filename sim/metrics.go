// Tracks replay-wide cache hit statistics.

package sim

import (
	"fmt"
	"io"

	"github.com/kvtrace/hitrate-sim/sim/trace"
)

// Metrics is the running aggregate of one replay. It is updated once per
// processed entry and never reset, so it is reportable at any entry boundary.
type Metrics struct {
	TotalCalls            int   // Entries processed
	TotalInputTokens      int64 // Sum of input lengths
	TotalOutputTokens     int64 // Sum of output lengths (never matched)
	TotalPrefixMatched    int64 // Sum of prefix match lengths
	TotalSubstringMatched int64 // Sum of covered input positions
	SkippedEntries        int   // Entries rejected at parse or tokenize time
	EvictedRuns           int64 // Runs evicted from the pool
	PeakRetainedTokens    int64 // Max tokens held by the pool after any insertion
}

// NewMetrics returns an empty aggregate.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record folds one match record into the aggregate.
func (m *Metrics) Record(rec *trace.MatchRecord) {
	m.TotalCalls++
	m.TotalInputTokens += int64(rec.InputLen)
	m.TotalOutputTokens += int64(rec.OutputLen)
	m.TotalPrefixMatched += int64(rec.PrefixMatchLen)
	m.TotalSubstringMatched += int64(rec.SubstringMatchLen)
}

// Summary derives hit rates from the totals so far.
func (m *Metrics) Summary() *trace.Summary {
	return trace.NewSummary(m.TotalCalls, m.TotalInputTokens, m.TotalPrefixMatched, m.TotalSubstringMatched, m.SkippedEntries)
}

// Print writes a human-readable report for the named trace.
func (m *Metrics) Print(w io.Writer, name string) {
	s := m.Summary()
	_, _ = fmt.Fprintf(w, "=== Hit Rate: %s ===\n", name)
	_, _ = fmt.Fprintf(w, "Calls                : %d (skipped %d)\n", s.TotalCalls, s.SkippedEntries)
	_, _ = fmt.Fprintf(w, "Input tokens         : %d (avg %.1f)\n", s.TotalInputTokens, s.AvgInputTokens)
	_, _ = fmt.Fprintf(w, "Prefix hit rate      : %.2f%%\n", s.PrefixHitRate*100)
	_, _ = fmt.Fprintf(w, "Substring hit rate   : %.2f%%\n", s.SubstringHitRate*100)
	_, _ = fmt.Fprintf(w, "Gap                  : %.2f%%\n", s.Gap*100)
	_, _ = fmt.Fprintf(w, "Evicted runs         : %d\n", m.EvictedRuns)
	_, _ = fmt.Fprintf(w, "Peak pool tokens     : %d\n", m.PeakRetainedTokens)
}
