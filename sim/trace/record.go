// Package trace holds the per-call match records a replay emits and the
// summaries derived from them. It has no dependencies on sim/.
package trace

import "sort"

// SubstringMatch is one block of the input found in a retained run:
// input[MatchStart:MatchEnd] equals the source run's tokens starting at SourceStart.
type SubstringMatch struct {
	MatchStart       int `json:"match_start"`
	MatchEnd         int `json:"match_end"`
	SourceSequenceID int `json:"source_sequence_id"`
	SourceStart      int `json:"source_start"`
}

// Len returns the number of input tokens the match spans.
func (m SubstringMatch) Len() int { return m.MatchEnd - m.MatchStart }

// MatchRecord captures the cache outcome of a single trace entry.
type MatchRecord struct {
	SequenceIndex     int              `json:"sequence_index"`
	SessionID         string           `json:"session_id,omitempty"`
	Timestamp         int64            `json:"timestamp"`
	InputLen          int              `json:"input_len"`
	OutputLen         int              `json:"output_len"`
	PrefixMatchLen    int              `json:"prefix_match_len"`
	SubstringMatches  []SubstringMatch `json:"substring_matches"`
	SubstringMatchLen int              `json:"substring_match_len"`
}

// Coverage returns how many distinct positions in [0, inputLen) are covered
// by at least one match. Overlapping matches are counted once.
func Coverage(matches []SubstringMatch, inputLen int) int {
	if inputLen <= 0 || len(matches) == 0 {
		return 0
	}
	ranges := make([][2]int, 0, len(matches))
	for _, m := range matches {
		start, end := max(0, m.MatchStart), min(inputLen, m.MatchEnd)
		if end > start {
			ranges = append(ranges, [2]int{start, end})
		}
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })

	covered, reach := 0, 0
	for _, r := range ranges {
		if r[1] <= reach {
			continue
		}
		covered += r[1] - max(r[0], reach)
		reach = r[1]
	}
	return covered
}
