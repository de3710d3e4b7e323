package trace

// Summary aggregates hit rates over a whole replay.
// Rates are fractions of all input tokens; Gap = SubstringHitRate - PrefixHitRate.
type Summary struct {
	TotalCalls       int     `json:"total_calls"`
	TotalInputTokens int64   `json:"total_input_tokens"`
	PrefixHitRate    float64 `json:"prefix_hit_rate"`
	SubstringHitRate float64 `json:"substring_hit_rate"`
	Gap              float64 `json:"gap"`
	AvgInputTokens   float64 `json:"avg_input_tokens"`
	SkippedEntries   int     `json:"skipped_entries"`
}

// NewSummary derives rates from raw totals. Zero input tokens yields zero rates.
func NewSummary(calls int, inputTokens, prefixMatched, substringMatched int64, skipped int) *Summary {
	s := &Summary{
		TotalCalls:       calls,
		TotalInputTokens: inputTokens,
		SkippedEntries:   skipped,
	}
	if calls == 0 || inputTokens == 0 {
		return s
	}
	s.PrefixHitRate = float64(prefixMatched) / float64(inputTokens)
	s.SubstringHitRate = float64(substringMatched) / float64(inputTokens)
	s.Gap = s.SubstringHitRate - s.PrefixHitRate
	s.AvgInputTokens = float64(inputTokens) / float64(calls)
	return s
}

// Summarize recomputes a summary from persisted records. Substring coverage
// is rebuilt from the match ranges rather than trusted from the record.
// Safe for nil or empty input.
func Summarize(records []MatchRecord) *Summary {
	var input, prefix, substring int64
	for _, r := range records {
		input += int64(r.InputLen)
		if r.InputLen == 0 {
			continue
		}
		prefix += int64(min(r.PrefixMatchLen, r.InputLen))
		substring += int64(Coverage(r.SubstringMatches, r.InputLen))
	}
	return NewSummary(len(records), input, prefix, substring, 0)
}
