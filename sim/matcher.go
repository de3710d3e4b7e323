package sim

import (
	"fmt"

	"github.com/kvtrace/hitrate-sim/sim/trace"
)

// MatcherConfig bounds the substring search.
type MatcherConfig struct {
	MinMatchTokens int `yaml:"min_match_tokens"` // Window length; shorter blocks are not reported (prefix hits excepted)

	// MaxCandidates caps the most-recent occurrences probed per window. Older
	// occurrences are never tried, so on highly repetitive pools the reported
	// coverage is a lower bound on the true longest-match coverage.
	MaxCandidates int `yaml:"max_candidates"`
}

// DefaultMatcherConfig returns the matcher settings used by the CLI.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{MinMatchTokens: 3, MaxCandidates: 256}
}

// Validate rejects non-positive bounds.
func (c MatcherConfig) Validate() error {
	if c.MinMatchTokens <= 0 {
		return fmt.Errorf("min match tokens must be > 0, got %d", c.MinMatchTokens)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be > 0, got %d", c.MaxCandidates)
	}
	return nil
}

// PrefixMatch is the longest leading run shared with some retained run.
type PrefixMatch struct {
	Length int
	Source *TokenRun // nil when Length == 0
}

// MatchPrefix returns the longest prefix of tokens equal to the prefix of a
// run visible in view. Among equally long candidates the most recent wins.
func MatchPrefix(view PoolView, tokens []int) PrefixMatch {
	depth, source, ok := view.pool.prefix.longest(view, tokens)
	if ok {
		return PrefixMatch{Length: depth, Source: source}
	}
	// The trie only tracks the newest run per node; a view older than the
	// pool has to compare against its runs directly.
	var best PrefixMatch
	for _, run := range view.Runs() {
		n := commonPrefix(run.Tokens, tokens)
		if n > 0 && n >= best.Length {
			best = PrefixMatch{Length: n, Source: run}
		}
	}
	return best
}

func commonPrefix(a, b []int) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// diagonal identifies an alignment between the input and a source run.
type diagonal struct {
	run   *TokenRun
	shift int // source offset minus input offset
}

// MatchSubstrings finds, for every input position, the longest block that
// occurs in a visible run, and keeps a match only when it reaches further
// right than every match kept before it. The kept matches cover exactly the
// positions any per-position longest match covers, and each is maximal in
// both directions. The prefix hit, if any, is seeded as the first match.
//
// Only the cfg.MaxCandidates most recent occurrences of each window are
// probed; ties go to the most recent source run.
func MatchSubstrings(view PoolView, tokens []int, prefix PrefixMatch, cfg MatcherConfig) []trace.SubstringMatch {
	var matches []trace.SubstringMatch
	reach := 0
	if prefix.Length > 0 && prefix.Source != nil {
		matches = append(matches, trace.SubstringMatch{
			MatchStart:       0,
			MatchEnd:         prefix.Length,
			SourceSequenceID: prefix.Source.SequenceID,
			SourceStart:      0,
		})
		reach = prefix.Length
	}

	idx := view.pool.windows
	ends := make(map[diagonal]int)
	idx.forEachWindow(tokens, func(start int, h uint64) {
		occ := idx.lookup(h)
		bestEnd := 0
		var best occurrence
		probed := 0
		for k := len(occ) - 1; k >= 0 && probed < cfg.MaxCandidates; k-- {
			o := occ[k]
			if !view.Visible(o.run) {
				continue
			}
			probed++
			d := diagonal{run: o.run, shift: o.offset - start}
			end, known := ends[d]
			if !known || end <= start {
				end = start + commonPrefix(o.run.Tokens[o.offset:], tokens[start:])
				ends[d] = end
			}
			if end-start < idx.width {
				continue // hash collision
			}
			if end > bestEnd {
				bestEnd = end
				best = o
			}
		}
		if best.run != nil && bestEnd > reach {
			matches = append(matches, trace.SubstringMatch{
				MatchStart:       start,
				MatchEnd:         bestEnd,
				SourceSequenceID: best.run.SequenceID,
				SourceStart:      best.offset,
			})
			reach = bestEnd
		}
	})
	return matches
}
