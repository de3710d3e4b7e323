package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kvtrace/hitrate-sim/sim/trace"
)

// ErrEmptyTrace is wrapped by the ReplayError returned for a trace with no records.
var ErrEmptyTrace = errors.New("trace has no records")

// SimConfig configures one replay.
type SimConfig struct {
	PoolCapacityTokens int64 // Token capacity; UnlimitedCapacity disables eviction
	Matcher            MatcherConfig
	StrictMode         bool           // Abort on the first bad entry instead of skipping it
	OnEntry            func(int, int) // Called after each entry with (done, total); may be nil
}

// RecordSink receives match records in replay order.
type RecordSink func(*trace.MatchRecord) error

// Simulator replays a single trace against its own pool. Replay is strictly
// sequential: every entry is matched against the pool as it stood before
// that entry's own tokens were inserted.
type Simulator struct {
	cfg       SimConfig
	tokenizer Tokenizer
	pool      *TokenPool
	Metrics   *Metrics
	started   bool
}

// NewSimulator validates cfg and builds a fresh pool.
func NewSimulator(cfg SimConfig, tokenizer Tokenizer) (*Simulator, error) {
	if tokenizer == nil {
		return nil, errors.New("simulator requires a tokenizer")
	}
	if err := cfg.Matcher.Validate(); err != nil {
		return nil, err
	}
	pool, err := NewTokenPool(cfg.PoolCapacityTokens, cfg.Matcher.MinMatchTokens)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		cfg:       cfg,
		tokenizer: tokenizer,
		pool:      pool,
		Metrics:   NewMetrics(),
	}, nil
}

// Pool exposes the simulator's pool for inspection.
func (s *Simulator) Pool() *TokenPool { return s.pool }

// Run replays t once. Records are handed to sink as they are produced.
// On cancellation or a fatal error the metrics returned cover every entry
// fully processed before it. A Simulator runs at most once.
func (s *Simulator) Run(ctx context.Context, t *Trace, sink RecordSink) (*Metrics, error) {
	if s.started {
		return nil, errors.New("simulator already ran; create a new one per replay")
	}
	s.started = true

	if t == nil || t.Records() == 0 {
		name := ""
		if t != nil {
			name = t.Name
		}
		return s.Metrics, &ReplayError{File: name, Err: ErrEmptyTrace}
	}

	for _, rejected := range t.Rejected {
		if err := s.skip(t.Name, rejected); err != nil {
			return s.Metrics, err
		}
	}

	entries := t.Ordered()
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return s.Metrics, s.fail(t.Name, fmt.Errorf("replay cancelled: %w", err))
		}
		rec, err := s.Step(entry)
		if err != nil {
			if err := s.skip(t.Name, &TraceEntryError{File: t.Name, Index: entry.Index, Err: err}); err != nil {
				return s.Metrics, err
			}
		} else if sink != nil {
			if err := sink(rec); err != nil {
				return s.Metrics, s.fail(t.Name, fmt.Errorf("emitting record %d: %w", entry.Index, err))
			}
		}
		if s.cfg.OnEntry != nil {
			s.cfg.OnEntry(i+1, len(entries))
		}
	}

	logrus.Infof("replay %s: processed %d entries, skipped %d, evicted %d runs",
		t.Name, s.Metrics.TotalCalls, s.Metrics.SkippedEntries, s.Metrics.EvictedRuns)
	return s.Metrics, nil
}

// skip records a bad entry, or aborts the replay in strict mode.
func (s *Simulator) skip(name string, entryErr *TraceEntryError) error {
	if s.cfg.StrictMode {
		return s.fail(name, entryErr)
	}
	s.Metrics.SkippedEntries++
	logrus.WithFields(logrus.Fields{
		"trace": name,
		"entry": entryErr.Index,
	}).Warnf("skipping entry: %v", entryErr.Err)
	return nil
}

func (s *Simulator) fail(name string, err error) error {
	return &ReplayError{
		File:      name,
		Processed: s.Metrics.TotalCalls,
		Skipped:   s.Metrics.SkippedEntries,
		Err:       err,
	}
}

// Step processes one entry: tokenize, snapshot, match prefix, match
// substrings, then insert the entry's own tokens. The aggregate is updated
// only when the whole step succeeds.
func (s *Simulator) Step(entry TraceEntry) (*trace.MatchRecord, error) {
	input, err := s.tokenizer.Encode(entry.Input)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	output, err := s.tokenizer.Encode(entry.Output)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	view := s.pool.Snapshot()
	prefix := MatchPrefix(view, input)
	matches := MatchSubstrings(view, input, prefix, s.cfg.Matcher)
	if matches == nil {
		matches = []trace.SubstringMatch{}
	}

	rec := &trace.MatchRecord{
		SequenceIndex:     entry.Index,
		SessionID:         entry.SessionID,
		Timestamp:         entry.Timestamp,
		InputLen:          len(input),
		OutputLen:         len(output),
		PrefixMatchLen:    prefix.Length,
		SubstringMatches:  matches,
		SubstringMatchLen: trace.Coverage(matches, len(input)),
	}

	evicted := s.pool.Insert(entry.Index, input)
	s.Metrics.EvictedRuns += int64(len(evicted))
	s.Metrics.PeakRetainedTokens = s.pool.PeakRetainedTokens()
	s.Metrics.Record(rec)
	return rec, nil
}
