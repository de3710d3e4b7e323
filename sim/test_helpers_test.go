package sim

import (
	"strconv"
	"strings"

	"github.com/kvtrace/hitrate-sim/sim/internal/testutil"
)

// intTokenizer reads whitespace-separated integers, so tests can state
// token ids directly.
type intTokenizer struct{}

func (intTokenizer) Vocabulary() string { return "ints" }

func (intTokenizer) Encode(text string) ([]int, error) {
	fields := strings.Fields(text)
	tokens := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, &TokenizationError{Vocabulary: "ints", Reason: err.Error()}
		}
		tokens[i] = n
	}
	return tokens, nil
}

// tokenTrace builds a trace whose entries carry the given token sequences,
// one microsecond apart.
func tokenTrace(name string, inputs ...[]int) *Trace {
	t := &Trace{Name: name}
	for i, in := range inputs {
		t.Entries = append(t.Entries, TraceEntry{
			Index:     i,
			Timestamp: int64(i),
			Input:     testutil.TokenText(in...),
			SessionID: "s0",
		})
	}
	return t
}

// mustPool builds a pool or panics; for tests only.
func mustPool(capacity int64, window int) *TokenPool {
	p, err := NewTokenPool(capacity, window)
	if err != nil {
		panic(err)
	}
	return p
}

// retainedIDs lists the sequence ids of the retained runs, oldest first.
func retainedIDs(p *TokenPool) []int {
	var ids []int
	for _, r := range p.Runs() {
		ids = append(ids, r.SequenceID)
	}
	return ids
}
