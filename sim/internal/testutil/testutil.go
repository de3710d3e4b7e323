// Package testutil provides shared test infrastructure for the replay
// engine: trace fixtures and float assertions used across sim/, sim/workload
// and cmd/ test packages. It does not import sim.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// TraceRecord mirrors one collector JSONL line.
type TraceRecord struct {
	Timestamp int64  `json:"timestamp"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	SessionID string `json:"session_id"`
}

// WriteJSONL writes each value as one JSON line to dir/name and returns the path.
// Raw strings are written verbatim so tests can inject malformed lines.
func WriteJSONL(t *testing.T, dir, name string, lines ...any) string {
	t.Helper()
	var sb strings.Builder
	for _, l := range lines {
		if raw, ok := l.(string); ok {
			sb.WriteString(raw)
		} else {
			data, err := json.Marshal(l)
			if err != nil {
				t.Fatalf("marshal fixture line: %v", err)
			}
			sb.Write(data)
		}
		sb.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}

// TokenText renders token ids as the space-separated text the integer
// tokenizer used in tests reads back.
func TokenText(tokens ...int) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = strconv.Itoa(tok)
	}
	return strings.Join(parts, " ")
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
