package sim

import "sort"

// TraceEntry is one recorded LLM call. Only Input is matched against the
// pool; Output is generated content and is tracked for totals only.
type TraceEntry struct {
	Index     int    // 0-based record position in the trace file
	Timestamp int64  // Microseconds since epoch, as written by the collectors
	Input     string // Prompt text sent to the model
	Output    string // Completion text returned by the model
	SessionID string
}

// Trace is a fully loaded trace file. Rejected holds records that failed
// to parse; they never reach the matchers.
type Trace struct {
	Name     string
	Entries  []TraceEntry
	Rejected []*TraceEntryError
}

// Records returns the number of records read, accepted or not.
func (t *Trace) Records() int {
	return len(t.Entries) + len(t.Rejected)
}

// Ordered returns the entries in replay order: ascending timestamp, ties
// broken by file position. The trace itself is not modified.
func (t *Trace) Ordered() []TraceEntry {
	out := append([]TraceEntry(nil), t.Entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Index < out[j].Index
	})
	return out
}
