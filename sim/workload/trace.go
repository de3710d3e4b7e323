package workload

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kvtrace/hitrate-sim/sim"
)

// maxRecordBytes bounds a single JSONL record. Agent prompts carrying a full
// memory graph run to several megabytes.
const maxRecordBytes = 256 << 20

// traceLine is the on-disk record written by the trace collectors. Extra
// fields (model, prompt_tokens, ...) are ignored.
type traceLine struct {
	Timestamp *int64  `json:"timestamp"`
	Input     *string `json:"input"`
	Output    string  `json:"output"`
	SessionID string  `json:"session_id"`
}

// TraceLine is the exported form used when writing traces.
type TraceLine struct {
	Timestamp int64  `json:"timestamp"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	SessionID string `json:"session_id"`
}

// LoadTrace reads a JSONL trace file. A file that cannot be opened or read
// is a *sim.ReplayError; individual bad records are collected in Rejected.
func LoadTrace(path string) (*sim.Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &sim.ReplayError{File: path, Err: fmt.Errorf("opening trace: %w", err)}
	}
	defer func() { _ = f.Close() }()
	return ReadTrace(f, path)
}

// ReadTrace parses JSONL records from r. Blank lines are skipped and do
// not consume an entry index.
func ReadTrace(r io.Reader, name string) (*sim.Trace, error) {
	trace := &sim.Trace{Name: name}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxRecordBytes)

	index := 0
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		entry, err := parseTraceLine(raw)
		if err != nil {
			trace.Rejected = append(trace.Rejected, &sim.TraceEntryError{File: name, Index: index, Err: err})
		} else {
			entry.Index = index
			trace.Entries = append(trace.Entries, entry)
		}
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, &sim.ReplayError{File: name, Err: fmt.Errorf("reading trace: %w", err)}
	}
	return trace, nil
}

func parseTraceLine(raw []byte) (sim.TraceEntry, error) {
	// json.Unmarshal would silently replace invalid bytes with U+FFFD.
	if !utf8.Valid(raw) {
		return sim.TraceEntry{}, &sim.TokenizationError{Vocabulary: "utf-8", Reason: "record is not valid UTF-8"}
	}
	var line traceLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return sim.TraceEntry{}, fmt.Errorf("decoding record: %w", err)
	}
	if line.Input == nil {
		return sim.TraceEntry{}, errors.New(`missing "input" field`)
	}
	if line.Timestamp == nil {
		return sim.TraceEntry{}, errors.New(`missing "timestamp" field`)
	}
	return sim.TraceEntry{
		Timestamp: *line.Timestamp,
		Input:     *line.Input,
		Output:    line.Output,
		SessionID: line.SessionID,
	}, nil
}

// WriteTrace writes entries as JSONL in the collector format.
func WriteTrace(path string, lines []TraceLine) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating trace dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing trace file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for i := range lines {
		if err := enc.Encode(&lines[i]); err != nil {
			return fmt.Errorf("writing trace record %d: %w", i, err)
		}
	}
	return w.Flush()
}

// TraceName derives the output stem for a trace path:
// "traces/mem0_graph/mem0_graph_session.jsonl" becomes "mem0_graph".
func TraceName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimSuffix(base, "_session")
}
