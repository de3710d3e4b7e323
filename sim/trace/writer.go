package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer emits match records as JSON lines. Every record is flushed as soon
// as it is written so a run that aborts later leaves complete lines behind.
type Writer struct {
	buf    *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
	count  int
}

// NewWriter wraps w. The caller keeps ownership of w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{buf: buf, enc: json.NewEncoder(buf)}
}

// CreateWriter creates (or truncates) path, making parent directories.
func CreateWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating match output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating match output: %w", err)
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// Write appends one record and flushes it.
func (w *Writer) Write(rec *MatchRecord) error {
	if rec.SubstringMatches == nil {
		rec.SubstringMatches = []SubstringMatch{}
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("writing match record %d: %w", rec.SequenceIndex, err)
	}
	w.count++
	return w.buf.Flush()
}

// WriteSummary appends the final summary object.
func (w *Writer) WriteSummary(s *Summary) error {
	if err := w.enc.Encode(s); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return w.buf.Flush()
}

// Count returns how many records were written.
func (w *Writer) Count() int { return w.count }

// Close flushes and closes the underlying file, if the writer owns one.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// ReadMatches loads a match file written by Writer. The trailing summary
// line, when present, is returned separately.
func ReadMatches(r io.Reader) ([]MatchRecord, *Summary, error) {
	var (
		records []MatchRecord
		summary *Summary
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 256<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, ok := probe["total_calls"]; ok {
			summary = &Summary{}
			if err := json.Unmarshal(raw, summary); err != nil {
				return nil, nil, fmt.Errorf("line %d: summary: %w", line, err)
			}
			continue
		}
		var rec MatchRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading matches: %w", err)
	}
	return records, summary, nil
}
