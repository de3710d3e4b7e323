package sim

import "fmt"

// TokenizationError reports text that could not be encoded into tokens.
// It is a data error and is never retried.
type TokenizationError struct {
	Vocabulary string
	Reason     string
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("tokenize (%s): %s", e.Vocabulary, e.Reason)
}

// TraceEntryError names a single trace record that failed to parse or tokenize.
// Index is the 0-based record position in the trace file.
type TraceEntryError struct {
	File  string
	Index int
	Err   error
}

func (e *TraceEntryError) Error() string {
	return fmt.Sprintf("trace %s entry %d: %v", e.File, e.Index, e.Err)
}

func (e *TraceEntryError) Unwrap() error { return e.Err }

// ReplayError aborts a whole replay: strict mode hit a bad entry, or the
// trace was empty or unreadable.
type ReplayError struct {
	File      string
	Processed int
	Skipped   int
	Err       error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay %s failed after %d processed, %d skipped: %v", e.File, e.Processed, e.Skipped, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// PoolCapacityError is a configuration mistake: the pool capacity must be positive.
type PoolCapacityError struct {
	Capacity int64
}

func (e *PoolCapacityError) Error() string {
	return fmt.Sprintf("pool capacity must be > 0 tokens, got %d", e.Capacity)
}
