// Package sim provides the replay engine that estimates prefix-cache and
// block-cache hit rates for a trace of LLM calls.
//
// # Reading Guide
//
// Start with these files:
//   - pool.go: the LRU-bounded token pool; runs are inserted and evicted whole
//   - matcher.go: prefix and substring matching against a pool snapshot
//   - simulator.go: the replay loop (tokenize, snapshot, match, insert, aggregate)
//
// # Architecture
//
// The pool owns two indexes kept in lockstep with its runs:
//   - prefix_index.go: a refcounted token trie over run prefixes
//   - window_index.go: a rolling-hash map from fixed-length windows to occurrences
//
// Sub-packages:
//   - sim/workload/: JSONL trace loading and synthetic agent traces
//   - sim/trace/: match records, summaries and the JSONL writer
//
// Each replay owns its own pool and runs on a single goroutine; independent
// traces may be replayed concurrently.
package sim
