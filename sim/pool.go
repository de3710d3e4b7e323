package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// UnlimitedCapacity disables eviction. Only suitable for small traces.
const UnlimitedCapacity int64 = math.MaxInt64

// TokenRun is the token sequence one trace entry contributed to the pool.
// A run is the eviction unit: it is retained or evicted as a whole.
type TokenRun struct {
	SequenceID int   // Sequence index of the trace entry that inserted the run
	Tokens     []int // Tokens as inserted; never mutated afterwards
	Recency    int64 // Monotonic insertion counter, 1-based
}

// TokenPool is an LRU-bounded store of token runs.
// It owns the run arena and both match indexes and keeps them consistent
// with every insertion and eviction.
//
// Thread-safety: NOT thread-safe. Each replay owns its own pool.
type TokenPool struct {
	capacity int64
	retained int64
	peak     int64
	clock    int64
	evicted  int64

	runs []*TokenRun // live runs, oldest first, starting at head
	head int

	prefix  *prefixIndex
	windows *windowIndex
}

// NewTokenPool creates a pool holding at most capacityTokens tokens (plus,
// transiently, one oversized run). Substring lookups index windows of
// windowTokens tokens.
func NewTokenPool(capacityTokens int64, windowTokens int) (*TokenPool, error) {
	if capacityTokens <= 0 {
		return nil, &PoolCapacityError{Capacity: capacityTokens}
	}
	if windowTokens <= 0 {
		return nil, fmt.Errorf("window length must be > 0 tokens, got %d", windowTokens)
	}
	return &TokenPool{
		capacity: capacityTokens,
		prefix:   newPrefixIndex(),
		windows:  newWindowIndex(windowTokens),
	}, nil
}

// CapacityFromBytes converts a memory budget into a token capacity.
func CapacityFromBytes(budgetBytes, bytesPerToken int64) (int64, error) {
	if bytesPerToken <= 0 {
		return 0, fmt.Errorf("bytes per token must be > 0, got %d", bytesPerToken)
	}
	capacity := budgetBytes / bytesPerToken
	if capacity <= 0 {
		return 0, &PoolCapacityError{Capacity: capacity}
	}
	return capacity, nil
}

// Insert appends a run for sequenceID and evicts the oldest runs until the
// retained token count fits the capacity. The new run itself is never
// evicted by its own insertion, so an oversized run is kept alone.
// Returns the sequence ids of evicted runs, oldest first.
func (p *TokenPool) Insert(sequenceID int, tokens []int) []int {
	if len(tokens) == 0 {
		return nil
	}
	p.clock++
	run := &TokenRun{
		SequenceID: sequenceID,
		Tokens:     append([]int(nil), tokens...),
		Recency:    p.clock,
	}
	p.runs = append(p.runs, run)
	p.retained += int64(len(run.Tokens))
	p.prefix.insert(run)
	p.windows.insert(run)

	var evicted []int
	for p.retained > p.capacity && p.Len() > 1 {
		evicted = append(evicted, p.evictOldest().SequenceID)
	}
	if p.retained > p.peak {
		p.peak = p.retained
	}
	if len(evicted) > 0 {
		logrus.Debugf("pool: inserted seq %d (%d tokens), evicted %d runs, retained %d/%d tokens",
			sequenceID, len(tokens), len(evicted), p.retained, p.capacity)
	}
	return evicted
}

// evictOldest removes the least recently inserted run from the arena and indexes.
func (p *TokenPool) evictOldest() *TokenRun {
	run := p.runs[p.head]
	p.runs[p.head] = nil
	p.head++
	// compact once the dead prefix dominates the slice
	if p.head > 64 && p.head*2 > len(p.runs) {
		p.runs = append([]*TokenRun(nil), p.runs[p.head:]...)
		p.head = 0
	}
	p.retained -= int64(len(run.Tokens))
	p.evicted++
	p.prefix.evict(run)
	p.windows.evict(run)
	return run
}

// Snapshot returns a read-only view of the runs retained right now.
// Runs inserted later are never visible through it.
func (p *TokenPool) Snapshot() PoolView {
	return PoolView{pool: p, recency: p.clock}
}

// Len returns the number of retained runs.
func (p *TokenPool) Len() int { return len(p.runs) - p.head }

// RetainedTokens returns the total tokens across retained runs.
func (p *TokenPool) RetainedTokens() int64 { return p.retained }

// PeakRetainedTokens returns the highest retained token count after any insertion.
func (p *TokenPool) PeakRetainedTokens() int64 { return p.peak }

// Capacity returns the configured token capacity.
func (p *TokenPool) Capacity() int64 { return p.capacity }

// Evictions returns how many runs have been evicted so far.
func (p *TokenPool) Evictions() int64 { return p.evicted }

// WindowTokens returns the window length of the substring index.
func (p *TokenPool) WindowTokens() int { return p.windows.width }

// Runs returns the retained runs, oldest first. Callers must not mutate them.
func (p *TokenPool) Runs() []*TokenRun {
	return append([]*TokenRun(nil), p.runs[p.head:]...)
}

// PoolView is the pool as of one snapshot.
type PoolView struct {
	pool    *TokenPool
	recency int64
}

// Visible reports whether run belongs to the view.
func (v PoolView) Visible(run *TokenRun) bool {
	return run != nil && run.Recency <= v.recency
}

// Runs returns the visible retained runs, oldest first.
func (v PoolView) Runs() []*TokenRun {
	var out []*TokenRun
	for _, r := range v.pool.runs[v.pool.head:] {
		if v.Visible(r) {
			out = append(out, r)
		}
	}
	return out
}

// Current reports whether nothing was inserted since the snapshot.
func (v PoolView) Current() bool { return v.recency == v.pool.clock }

// Empty reports whether the view holds no runs.
func (v PoolView) Empty() bool {
	return v.pool.Len() == 0 || v.pool.runs[v.pool.head].Recency > v.recency
}
