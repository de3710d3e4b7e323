package sim

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenPool_NonPositiveCapacity_PoolCapacityError(t *testing.T) {
	for _, capacity := range []int64{0, -5} {
		_, err := NewTokenPool(capacity, 3)
		var capErr *PoolCapacityError
		require.True(t, errors.As(err, &capErr), "capacity %d", capacity)
		assert.Equal(t, capacity, capErr.Capacity)
	}
}

func TestCapacityFromBytes(t *testing.T) {
	// GIVEN an 8 GiB budget at 128 KiB per token
	capacity, err := CapacityFromBytes(8<<30, 128<<10)
	require.NoError(t, err)
	assert.Equal(t, int64(65536), capacity)

	// THEN a budget below one token is a capacity error
	_, err = CapacityFromBytes(100, 1000)
	var capErr *PoolCapacityError
	assert.True(t, errors.As(err, &capErr))

	_, err = CapacityFromBytes(100, 0)
	assert.Error(t, err)
}

// Concrete scenario: capacity 4, [1,2,3,4] then [5,6] evicts the first run whole.
func TestTokenPool_Insert_EvictsOldestRunWhole(t *testing.T) {
	p := mustPool(4, 3)

	assert.Empty(t, p.Insert(0, []int{1, 2, 3, 4}))
	evicted := p.Insert(1, []int{5, 6})

	assert.Equal(t, []int{0}, evicted)
	assert.Equal(t, []int{1}, retainedIDs(p))
	assert.Equal(t, int64(2), p.RetainedTokens())
	assert.Equal(t, int64(1), p.Evictions())
	assert.Equal(t, int64(4), p.PeakRetainedTokens())
}

func TestTokenPool_OversizedRun_KeptAloneOthersEvicted(t *testing.T) {
	// GIVEN a pool of 5 tokens holding two small runs
	p := mustPool(5, 2)
	p.Insert(0, []int{1, 2})
	p.Insert(1, []int{3, 4})

	// WHEN a run larger than the capacity arrives
	evicted := p.Insert(2, []int{9, 9, 9, 9, 9, 9, 9, 9})

	// THEN every other run is evicted and the oversized one is retained whole
	assert.Equal(t, []int{0, 1}, evicted)
	assert.Equal(t, []int{2}, retainedIDs(p))
	assert.Equal(t, int64(8), p.RetainedTokens())

	// AND the next insertion evicts it
	assert.Equal(t, []int{2}, p.Insert(3, []int{7}))
	assert.Equal(t, int64(1), p.RetainedTokens())
}

func TestTokenPool_Unlimited_NeverEvicts(t *testing.T) {
	p := mustPool(UnlimitedCapacity, 3)
	for i := 0; i < 100; i++ {
		assert.Empty(t, p.Insert(i, []int{i, i + 1, i + 2, i + 3}))
	}
	assert.Equal(t, 100, p.Len())
	assert.Equal(t, int64(400), p.RetainedTokens())
}

func TestTokenPool_EmptyRun_NotStored(t *testing.T) {
	p := mustPool(10, 3)
	assert.Nil(t, p.Insert(0, nil))
	assert.Equal(t, 0, p.Len())
	assert.True(t, p.Snapshot().Empty())
}

// After every insertion the retained runs are exactly the newest runs whose
// cumulative length fits the capacity (or the newest run alone if it does not fit).
func TestTokenPool_ExactLRU_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		capacity := int64(1 + rng.Intn(40))
		p := mustPool(capacity, 2)
		var lengths []int
		for seq := 0; seq < 60; seq++ {
			n := 1 + rng.Intn(15)
			tokens := make([]int, n)
			for i := range tokens {
				tokens[i] = rng.Intn(5)
			}
			p.Insert(seq, tokens)
			lengths = append(lengths, n)

			// expected: walk newest to oldest while the sum fits
			want := []int{seq}
			sum := int64(n)
			for j := seq - 1; j >= 0; j-- {
				if sum+int64(lengths[j]) > capacity {
					break
				}
				sum += int64(lengths[j])
				want = append([]int{j}, want...)
			}
			require.Equal(t, want, retainedIDs(p), "trial %d seq %d", trial, seq)
			if int64(n) <= capacity {
				require.LessOrEqual(t, p.RetainedTokens(), capacity)
			}
		}
	}
}

func TestTokenPool_Eviction_PrunesIndexes(t *testing.T) {
	// GIVEN a pool that evicts its first run
	p := mustPool(4, 2)
	p.Insert(0, []int{1, 2, 3, 4})
	p.Insert(1, []int{5, 6})

	// THEN only the surviving run is indexed
	assert.Equal(t, 2, p.prefix.size)
	assert.Equal(t, 1, p.windows.entries)
	assert.Len(t, p.windows.windows, 1)
}

func TestTokenPool_SharedPrefix_SurvivesEvictionOfOlderRun(t *testing.T) {
	p := mustPool(6, 2)
	p.Insert(0, []int{1, 2, 3})
	p.Insert(1, []int{1, 2, 4})
	p.Insert(2, []int{8}) // evicts run 0

	assert.Equal(t, []int{1, 2}, retainedIDs(p))
	m := MatchPrefix(p.Snapshot(), []int{1, 2, 3})
	assert.Equal(t, 2, m.Length)
	assert.Equal(t, 1, m.Source.SequenceID)
}

func TestPoolView_ExcludesRunsInsertedAfterSnapshot(t *testing.T) {
	// GIVEN a snapshot taken over one run
	p := mustPool(UnlimitedCapacity, 2)
	p.Insert(0, []int{1, 2, 3})
	view := p.Snapshot()

	// WHEN a longer matching run is inserted afterwards
	p.Insert(1, []int{1, 2, 3, 4, 5})

	// THEN the old view neither lists nor matches it
	assert.False(t, view.Current())
	require.Len(t, view.Runs(), 1)
	m := MatchPrefix(view, []int{1, 2, 3, 4, 5})
	assert.Equal(t, 3, m.Length)
	assert.Equal(t, 0, m.Source.SequenceID)
	for _, sm := range MatchSubstrings(view, []int{9, 2, 3, 4, 5}, PrefixMatch{}, DefaultMatcherConfig()) {
		assert.Equal(t, 0, sm.SourceSequenceID)
	}
}
