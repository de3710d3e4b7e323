package sim

// Rolling-hash constants. Tokens are spread with a golden-ratio multiplier
// before entering the polynomial so that small ids do not cluster.
const (
	windowHashBase uint64 = 0x100000001b3
	tokenSpread    uint64 = 0x9e3779b97f4a7c15
)

// occurrence is one window position inside a retained run.
type occurrence struct {
	run    *TokenRun
	offset int
}

// windowIndex maps the hash of every width-token window of every retained
// run to its occurrences in insertion order. Eviction is always of the
// oldest run, whose occurrences therefore sit at the front of each list.
type windowIndex struct {
	width   int
	topPow  uint64 // windowHashBase^(width-1)
	windows map[uint64][]occurrence
	entries int
}

func newWindowIndex(width int) *windowIndex {
	pow := uint64(1)
	for i := 1; i < width; i++ {
		pow *= windowHashBase
	}
	return &windowIndex{
		width:   width,
		topPow:  pow,
		windows: make(map[uint64][]occurrence),
	}
}

func spread(tok int) uint64 {
	return (uint64(tok) + 1) * tokenSpread
}

// forEachWindow calls fn with the hash of every width-token window of tokens.
func (idx *windowIndex) forEachWindow(tokens []int, fn func(offset int, h uint64)) {
	w := idx.width
	if len(tokens) < w {
		return
	}
	var h uint64
	for i := 0; i < w; i++ {
		h = h*windowHashBase + spread(tokens[i])
	}
	fn(0, h)
	for i := w; i < len(tokens); i++ {
		h = (h-spread(tokens[i-w])*idx.topPow)*windowHashBase + spread(tokens[i])
		fn(i-w+1, h)
	}
}

func (idx *windowIndex) insert(run *TokenRun) {
	idx.forEachWindow(run.Tokens, func(offset int, h uint64) {
		idx.windows[h] = append(idx.windows[h], occurrence{run: run, offset: offset})
		idx.entries++
	})
}

func (idx *windowIndex) evict(run *TokenRun) {
	idx.forEachWindow(run.Tokens, func(_ int, h uint64) {
		occ := idx.windows[h]
		if len(occ) == 0 || occ[0].run != run {
			return
		}
		occ[0] = occurrence{}
		occ = occ[1:]
		idx.entries--
		switch {
		case len(occ) == 0:
			delete(idx.windows, h)
		case cap(occ) > 2*len(occ)+16:
			idx.windows[h] = append([]occurrence(nil), occ...)
		default:
			idx.windows[h] = occ
		}
	})
}

// lookup returns the occurrences for a window hash, oldest first.
func (idx *windowIndex) lookup(h uint64) []occurrence {
	return idx.windows[h]
}
