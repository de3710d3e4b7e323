package sim

// prefixIndex is a token trie over the leading tokens of every retained run.
// Each node counts the live runs passing through it, so evicting a run
// prunes exactly the branches no other run shares.
type prefixIndex struct {
	root *prefixNode
	size int // number of nodes, excluding root
}

type prefixNode struct {
	children map[int]*prefixNode
	refs     int       // live runs whose prefix passes through this node
	latest   *TokenRun // most recently inserted run through this node
}

func newPrefixIndex() *prefixIndex {
	return &prefixIndex{root: &prefixNode{}}
}

func (idx *prefixIndex) insert(run *TokenRun) {
	node := idx.root
	for _, tok := range run.Tokens {
		child, ok := node.children[tok]
		if !ok {
			if node.children == nil {
				node.children = make(map[int]*prefixNode, 1)
			}
			child = &prefixNode{}
			node.children[tok] = child
			idx.size++
		}
		child.refs++
		child.latest = run
		node = child
	}
}

// evict removes run's path. Refcounts never grow with depth, so the first
// node that drops to zero roots a subtree owned by run alone.
func (idx *prefixIndex) evict(run *TokenRun) {
	node := idx.root
	for _, tok := range run.Tokens {
		child, ok := node.children[tok]
		if !ok {
			return
		}
		child.refs--
		if child.refs == 0 {
			delete(node.children, tok)
			idx.size -= countNodes(child)
			return
		}
		node = child
	}
}

func countNodes(n *prefixNode) int {
	total := 1
	for _, c := range n.children {
		total += countNodes(c)
	}
	return total
}

// longest walks tokens down the trie and returns the matched depth and the
// most recent run through the deepest node. ok is false when the walk met a
// node whose latest run is outside the view; the caller must then fall back
// to a scan.
func (idx *prefixIndex) longest(view PoolView, tokens []int) (depth int, source *TokenRun, ok bool) {
	node := idx.root
	for _, tok := range tokens {
		child, exists := node.children[tok]
		if !exists {
			break
		}
		if !view.Visible(child.latest) {
			return 0, nil, false
		}
		depth++
		source = child.latest
		node = child
	}
	return depth, source, true
}
