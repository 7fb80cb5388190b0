package crush

// Tree buckets keep their weights in an implicit binary tree stored in a
// flat array. Leaf i lives at odd node ((i+1)<<1)-1, interior nodes sit at
// even indices, and the root of a tree of depth d is node 1<<(d-1). A node's
// height is its count of trailing zero bits.

func treeDepth(size int) int {
	if size == 0 {
		return 0
	}
	depth := 1
	for t := size - 1; t > 0; t >>= 1 {
		depth++
	}
	return depth
}

func treeNode(i int) int {
	return ((i + 1) << 1) - 1
}

func nodeHeight(n int) int {
	h := 0
	for n&1 == 0 {
		h++
		n >>= 1
	}
	return h
}

func onRight(n, h int) bool {
	return n&(1<<(h+1)) != 0
}

func parentNode(n int) int {
	h := nodeHeight(n)
	if onRight(n, h) {
		return n - (1 << h)
	}
	return n + (1 << h)
}

func treeRoot(nodeWeights []uint32) int {
	return len(nodeWeights) >> 1
}

// buildTree lays out leaf weights and fills every interior node with the
// sum of its subtree. The caller guarantees the total fits in a uint32.
func buildTree(weights []uint32) []uint32 {
	depth := treeDepth(len(weights))
	nodes := make([]uint32, 1<<depth)
	for i, w := range weights {
		node := treeNode(i)
		nodes[node] = w
		for j := 1; j < depth; j++ {
			node = parentNode(node)
			nodes[node] += w
		}
	}
	return nodes
}

func leafWeights(nodeWeights []uint32, size int) []uint32 {
	out := make([]uint32, size)
	for i := range out {
		out[i] = nodeWeights[treeNode(i)]
	}
	return out
}

// setLeaf replaces the weight of leaf i and walks the change up to the
// root. Interior nodes absorb the difference with modular arithmetic, which
// is exact whenever the final root value fits.
func setLeaf(nodeWeights []uint32, size, i int, w uint32) {
	node := treeNode(i)
	old := nodeWeights[node]
	nodeWeights[node] = w
	for j := 1; j < treeDepth(size); j++ {
		node = parentNode(node)
		nodeWeights[node] = nodeWeights[node] - old + w
	}
}
