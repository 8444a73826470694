package doctree

// BuildTree nests a flat outline into a DocTree using each entry's level.
// Entries keep their relative order; an entry becomes a child of the closest
// preceding entry with a lower level.
func BuildTree(title string, outline []TOCEntry) *DocTree {
	tree := &DocTree{Title: title}

	type stackEntry struct {
		node  *DocNode
		level int
	}
	root := &DocNode{Title: title}
	// Root sits at -1 so that level 0 entries nest under it.
	stack := []stackEntry{{node: root, level: -1}}

	for _, e := range outline {
		newNode := &DocNode{Title: e.Title, Page: e.PageIndex + 1}

		for len(stack) > 1 && stack[len(stack)-1].level >= e.Level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, newNode)
		stack = append(stack, stackEntry{node: newNode, level: e.Level})
	}

	tree.Children = root.Children
	return tree
}

// Walk visits every node in pre-order with its depth.
func (t *DocTree) Walk(fn func(n *DocNode, depth int)) {
	var walk func(nodes []*DocNode, depth int)
	walk = func(nodes []*DocNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(t.Children, 0)
}
