package patricia

// Iterator performs a pre-order depth-first walk over both family
// subtrees (v4 first, then v6), yielding every real node whether or not
// it carries Data; glue nodes are traversed but never emitted. An Iterator
// captures the tree's generation at construction — any structural
// mutation of the tree after that point (an insert that allocates or
// materializes a node, or a delete) causes the next Next call to fail
// with ErrConcurrentModification, after which the iterator is terminal.
type Iterator struct {
	tree       *Tree
	generation uint64
	stack      []*Node
	family     Family
	done       bool
	failed     bool
}

// Iterator returns a new Iterator over t's current contents.
func (t *Tree) Iterator() *Iterator {
	it := &Iterator{tree: t, generation: t.generation, family: FamilyV4}
	it.pushSubtree(t.head4)
	return it
}

// pushSubtree seeds the stack with root so the next Next calls walk its
// subtree pre-order. The stack depth is bounded by maxBits+1 per family,
// matching spec.md §4.5.
func (it *Iterator) pushSubtree(root *Node) {
	if root != nil {
		it.stack = append(it.stack, root)
	}
}

// Next returns the next real node, or (nil, nil) once both
// subtrees are exhausted. It returns ErrConcurrentModification if the
// tree has been structurally mutated since the iterator was created; the
// iterator returns that error on every subsequent call too.
func (it *Iterator) Next() (*Node, error) {
	if it.failed {
		return nil, ErrConcurrentModification
	}
	if it.done {
		return nil, nil
	}
	if it.generation != it.tree.generation {
		it.failed = true
		return nil, ErrConcurrentModification
	}

	for {
		for len(it.stack) > 0 {
			n := it.stack[len(it.stack)-1]
			it.stack = it.stack[:len(it.stack)-1]

			if n.right != nil {
				it.stack = append(it.stack, n.right)
			}
			if n.left != nil {
				it.stack = append(it.stack, n.left)
			}

			if n.real {
				return n, nil
			}
		}

		if it.family == FamilyV4 {
			it.family = FamilyV6
			it.pushSubtree(it.tree.head6)
			continue
		}

		it.done = true
		return nil, nil
	}
}
