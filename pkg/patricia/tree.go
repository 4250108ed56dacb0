package patricia

import "github.com/ipradix/ipradix/pkg/logger"

// Tree is a Patricia trie holding IPv4 and IPv6 prefixes in two disjoint
// subtrees. The zero value is not usable; construct with New.
//
// A Tree is single-writer: it performs no internal synchronization (see
// spec.md §5 / SPEC_FULL.md §5). Callers needing concurrent access should
// wrap a Tree the way pkg/safetree does.
type Tree struct {
	head4 *Node
	head6 *Node

	activeNodes int
	generation  uint64
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{}
}

// ActiveNodes returns the number of nodes currently in the tree, real and
// glue combined.
func (t *Tree) ActiveNodes() int { return t.activeNodes }

// headPtr returns the address of the root pointer for the given family,
// so insertion/deletion can rebind the root in place.
func (t *Tree) headPtr(f Family) **Node {
	if f == FamilyV4 {
		return &t.head4
	}
	return &t.head6
}

// Head returns the family's root node, or nil if the subtree is empty.
func (t *Tree) Head(f Family) *Node {
	return *t.headPtr(f)
}

func (t *Tree) bumpGeneration() {
	t.generation++
	logger.Tracef("patricia: structural mutation, generation=%d active_nodes=%d", t.generation, t.activeNodes)
}

// Destroy releases every node in the tree. If finalizer is non-nil, it is
// invoked once for every real node before the tree is emptied, mirroring
// the source's optional per-node callback on teardown so an external
// payload layer can release ownership of Data.
func (t *Tree) Destroy(finalizer func(*Node)) {
	if finalizer != nil {
		it := t.Iterator()
		for {
			n, err := it.Next()
			if err != nil || n == nil {
				break
			}
			finalizer(n)
		}
	}
	t.head4 = nil
	t.head6 = nil
	t.activeNodes = 0
	t.bumpGeneration()
}

// Lookup inserts prefix if absent and returns the real node for it,
// idempotently: looking up an already-present prefix returns the
// existing node unchanged. This implements spec.md §4.3's four insertion
// cases (empty root, exact-existing, new-below/new-above, fork).
func (t *Tree) Lookup(p Prefix) (*Node, error) {
	phead := t.headPtr(p.family)
	maxBits := p.family.maxBits()
	bitlen := p.Bitlen()
	addr := p.rawBytes()

	if *phead == nil {
		node := &Node{bit: bitlen, prefix: p, real: true}
		*phead = node
		t.activeNodes++
		t.bumpGeneration()
		logger.Tracef("patricia: inserted root node %s", p)
		return node, nil
	}

	node := *phead
	for node.bit < bitlen || !node.real {
		if node.bit < maxBits && testBit(addr, node.bit) {
			if node.right == nil {
				break
			}
			node = node.right
		} else {
			if node.left == nil {
				break
			}
			node = node.left
		}
	}

	testAddr := node.prefix.rawBytes()
	checkBit := node.bit
	if bitlen < checkBit {
		checkBit = bitlen
	}
	differ := differBit(addr, testAddr, checkBit)

	parent := node.parent
	for parent != nil && parent.bit >= differ {
		node = parent
		parent = node.parent
	}

	if differ == bitlen && node.bit == bitlen {
		if !node.real {
			node.prefix = p
			node.real = true
			t.bumpGeneration()
			logger.Tracef("patricia: materialized glue node into real node %s", p)
		}
		return node, nil
	}

	newNode := &Node{bit: bitlen, prefix: p, real: true}
	t.activeNodes++

	switch {
	case node.bit == differ:
		// New-below case: newNode becomes a child of node.
		newNode.parent = node
		if node.bit < maxBits && testBit(addr, node.bit) {
			node.right = newNode
		} else {
			node.left = newNode
		}
	case bitlen == differ:
		// New-above case: newNode becomes node's new parent.
		if bitlen < maxBits && testBit(testAddr, bitlen) {
			newNode.right = node
		} else {
			newNode.left = node
		}
		newNode.parent = node.parent
		t.relinkChild(phead, node, newNode)
		node.parent = newNode
	default:
		// Fork case: a glue node branches between node and newNode.
		glue := &Node{bit: differ}
		t.activeNodes++
		if differ < maxBits && testBit(addr, differ) {
			glue.right = newNode
			glue.left = node
		} else {
			glue.right = node
			glue.left = newNode
		}
		glue.parent = node.parent
		newNode.parent = glue
		t.relinkChild(phead, node, glue)
		node.parent = glue
	}

	t.bumpGeneration()
	logger.Tracef("patricia: inserted node %s", p)
	return newNode, nil
}

// relinkChild rebinds whichever slot used to point at old (a family root,
// or a parent's left/right child) to point at replacement instead.
func (t *Tree) relinkChild(phead **Node, old, replacement *Node) {
	parent := old.parent
	switch {
	case parent == nil:
		*phead = replacement
	case parent.right == old:
		parent.right = replacement
	default:
		parent.left = replacement
	}
}

// Remove removes node's prefix association from the tree. node must be a
// real node already returned by Lookup on this tree; passing a glue node
// or nil returns ErrNotFound. Removal may cascade: a glue node left with
// a single child after this removal is itself spliced out, per spec.md
// §4.4.
func (t *Tree) Remove(node *Node) error {
	if node == nil || !node.real {
		return ErrNotFound
	}
	phead := t.headPtr(node.prefix.family)

	if node.left != nil && node.right != nil {
		// Two children: demote to glue, keep the links.
		node.prefix = Prefix{}
		node.real = false
		node.data = nil
		t.bumpGeneration()
		return nil
	}

	if node.left == nil && node.right == nil {
		parent := node.parent
		t.activeNodes--
		if parent == nil {
			*phead = nil
			t.bumpGeneration()
			return nil
		}

		var sibling *Node
		if parent.right == node {
			parent.right = nil
			sibling = parent.left
		} else {
			parent.left = nil
			sibling = parent.right
		}

		if parent.real {
			t.bumpGeneration()
			return nil
		}

		// parent is glue: by construction it always had two children, so
		// sibling is non-nil here. Splice parent out.
		grandparent := parent.parent
		t.relinkChild(phead, parent, sibling)
		sibling.parent = grandparent
		t.activeNodes--
		t.bumpGeneration()
		return nil
	}

	// Exactly one child: it inherits node's slot.
	var child *Node
	if node.right != nil {
		child = node.right
	} else {
		child = node.left
	}
	child.parent = node.parent
	t.relinkChild(phead, node, child)
	t.activeNodes--
	t.bumpGeneration()
	return nil
}
