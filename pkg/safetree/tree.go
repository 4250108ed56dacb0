// Package safetree wraps pkg/patricia.Tree with the external read/write
// discipline the core explicitly does not provide itself: lock-free reads
// against an immutable snapshot, and a mutex serializing writers, with
// whole-tree replacement for bulk reloads.
package safetree

import (
	"sync"
	"sync/atomic"

	"github.com/ipradix/ipradix/pkg/patricia"
)

// snapshot holds an immutable *patricia.Tree alongside the node count
// observed when it was published, so Count is a lock-free read too.
type snapshot struct {
	tree  *patricia.Tree
	count int
}

// Tree provides thread-safe access to a patricia.Tree: lock-free reads via
// an atomically-swapped snapshot, and mutex-serialized writes. It is the
// answer to spec.md §5's "concurrent readers are permissible only under an
// external read-write lock" — this type is that lock.
type Tree struct {
	data  atomic.Value // holds *snapshot
	mu    sync.Mutex
	inner *patricia.Tree
}

// New returns an empty, ready-to-use Tree.
func New() *Tree {
	inner := patricia.New()
	t := &Tree{inner: inner}
	t.data.Store(&snapshot{tree: inner, count: 0})
	return t
}

func (t *Tree) current() *snapshot {
	return t.data.Load().(*snapshot)
}

// Lookup inserts p if absent and returns its node, serialized against
// other writers by an internal mutex. Readers never block on this call;
// they keep observing the pre-insert snapshot until it completes.
func (t *Tree) Lookup(p patricia.Prefix) (*patricia.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.inner.Lookup(p)
	if err != nil {
		return nil, err
	}
	t.data.Store(&snapshot{tree: t.inner, count: t.inner.ActiveNodes()})
	return n, nil
}

// Remove removes node, serialized against other writers.
func (t *Tree) Remove(node *patricia.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.inner.Remove(node); err != nil {
		return err
	}
	t.data.Store(&snapshot{tree: t.inner, count: t.inner.ActiveNodes()})
	return nil
}

// Replace atomically swaps the entire underlying tree for fresh, blocking
// writers only for the duration of the swap itself. Readers in flight keep
// using the snapshot they already loaded. This is how pkg/feed installs a
// freshly rebuilt tree after a successful fetch.
func (t *Tree) Replace(fresh *patricia.Tree) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inner = fresh
	t.data.Store(&snapshot{tree: fresh, count: fresh.ActiveNodes()})
}

// Count returns the number of active nodes in the current snapshot,
// lock-free.
func (t *Tree) Count() int {
	return t.current().count
}

// SearchExact performs a lock-free exact lookup against the current
// snapshot.
func (t *Tree) SearchExact(p patricia.Prefix) *patricia.Node {
	return t.current().tree.SearchExact(p)
}

// SearchBest performs a lock-free longest-prefix-match against the current
// snapshot.
func (t *Tree) SearchBest(p patricia.Prefix, inclusive bool) *patricia.Node {
	return t.current().tree.SearchBest(p, inclusive)
}

// SearchWorst performs a lock-free shortest-prefix-match against the
// current snapshot.
func (t *Tree) SearchWorst(p patricia.Prefix, inclusive bool) *patricia.Node {
	return t.current().tree.SearchWorst(p, inclusive)
}

// SearchCovering invokes cb for every stored prefix covering p, lock-free
// against the current snapshot.
func (t *Tree) SearchCovering(p patricia.Prefix, cb func(*patricia.Node) int) int {
	return t.current().tree.SearchCovering(p, cb)
}

// SearchCovered invokes cb for every stored prefix p covers, lock-free
// against the current snapshot.
func (t *Tree) SearchCovered(p patricia.Prefix, inclusive bool, cb func(*patricia.Node) int) int {
	return t.current().tree.SearchCovered(p, inclusive, cb)
}

// Iterator returns an Iterator over the current snapshot. Because
// snapshots are never mutated in place (writers always publish a new
// *patricia.Tree or rely on the generation counter), an iterator obtained
// this way is safe to drain even while concurrent writers run — it simply
// never observes their effect.
func (t *Tree) Iterator() *patricia.Iterator {
	return t.current().tree.Iterator()
}
