package patricia

import (
	"fmt"
	"testing"
)

func v4(t *testing.T, s string, bitlen int) Prefix {
	t.Helper()
	var addr [4]byte
	parseV4(t, s, &addr)
	return mustPrefix(t, FamilyV4, addr[:], bitlen)
}

func v6(t *testing.T, addr []byte, bitlen int) Prefix {
	t.Helper()
	return mustPrefix(t, FamilyV6, addr, bitlen)
}

// parseV4 avoids pulling in net/netip for a handful of dotted-quad literals
// in test tables.
func parseV4(t *testing.T, s string, out *[4]byte) {
	t.Helper()
	var a, b, c, d int
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		t.Fatalf("bad test literal %q: %v", s, err)
	}
	out[0], out[1], out[2], out[3] = byte(a), byte(b), byte(c), byte(d)
}

func TestLookupIsIdempotent(t *testing.T) {
	tree := New()
	p := v4(t, "10.0.0.0", 8)

	n1, err := tree.Lookup(p)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if tree.ActiveNodes() != 1 {
		t.Fatalf("ActiveNodes = %d, want 1", tree.ActiveNodes())
	}

	n2, err := tree.Lookup(p)
	if err != nil {
		t.Fatalf("Lookup (again): %v", err)
	}
	if n1 != n2 {
		t.Fatal("second Lookup of the same prefix returned a different node")
	}
	if tree.ActiveNodes() != 1 {
		t.Fatalf("ActiveNodes after repeat Lookup = %d, want 1", tree.ActiveNodes())
	}
}

func TestLookupExactRoundTrip(t *testing.T) {
	tree := New()
	prefixes := []Prefix{
		v4(t, "10.0.0.0", 8),
		v4(t, "10.1.0.0", 16),
		v4(t, "10.1.2.0", 24),
		v4(t, "192.168.0.0", 16),
		v4(t, "0.0.0.0", 0),
	}
	for _, p := range prefixes {
		if _, err := tree.Lookup(p); err != nil {
			t.Fatalf("Lookup(%s): %v", p, err)
		}
	}
	for _, p := range prefixes {
		n := tree.SearchExact(p)
		if n == nil {
			t.Fatalf("SearchExact(%s) = nil, want a node", p)
		}
		if !n.Prefix().Equal(p) {
			t.Fatalf("SearchExact(%s).Prefix() = %s", p, n.Prefix())
		}
		if !n.IsReal() {
			t.Fatalf("SearchExact(%s) returned a non-real node", p)
		}
	}
}

func TestSearchExactMissesNonStoredPrefix(t *testing.T) {
	tree := New()
	mustLookup(t, tree, v4(t, "10.0.0.0", 8))

	if n := tree.SearchExact(v4(t, "10.0.0.0", 16)); n != nil {
		t.Fatalf("SearchExact for a narrower unstored prefix = %v, want nil", n)
	}
	if n := tree.SearchExact(v4(t, "11.0.0.0", 8)); n != nil {
		t.Fatalf("SearchExact for a disjoint prefix = %v, want nil", n)
	}
}

func mustLookup(t *testing.T, tree *Tree, p Prefix) *Node {
	t.Helper()
	n, err := tree.Lookup(p)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", p, err)
	}
	return n
}

// TestBestWorstMatch is spec.md §8 scenario 1: 10.0.0.0/8 and 10.1.0.0/16
// both stored, best match for 10.1.2.3/32 is the /16, worst match is the /8.
func TestBestWorstMatch(t *testing.T) {
	tree := New()
	mustLookup(t, tree, v4(t, "10.0.0.0", 8))
	mustLookup(t, tree, v4(t, "10.1.0.0", 16))

	query := v4(t, "10.1.2.3", 32)

	best := tree.SearchBest(query, true)
	if best == nil || best.Prefix().Bitlen() != 16 {
		t.Fatalf("SearchBest = %v, want the /16", best)
	}

	worst := tree.SearchWorst(query, true)
	if worst == nil || worst.Prefix().Bitlen() != 8 {
		t.Fatalf("SearchWorst = %v, want the /8", worst)
	}
}

func TestBestMatchExcludesSelfWhenNotInclusive(t *testing.T) {
	tree := New()
	mustLookup(t, tree, v4(t, "10.0.0.0", 8))
	mustLookup(t, tree, v4(t, "10.1.0.0", 16))

	query := v4(t, "10.1.0.0", 16)

	inclusive := tree.SearchBest(query, true)
	if inclusive == nil || inclusive.Prefix().Bitlen() != 16 {
		t.Fatalf("inclusive SearchBest = %v, want the /16 itself", inclusive)
	}

	exclusive := tree.SearchBest(query, false)
	if exclusive == nil || exclusive.Prefix().Bitlen() != 8 {
		t.Fatalf("exclusive SearchBest = %v, want the /8", exclusive)
	}
}

// TestIterationCoversDefaultRoutes is spec.md §8 scenario 2: inserting the
// v4 and v6 default routes and iterating visits both exactly once.
func TestIterationCoversDefaultRoutes(t *testing.T) {
	tree := New()
	mustLookup(t, tree, v4(t, "0.0.0.0", 0))
	mustLookup(t, tree, v6(t, make([]byte, 16), 0))

	seen := map[string]int{}
	it := tree.Iterator()
	for {
		n, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if n == nil {
			break
		}
		seen[n.Prefix().String()]++
	}
	if len(seen) != 2 {
		t.Fatalf("iterated %d distinct prefixes, want 2: %v", len(seen), seen)
	}
	for k, c := range seen {
		if c != 1 {
			t.Fatalf("prefix %s visited %d times, want 1", k, c)
		}
	}
}

// TestSearchCoveredEnumeratesSubnets is spec.md §8 scenario 3: covered
// search under a /32 v6 supernet returns every stored subnet of it.
func TestSearchCoveredEnumeratesSubnets(t *testing.T) {
	tree := New()
	base := []byte{0x20, 0x01, 0x0d, 0xb8}
	addrA := append(append([]byte{}, base...), make([]byte, 12)...)
	addrB := append(append([]byte{}, base...), byte(1))
	addrB = append(addrB, make([]byte, 11)...)
	outside := []byte{0x20, 0x01, 0x0d, 0xb9}
	addrC := append(append([]byte{}, outside...), make([]byte, 12)...)

	subA := v6(t, addrA, 48)
	subB := v6(t, addrB, 64)
	other := v6(t, addrC, 48)

	mustLookup(t, tree, subA)
	mustLookup(t, tree, subB)
	mustLookup(t, tree, other)

	super := v6(t, addrA, 32)

	var got []Prefix
	tree.SearchCovered(super, true, func(n *Node) int {
		got = append(got, n.Prefix())
		return 0
	})

	if len(got) != 2 {
		t.Fatalf("SearchCovered returned %d nodes, want 2: %v", len(got), got)
	}
	foundA, foundB := false, false
	for _, p := range got {
		if p.Equal(subA) {
			foundA = true
		}
		if p.Equal(subB) {
			foundB = true
		}
		if p.Equal(other) {
			t.Fatalf("SearchCovered returned disjoint prefix %s", p)
		}
	}
	if !foundA || !foundB {
		t.Fatalf("SearchCovered missing expected subnets, got %v", got)
	}
}

// TestDeleteThenExactMiss is spec.md §8 scenario 4.
func TestDeleteThenExactMiss(t *testing.T) {
	tree := New()
	n := mustLookup(t, tree, v4(t, "10.1.0.0", 16))

	if err := tree.Remove(n); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := tree.SearchExact(v4(t, "10.1.0.0", 16)); got != nil {
		t.Fatalf("SearchExact after Remove = %v, want nil", got)
	}
}

// TestGlueCollapseOnDelete is spec.md §8 scenario 5: two sibling prefixes
// force a glue node into existence; deleting one collapses the glue away
// and the survivor takes its place directly under the glue's parent slot.
func TestGlueCollapseOnDelete(t *testing.T) {
	tree := New()
	a := mustLookup(t, tree, v4(t, "10.0.0.0", 8))
	b := mustLookup(t, tree, v4(t, "172.16.0.0", 12))

	if tree.ActiveNodes() != 3 {
		t.Fatalf("ActiveNodes = %d, want 3 (two real + one glue)", tree.ActiveNodes())
	}

	if err := tree.Remove(b); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if tree.ActiveNodes() != 1 {
		t.Fatalf("ActiveNodes after collapsing Remove = %d, want 1", tree.ActiveNodes())
	}
	if got := tree.SearchExact(v4(t, "10.0.0.0", 8)); got != a {
		t.Fatalf("SearchExact(10.0.0.0/8) = %v, want the surviving node %v", got, a)
	}
}

// TestIteratorDetectsConcurrentModification is spec.md §8 scenario 6.
func TestIteratorDetectsConcurrentModification(t *testing.T) {
	tree := New()
	mustLookup(t, tree, v4(t, "10.0.0.0", 8))

	it := tree.Iterator()
	if _, err := tree.Lookup(v4(t, "11.0.0.0", 8)); err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	_, err := it.Next()
	if err != ErrConcurrentModification {
		t.Fatalf("Next after mutation = %v, want ErrConcurrentModification", err)
	}
	// Once failed, stays failed.
	if _, err := it.Next(); err != ErrConcurrentModification {
		t.Fatalf("Next after failure = %v, want still ErrConcurrentModification", err)
	}
}

func TestRemoveRejectsGlueAndNil(t *testing.T) {
	tree := New()
	mustLookup(t, tree, v4(t, "10.0.0.0", 8))
	mustLookup(t, tree, v4(t, "172.16.0.0", 12))

	// Find the glue node by walking from head: it is the node whose real
	// flag is false.
	var glue *Node
	for n := tree.Head(FamilyV4); n != nil; {
		if !n.IsReal() {
			glue = n
			break
		}
		n = n.Left()
	}
	if glue == nil {
		t.Fatal("expected a glue node in the fixture tree")
	}
	if err := tree.Remove(glue); err != ErrNotFound {
		t.Fatalf("Remove(glue) = %v, want ErrNotFound", err)
	}
	if err := tree.Remove(nil); err != ErrNotFound {
		t.Fatalf("Remove(nil) = %v, want ErrNotFound", err)
	}
}

func TestActiveNodesTracksNestedInsertAndRemove(t *testing.T) {
	tree := New()
	a := mustLookup(t, tree, v4(t, "10.0.0.0", 8))
	if tree.ActiveNodes() != 1 {
		t.Fatalf("ActiveNodes = %d, want 1", tree.ActiveNodes())
	}
	b := mustLookup(t, tree, v4(t, "10.1.0.0", 16))
	if tree.ActiveNodes() != 2 {
		t.Fatalf("ActiveNodes after nested insert = %d, want 2 (no glue needed)", tree.ActiveNodes())
	}
	_ = a
	if err := tree.Remove(b); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if tree.ActiveNodes() != 1 {
		t.Fatalf("ActiveNodes after Remove = %d, want 1", tree.ActiveNodes())
	}
}

func TestV4AndV6AreDisjoint(t *testing.T) {
	tree := New()
	mustLookup(t, tree, v4(t, "0.0.0.0", 0))
	if tree.Head(FamilyV6) != nil {
		t.Fatal("inserting a v4 prefix must not populate the v6 head")
	}
}
