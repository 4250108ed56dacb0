package main

import "testing"

func TestParsePrefixV4(t *testing.T) {
	p, err := parsePrefix("10.1.0.0/16")
	if err != nil {
		t.Fatalf("parsePrefix: %v", err)
	}
	if p.Bitlen() != 16 {
		t.Fatalf("Bitlen() = %d, want 16", p.Bitlen())
	}
}

func TestParsePrefixV6(t *testing.T) {
	p, err := parsePrefix("2001:db8::/32")
	if err != nil {
		t.Fatalf("parsePrefix: %v", err)
	}
	if p.Bitlen() != 32 {
		t.Fatalf("Bitlen() = %d, want 32", p.Bitlen())
	}
}

func TestParsePrefixRejectsGarbage(t *testing.T) {
	if _, err := parsePrefix("not-a-cidr"); err == nil {
		t.Fatal("parsePrefix(garbage) returned nil error")
	}
}

func TestBuildTree(t *testing.T) {
	tree, err := buildTree([]string{"10.0.0.0/8", "10.1.0.0/16", "192.168.0.0/16"})
	if err != nil {
		t.Fatalf("buildTree: %v", err)
	}
	if tree.ActiveNodes() != 4 {
		t.Fatalf("ActiveNodes() = %d, want 4 (three real + one glue)", tree.ActiveNodes())
	}
}

func TestBuildTreeRejectsBadCIDR(t *testing.T) {
	if _, err := buildTree([]string{"garbage"}); err == nil {
		t.Fatal("buildTree with a bad literal returned nil error")
	}
}

func TestRunQueryBest(t *testing.T) {
	err := runQuery("best", []string{"10.1.2.3/32", "10.0.0.0/8", "10.1.0.0/16"})
	if err != nil {
		t.Fatalf("runQuery(best): %v", err)
	}
}

func TestRunQueryRequiresQueryArgument(t *testing.T) {
	if err := runQuery("best", nil); err == nil {
		t.Fatal("runQuery with no query argument returned nil error")
	}
}
