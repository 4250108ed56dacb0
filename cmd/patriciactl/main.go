// Command patriciactl exercises pkg/patricia from the command line: build
// a trie from CIDRs given as arguments, then run one query against it.
package main

import (
	"flag"
	"fmt"
	"net/netip"
	"os"

	"github.com/ipradix/ipradix/pkg/patricia"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "exact", "best", "worst", "covering", "covered", "intersect":
		err = runQuery(cmd, args)
	case "iterate":
		err = runIterate(args)
	case "insert":
		err = runInsert(args)
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "patriciactl: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "patriciactl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: patriciactl <command> [flags] <prefixes...>

commands:
  insert    <prefix> [prefix...]            build a trie and print its size
  exact     <query> <prefix> [prefix...]    exact match
  best      <query> <prefix> [prefix...]    longest-prefix match
  worst     <query> <prefix> [prefix...]    shortest-prefix match
  covering  <query> <prefix> [prefix...]    every stored prefix covering the query
  covered   <query> <prefix> [prefix...]    every stored prefix the query covers
  intersect <query> <prefix> [prefix...]    union of covering and covered
  iterate   <prefix> [prefix...]            list every stored prefix`)
}

// buildTree inserts every CIDR literal in args into a fresh Tree.
func buildTree(args []string) (*patricia.Tree, error) {
	tree := patricia.New()
	for _, a := range args {
		p, err := parsePrefix(a)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", a, err)
		}
		if _, err := tree.Lookup(p); err != nil {
			return nil, fmt.Errorf("inserting %q: %w", a, err)
		}
	}
	return tree, nil
}

// parsePrefix converts a CIDR literal (the address-parsing collaborator
// spec.md §1 scopes out of the core) into a patricia.Prefix.
func parsePrefix(s string) (patricia.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return patricia.Prefix{}, err
	}
	family := patricia.FamilyV4
	addr := p.Addr()
	var raw []byte
	if addr.Is4() {
		a := addr.As4()
		raw = a[:]
	} else {
		family = patricia.FamilyV6
		a := addr.As16()
		raw = a[:]
	}
	return patricia.NewPrefix(family, raw, p.Bits())
}

func runInsert(args []string) error {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	tree, err := buildTree(fs.Args())
	if err != nil {
		return err
	}
	fmt.Printf("inserted %d prefixes, %d active nodes\n", len(fs.Args()), tree.ActiveNodes())
	return nil
}

func runIterate(args []string) error {
	fs := flag.NewFlagSet("iterate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	tree, err := buildTree(fs.Args())
	if err != nil {
		return err
	}
	it := tree.Iterator()
	for {
		n, err := it.Next()
		if err != nil {
			return err
		}
		if n == nil {
			return nil
		}
		fmt.Println(n.Prefix())
	}
}

func runQuery(cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	inclusive := fs.Bool("inclusive", true, "treat an exact match at the query's own bitlen as eligible")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 1 {
		return fmt.Errorf("%s requires a query prefix", cmd)
	}

	query, err := parsePrefix(rest[0])
	if err != nil {
		return fmt.Errorf("parsing query %q: %w", rest[0], err)
	}
	tree, err := buildTree(rest[1:])
	if err != nil {
		return err
	}

	switch cmd {
	case "exact":
		printNode(tree.SearchExact(query))
	case "best":
		printNode(tree.SearchBest(query, *inclusive))
	case "worst":
		printNode(tree.SearchWorst(query, *inclusive))
	case "covering":
		tree.SearchCovering(query, printNodeCB)
	case "covered":
		tree.SearchCovered(query, *inclusive, printNodeCB)
	case "intersect":
		tree.SearchIntersect(query, printNodeCB)
	}
	return nil
}

func printNode(n *patricia.Node) {
	if n == nil {
		fmt.Println("(no match)")
		return
	}
	fmt.Println(n.Prefix())
}

func printNodeCB(n *patricia.Node) int {
	fmt.Println(n.Prefix())
	return 0
}
