package patricia

import "errors"

// Sentinel errors surfaced by the trie. All are recoverable at the call
// site; none leave the tree in an inconsistent state.
var (
	// ErrInvalidPrefixLength is returned when bitlen is out of range for
	// the prefix's family (0-32 for v4, 0-128 for v6).
	ErrInvalidPrefixLength = errors.New("patricia: invalid prefix length for family")

	// ErrUnsupportedFamily is returned when a Family value is neither
	// FamilyV4 nor FamilyV6.
	ErrUnsupportedFamily = errors.New("patricia: unsupported address family")

	// ErrNotFound is returned by operations that look up an existing
	// prefix that isn't present.
	ErrNotFound = errors.New("patricia: prefix not found")

	// ErrConcurrentModification is returned by Iterator.Next when the
	// tree's generation has advanced since the iterator was created.
	ErrConcurrentModification = errors.New("patricia: tree modified during iteration")
)
