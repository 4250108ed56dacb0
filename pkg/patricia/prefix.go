package patricia

import "fmt"

// Family identifies the address family a Prefix belongs to.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// maxBits returns the address width in bits for the family.
func (f Family) maxBits() int {
	if f == FamilyV4 {
		return 32
	}
	return 128
}

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "v4"
	case FamilyV6:
		return "v6"
	default:
		return fmt.Sprintf("Family(%d)", f)
	}
}

// Prefix is an immutable-valued (family, address, bitlen) tuple. It is a
// small value type, cheaply copied, and is the sole unit of currency the
// trie core deals in — there is no separate refcounted representation in
// this implementation (see DESIGN.md: Go value-copy semantics are the
// prescribed equivalent to the source's refcounted prefix_t).
//
// The address is always stored in a 16-byte array regardless of family;
// v4 addresses occupy the first 4 bytes. Bits beyond Bitlen are always
// zero.
type Prefix struct {
	family Family
	bitlen uint8
	addr   [16]byte
}

// addrLen is the number of significant address bytes for the family.
func (f Family) addrLen() int {
	if f == FamilyV4 {
		return 4
	}
	return 16
}

// NewPrefix builds a Prefix from a family, raw address bytes (network byte
// order, MSB first, length 4 for v4 / 16 for v6), and a bit length. Bits
// beyond bitlen are masked to zero, matching the source's sanitise_mask.
func NewPrefix(family Family, addr []byte, bitlen int) (Prefix, error) {
	if family != FamilyV4 && family != FamilyV6 {
		return Prefix{}, ErrUnsupportedFamily
	}
	if bitlen < 0 || bitlen > family.maxBits() {
		return Prefix{}, ErrInvalidPrefixLength
	}
	want := family.addrLen()
	if len(addr) != want {
		return Prefix{}, fmt.Errorf("patricia: address must be %d bytes for family %s, got %d", want, family, len(addr))
	}

	p := Prefix{family: family, bitlen: uint8(bitlen)} //nolint:gosec // bitlen <= 128, fits uint8
	copy(p.addr[:want], addr)
	p.mask()
	return p, nil
}

// mask zeroes every bit beyond p.bitlen, matching sanitise_mask in the
// source.
func (p *Prefix) mask() {
	bitlen := int(p.bitlen)
	full := bitlen >> 3
	for i := full; i < 16; i++ {
		p.addr[i] = 0
	}
	if rem := bitlen & 7; rem != 0 && full < 16 {
		p.addr[full] &= ^byte(0xFF >> uint(rem))
	}
}

// Family returns the prefix's address family.
func (p Prefix) Family() Family { return p.family }

// Bitlen returns the prefix length in bits.
func (p Prefix) Bitlen() int { return int(p.bitlen) }

// Bytes returns the prefix's address bytes (4 for v4, 16 for v6), network
// byte order, bits beyond Bitlen zeroed. The returned slice is a copy.
func (p Prefix) Bytes() []byte {
	n := p.family.addrLen()
	out := make([]byte, n)
	copy(out, p.addr[:n])
	return out
}

// rawBytes returns the internal address bytes without copying, sized to
// the family's address length. Callers must not mutate the result.
func (p Prefix) rawBytes() []byte {
	return p.addr[:p.family.addrLen()]
}

// Equal reports whether two prefixes have the same family, bitlen, and
// address bits (over the first Bitlen bits — trailing bits are always
// zeroed by construction, so a plain byte comparison suffices).
func (p Prefix) Equal(other Prefix) bool {
	if p.family != other.family || p.bitlen != other.bitlen {
		return false
	}
	n := p.family.addrLen()
	return string(p.addr[:n]) == string(other.addr[:n])
}

// Contains reports whether p, viewed as a network, contains other — i.e.
// other's bitlen is at least as long as p's and they agree over p's
// first Bitlen bits.
func (p Prefix) Contains(other Prefix) bool {
	if p.family != other.family || p.bitlen > other.bitlen {
		return false
	}
	return compareWithMask(p.rawBytes(), other.rawBytes(), int(p.bitlen))
}

// String renders the prefix in CIDR-ish notation for logging and test
// failure messages; it is not a substitute for the address-parsing
// collaborator's textual form.
func (p Prefix) String() string {
	n := p.family.addrLen()
	if p.family == FamilyV4 {
		return fmt.Sprintf("%d.%d.%d.%d/%d", p.addr[0], p.addr[1], p.addr[2], p.addr[3], p.bitlen)
	}
	return fmt.Sprintf("%x/%d", p.addr[:n], p.bitlen)
}

// compareWithMask reports whether a and b agree over the first maskBits
// bits, matching comp_with_mask in the source.
func compareWithMask(a, b []byte, maskBits int) bool {
	full := maskBits >> 3
	for i := 0; i < full; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	if rem := maskBits & 7; rem != 0 {
		m := ^byte(0xFF >> uint(rem))
		if a[full]&m != b[full]&m {
			return false
		}
	}
	return true
}
