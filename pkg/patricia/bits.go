package patricia

import "math/bits"

// testBit reports whether bit index b (0-based from the MSB) is set in
// addr. b must be less than len(addr)*8.
func testBit(addr []byte, b int) bool {
	return addr[b>>3]&(0x80>>uint(b&7)) != 0
}

// differBit returns the index of the first bit at which a and b diverge,
// scanning no further than maxBit bits. If no divergence is found within
// maxBit bits, it returns maxBit.
func differBit(a, b []byte, maxBit int) int {
	checkBytes := maxBit >> 3
	for i := 0; i < checkBytes; i++ {
		if a[i] != b[i] {
			return i*8 + bits.LeadingZeros8(a[i]^b[i])
		}
	}
	// Remaining bits in the partial byte, if maxBit isn't byte-aligned.
	if rem := maxBit & 7; rem != 0 {
		x := a[checkBytes] ^ b[checkBytes]
		if lz := bits.LeadingZeros8(x); lz < rem {
			return checkBytes*8 + lz
		}
	}
	return maxBit
}
