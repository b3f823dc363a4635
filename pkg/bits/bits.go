// Package bits reads and writes the bit fields of CLA, INS, P1-P2 and SW bytes.
// Bits are numbered b8 (most significant) to b1, as in ISO/IEC 7816-4.
package bits

// Bit returns the mask of bit n, or 0 when n is not in 1..8.
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet reports whether bit n of b is 1.
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// Set returns b with bit n forced to 1.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Clear returns b with bit n forced to 0.
func Clear(b byte, n uint) byte {
	return b &^ Bit(n)
}

// GetRange returns bits high..low of b, shifted down to b1.
// GetRange(0x0C, 4, 3) is 3.
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}
	mask := byte(1<<(high-low+1) - 1)
	return (b >> (low - 1)) & mask
}

// HighNibble returns b8-b5.
func HighNibble(b byte) byte {
	return b >> 4
}

// LowNibble returns b4-b1.
func LowNibble(b byte) byte {
	return b & 0x0F
}

// Pack joins two nibbles into a byte.
func Pack(high, low byte) byte {
	return high<<4 | low&0x0F
}

// SwapNibbles exchanges both halves of b: 0x19 becomes 0x91.
// It turns a swapped-BCD byte (3GPP TS 31.102) into reading order.
func SwapNibbles(b byte) byte {
	return Pack(LowNibble(b), HighNibble(b))
}
