// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-two helpers used to size analysis
frames and the capture handoff ring.

Both functions are branch-light, allocation free and safe to call from the
real-time capture path.

	frameSize := 2048
	if !bitint.IsPowerOfTwo(frameSize) { ... }

	ringSize := bitint.NextPowerOfTwo(48000) // 65536

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves:

	size = 8  -> size-1 = 0b0111 -> bits.Len = 3 -> 1<<3 = 8
	size = 9  -> size-1 = 0b1000 -> bits.Len = 4 -> 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Zero and
// negative sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. Powers of two
// have a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns the base-2 logarithm of a power of two. The result is
// undefined for other inputs.
func Log2(n int) int {
	return bits.TrailingZeros(uint(n))
}
