// SPDX-License-Identifier: MIT
package analysis

import "math"

// BinWidth returns the spacing between spectrum bins in Hz.
func BinWidth(sampleRate float64, frameSize int) float64 {
	return (sampleRate / 2) / float64(frameSize/2)
}

// MaxDisplayBin returns how many low-frequency bins cover [0, maxHz]. The
// result is clamped to [1, frameSize/2].
func MaxDisplayBin(sampleRate float64, frameSize int, maxHz float64) int {
	half := frameSize / 2
	if half < 1 || sampleRate <= 0 {
		return 1
	}

	// Clamp in float64: huge or infinite ceilings overflow int.
	bins := math.Floor(maxHz / BinWidth(sampleRate, frameSize))
	switch {
	case bins >= float64(half):
		return half
	case bins >= 1:
		return int(bins)
	default:
		return 1 // also NaN
	}
}

// AxisTicks returns n+1 evenly spaced frequencies from 0 Hz to the upper
// edge of the displayed range (maxBin bins), so axis labels always match
// the bins that are drawn.
func AxisTicks(maxBin int, sampleRate float64, frameSize, n int) []float64 {
	if n < 1 {
		n = 1
	}

	top := float64(maxBin) * BinWidth(sampleRate, frameSize)
	ticks := make([]float64, n+1)
	for i := range ticks {
		ticks[i] = top * float64(i) / float64(n)
	}
	return ticks
}
