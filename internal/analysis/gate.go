// SPDX-License-Identifier: MIT
package analysis

import "math"

// Gate is a frame-level noise gate. A frame whose peak absolute amplitude is
// at or below the threshold is treated as silence.
type Gate struct {
	threshold float32
}

// NewGate returns a gate with the given threshold, clamped to [0, 1].
// A zero threshold keeps the gate permanently open.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold adjusts the gate threshold. The value is in the range of
// 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold = float32(threshold)
}

// Threshold returns the current threshold in the range 0.0-1.0.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold)
}

// Enabled reports whether the gate can ever close.
func (g *Gate) Enabled() bool {
	return g.threshold > 0
}

// Open reports whether any sample in frame exceeds the threshold.
func (g *Gate) Open(frame []float32) bool {
	if g.threshold <= 0 {
		return true
	}
	for _, s := range frame {
		// Clear the sign bit for a branchless absolute value.
		if math.Float32frombits(math.Float32bits(s)&^(1<<31)) > g.threshold {
			return true
		}
	}
	return false
}
