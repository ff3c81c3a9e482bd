// SPDX-License-Identifier: MIT
package analysis

// Envelope is a per-bin peak follower: it jumps to a louder value at once
// and otherwise decays exponentially toward the raw spectrum.
type Envelope struct {
	decay float64
	bins  []float64
}

// NewEnvelope returns a zeroed envelope of n bins. decay is the fraction of
// the previous value kept per update and must lie in [0, 1).
func NewEnvelope(n int, decay float64) *Envelope {
	return &Envelope{
		decay: decay,
		bins:  make([]float64, n),
	}
}

// Update folds a raw spectrum into the envelope:
//
//	env[i] = max(env[i]*decay + raw[i]*(1-decay), raw[i])
//
// Bins beyond the shorter of the two slices are left untouched.
func (e *Envelope) Update(raw []float64) {
	k := e.decay
	n := min(len(raw), len(e.bins))
	for i := 0; i < n; i++ {
		e.bins[i] = max(e.bins[i]*k+raw[i]*(1-k), raw[i])
	}
}

// Bins returns the envelope values. The slice is owned by the Envelope.
func (e *Envelope) Bins() []float64 { return e.bins }

func (e *Envelope) Decay() float64 { return e.decay }
