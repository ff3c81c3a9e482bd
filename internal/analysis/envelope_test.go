// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"
)

func TestEnvelopeAttackIsInstant(t *testing.T) {
	e := NewEnvelope(4, 0.95)
	raw := []float64{0, 0.5, 3, 100}

	e.Update(raw)
	for i, v := range e.Bins() {
		if v != raw[i] {
			t.Errorf("bin %d = %v, want %v after one update from zero", i, v, raw[i])
		}
	}
}

func TestEnvelopeDecayStep(t *testing.T) {
	e := NewEnvelope(1, 0.95)
	e.Update([]float64{1})
	e.Update([]float64{0})

	if got := e.Bins()[0]; math.Abs(got-0.95) > 1e-15 {
		t.Errorf("after one decay step = %v, want 0.95", got)
	}
}

func TestEnvelopeConvergesToConstantInput(t *testing.T) {
	tests := []struct {
		name  string
		decay float64
		start float64
		raw   float64
	}{
		{"default decay", 0.95, 10, 2},
		{"slow decay", 0.99, 1, 0},
		{"no smoothing", 0, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEnvelope(1, tt.decay)
			e.Update([]float64{tt.start})

			prev := tt.start
			for n := 1; n <= 200; n++ {
				e.Update([]float64{tt.raw})
				got := e.Bins()[0]

				if got < tt.raw {
					t.Fatalf("step %d: envelope %v fell below raw %v", n, got, tt.raw)
				}
				if got > prev {
					t.Fatalf("step %d: envelope rose from %v to %v under constant input", n, prev, got)
				}
				bound := (tt.start-tt.raw)*math.Pow(tt.decay, float64(n)) + 1e-9
				if got-tt.raw > bound {
					t.Fatalf("step %d: distance %v exceeds %v", n, got-tt.raw, bound)
				}
				prev = got
			}
		})
	}
}

func TestEnvelopeNeverBelowRaw(t *testing.T) {
	e := NewEnvelope(3, 0.95)
	inputs := [][]float64{
		{1, 0, 5},
		{0.2, 4, 5},
		{3, 0.1, 0},
		{0, 0, 9},
	}
	for step, raw := range inputs {
		e.Update(raw)
		for i, v := range e.Bins() {
			if v < raw[i] {
				t.Fatalf("step %d bin %d: envelope %v < raw %v", step, i, v, raw[i])
			}
		}
	}
}

func TestEnvelopeShortInput(t *testing.T) {
	e := NewEnvelope(4, 0.5)
	e.Update([]float64{1, 1, 1, 1})
	e.Update([]float64{0, 0})

	want := []float64{0.5, 0.5, 1, 1}
	for i, v := range e.Bins() {
		if v != want[i] {
			t.Errorf("bin %d = %v, want %v", i, v, want[i])
		}
	}
}

func TestEnvelopeUpdateZeroAllocs(t *testing.T) {
	e := NewEnvelope(1024, 0.95)
	raw := make([]float64, 1024)
	allocs := testing.AllocsPerRun(100, func() {
		e.Update(raw)
	})
	if allocs > 0 {
		t.Errorf("Update allocated %.1f times, want 0", allocs)
	}
}
