// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"

	"micspectrum/pkg/bitint"
)

// Policy selects how the assembler advances through the backlog.
type Policy int

const (
	// PolicyBlock consumes FrameSize samples per frame and never discards
	// samples. The backlog grows when analysis falls behind capture.
	PolicyBlock Policy = iota
	// PolicyOverlap advances by StepSize < FrameSize. When more than one
	// frame is ready only the newest is analysed; the stale ones are dropped
	// and counted so the backlog stays below FrameSize+StepSize.
	PolicyOverlap
)

func (p Policy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyOverlap:
		return "overlap"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "block":
		return PolicyBlock, nil
	case "overlap":
		return PolicyOverlap, nil
	default:
		return PolicyBlock, fmt.Errorf("unknown frame policy: %q", name)
	}
}

// Frame is one windowed analysis frame. It is owned by the Assembler and is
// overwritten by the next successful TryTakeFrame.
type Frame struct {
	Raw     []float32 // Samples as captured, oldest first.
	Samples []float64 // Raw multiplied by the window coefficients.
}

// Assembler accumulates drained samples into a backlog and cuts fixed-size
// windowed frames from it. It is not safe for concurrent use; the analysis
// tick is its only caller.
type Assembler struct {
	size    int
	step    int
	policy  Policy
	window  []float64
	backlog []float32
	start   int // index of the oldest unconsumed sample in backlog
	frame   Frame
	taken   uint64
	dropped uint64
}

// NewAssembler creates an assembler for frames of size samples. step is only
// used by PolicyOverlap and must satisfy 0 < step < size there.
func NewAssembler(size, step int, policy Policy, window WindowFunc) (*Assembler, error) {
	if size < 2 || !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("frame size must be a power of two >= 2, got %d", size)
	}

	switch policy {
	case PolicyBlock:
		step = size
	case PolicyOverlap:
		if step <= 0 || step >= size {
			return nil, fmt.Errorf("overlap step must be in (0, %d), got %d", size, step)
		}
	default:
		return nil, fmt.Errorf("unknown frame policy: %v", policy)
	}

	return &Assembler{
		size:    size,
		step:    step,
		policy:  policy,
		window:  WindowCoefficients(window, size),
		backlog: make([]float32, 0, 4*size),
		frame: Frame{
			Raw:     make([]float32, size),
			Samples: make([]float64, size),
		},
	}, nil
}

// Feed appends samples to the backlog in arrival order.
func (a *Assembler) Feed(samples []float32) {
	if len(samples) == 0 {
		return
	}

	// Compact consumed samples before growing.
	if a.start > 0 && (a.start >= len(a.backlog)/2 || cap(a.backlog)-len(a.backlog) < len(samples)) {
		n := copy(a.backlog, a.backlog[a.start:])
		a.backlog = a.backlog[:n]
		a.start = 0
	}
	a.backlog = append(a.backlog, samples...)
}

// TryTakeFrame returns the next frame if the backlog holds at least
// FrameSize samples. The returned frame is valid until the next call.
func (a *Assembler) TryTakeFrame() (*Frame, bool) {
	avail := len(a.backlog) - a.start

	if a.policy == PolicyOverlap {
		for avail >= a.size+a.step {
			a.start += a.step
			avail -= a.step
			a.dropped++
		}
	}

	if avail < a.size {
		return nil, false
	}

	src := a.backlog[a.start : a.start+a.size]
	copy(a.frame.Raw, src)
	for i, s := range src {
		a.frame.Samples[i] = float64(s) * a.window[i]
	}

	a.start += a.step
	a.taken++
	return &a.frame, true
}

// Backlog returns the number of buffered samples not yet consumed.
func (a *Assembler) Backlog() int { return len(a.backlog) - a.start }

// Taken returns the number of frames produced so far.
func (a *Assembler) Taken() uint64 { return a.taken }

// Dropped returns the number of stale frames skipped by PolicyOverlap.
func (a *Assembler) Dropped() uint64 { return a.dropped }

func (a *Assembler) Size() int      { return a.size }
func (a *Assembler) Step() int      { return a.step }
func (a *Assembler) Policy() Policy { return a.policy }

// Window returns the precomputed window coefficients.
func (a *Assembler) Window() []float64 { return a.window }
