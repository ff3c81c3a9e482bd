// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"micspectrum/pkg/bitint"
)

// ErrFrameLength is returned when a frame does not match the transform size.
var ErrFrameLength = errors.New("frame length does not match transform size")

// Transformer computes magnitude spectra of fixed-size real frames. The
// returned spectrum is reused between calls.
type Transformer struct {
	size       int
	sampleRate float64
	scale      float64
	fft        *fourier.FFT
	coeffs     []complex128
	magnitudes []float64
}

// NewTransformer creates a transformer for frames of size samples captured
// at sampleRate.
func NewTransformer(size int, sampleRate float64) (*Transformer, error) {
	if size < 2 || !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("transform size must be a power of two >= 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %v", sampleRate)
	}

	return &Transformer{
		size:       size,
		sampleRate: sampleRate,
		scale:      1 / math.Sqrt(float64(size)),
		fft:        fourier.NewFFT(size),
		coeffs:     make([]complex128, size/2+1),
		magnitudes: make([]float64, size/2),
	}, nil
}

// Transform returns the magnitudes of bins [0, size/2), each scaled by
// 1/sqrt(size). The Nyquist bin is not included.
func (t *Transformer) Transform(frame []float64) ([]float64, error) {
	if len(frame) != t.size {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(frame), t.size)
	}

	t.fft.Coefficients(t.coeffs, frame)
	for i := range t.magnitudes {
		t.magnitudes[i] = cmplx.Abs(t.coeffs[i]) * t.scale
	}
	return t.magnitudes, nil
}

// Magnitudes returns the spectrum of the last successful Transform.
func (t *Transformer) Magnitudes() []float64 { return t.magnitudes }

// BinFrequency returns the center frequency of bin i in Hz.
func (t *Transformer) BinFrequency(i int) float64 {
	return float64(i) * t.sampleRate / float64(t.size)
}

func (t *Transformer) Size() int           { return t.size }
func (t *Transformer) SampleRate() float64 { return t.sampleRate }
func (t *Transformer) Bins() int           { return t.size / 2 }
