// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// SliceReader is an in-memory sample source with the consumer side of a
// handoff queue. Tests Append samples and the analyzer drains them.
type SliceReader struct {
	mu      sync.Mutex
	samples []float32
	dropped uint64
}

// Append queues samples for the next Drain.
func (r *SliceReader) Append(samples ...float32) {
	r.mu.Lock()
	r.samples = append(r.samples, samples...)
	r.mu.Unlock()
}

// AddDropped raises the dropped-sample counter.
func (r *SliceReader) AddDropped(n uint64) {
	r.mu.Lock()
	r.dropped += n
	r.mu.Unlock()
}

// Drain appends everything queued to dst and empties the reader.
func (r *SliceReader) Drain(dst []float32) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	dst = append(dst, r.samples...)
	r.samples = r.samples[:0]
	return dst
}

// Dropped returns the dropped-sample counter.
func (r *SliceReader) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// GenerateComplexWave returns a 440 Hz tone with two harmonics, peaking
// below full scale.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2 // 440Hz fundamental + harmonics
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateSineWave returns size samples of a sine at frequency Hz.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// BinCenterFrequency returns the frequency that falls exactly on bin k of a
// frameSize transform.
func BinCenterFrequency(k int, sampleRate float64, frameSize int) float64 {
	return float64(k) * sampleRate / float64(frameSize)
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
