// SPDX-License-Identifier: MIT
package analysis

// SampleSink receives every mono sample the analyzer drains from the handoff
// queue, before framing. It is called on the analysis tick, never from the
// audio callback, so implementations may block briefly (file I/O).
type SampleSink interface {
	WriteSamples(samples []float32) error
}

// SpectrumProvider is the read-only view of the analysis state. Slices
// returned by Raw and Envelope are owned by the provider and are only valid
// until the next tick.
type SpectrumProvider interface {
	Raw() []float64                    // Raw returns the latest raw magnitude spectrum (FrameSize/2 bins).
	Envelope() []float64               // Envelope returns the smoothed spectrum (FrameSize/2 bins).
	BinFrequency(binIndex int) float64 // BinFrequency returns the center frequency (Hz) of a bin.
	FrameSize() int                    // FrameSize returns the analysis frame length.
	SampleRate() float64               // SampleRate returns the stream sample rate.
	MaxBin() int                       // MaxBin returns the display ceiling bin count.
}
