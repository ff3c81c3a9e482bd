// SPDX-License-Identifier: MIT
package analysis

import "math"

// FrequencyBand defines the name and frequency range of an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// BandLevel is the RMS level of one band in the current envelope.
type BandLevel struct {
	Name  string  `json:"name"`
	Level float64 `json:"level"`
}

// DefaultBands covers the audible range in six named bands. The top band is
// open-ended and is cut at the display ceiling.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandMeter summarises a spectrum into per-band RMS levels. Bin ranges are
// resolved once at construction.
type BandMeter struct {
	bands  []FrequencyBand
	ranges [][2]int // [first, last) bin per band
	levels []BandLevel
}

// NewBandMeter maps bands onto the bins of a frameSize transform at
// sampleRate, limited to the first maxBin bins.
func NewBandMeter(bands []FrequencyBand, sampleRate float64, frameSize, maxBin int) *BandMeter {
	width := BinWidth(sampleRate, frameSize)
	m := &BandMeter{
		bands:  bands,
		ranges: make([][2]int, len(bands)),
		levels: make([]BandLevel, len(bands)),
	}

	for i, band := range bands {
		lo := int(math.Ceil(band.LowHz / width))
		hi := maxBin
		if !math.IsInf(band.HighHz, 1) {
			hi = min(maxBin, int(math.Ceil(band.HighHz/width)))
		}
		lo = max(0, min(lo, hi))
		m.ranges[i] = [2]int{lo, hi}
		m.levels[i].Name = band.Name
	}
	return m
}

// Measure returns the RMS of each band over spectrum. The returned slice is
// reused by the next call.
func (m *BandMeter) Measure(spectrum []float64) []BandLevel {
	for i, r := range m.ranges {
		lo, hi := r[0], min(r[1], len(spectrum))
		if hi <= lo {
			m.levels[i].Level = 0
			continue
		}

		var sum float64
		for _, v := range spectrum[lo:hi] {
			sum += v * v
		}
		m.levels[i].Level = math.Sqrt(sum / float64(hi-lo))
	}
	return m.levels
}

// Bands returns the configured bands.
func (m *BandMeter) Bands() []FrequencyBand { return m.bands }
