// SPDX-License-Identifier: MIT
package analysis

// Snapshot is the state handed to renderers after every analysis tick.
// Publishers reuse one Snapshot; a consumer that keeps it past the call must
// Clone it.
type Snapshot struct {
	Seq        uint64      `json:"seq"`
	SampleRate float64     `json:"sampleRate"`
	FrameSize  int         `json:"frameSize"`
	MaxBin     int         `json:"maxBin"`
	Frames     int         `json:"frames"`  // Frames analysed during this tick.
	Dropped    uint64      `json:"dropped"` // Total samples lost at the capture handoff.
	Raw        []float64   `json:"raw"`     // Last frame's magnitudes; all zero when Frames is 0.
	Envelope   []float64   `json:"envelope"`
	Bands      []BandLevel `json:"bands,omitempty"`
}

// CopyFrom makes s a deep copy of src, reusing s's slices where possible.
func (s *Snapshot) CopyFrom(src *Snapshot) {
	s.Seq = src.Seq
	s.SampleRate = src.SampleRate
	s.FrameSize = src.FrameSize
	s.MaxBin = src.MaxBin
	s.Frames = src.Frames
	s.Dropped = src.Dropped
	s.Raw = append(s.Raw[:0], src.Raw...)
	s.Envelope = append(s.Envelope[:0], src.Envelope...)
	s.Bands = append(s.Bands[:0], src.Bands...)
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{}
	c.CopyFrom(s)
	return c
}

// BinFrequency returns the center frequency of bin i in Hz.
func (s *Snapshot) BinFrequency(i int) float64 {
	if s.FrameSize == 0 {
		return 0
	}
	return float64(i) * s.SampleRate / float64(s.FrameSize)
}

// Visible returns the envelope bins below MaxBin.
func (s *Snapshot) Visible() []float64 {
	return s.Envelope[:min(s.MaxBin, len(s.Envelope))]
}

// Peak returns the loudest displayed envelope bin and its value.
func (s *Snapshot) Peak() (int, float64) {
	bin, peak := 0, 0.0
	for i, v := range s.Visible() {
		if v > peak {
			bin, peak = i, v
		}
	}
	return bin, peak
}
