// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"time"

	"micspectrum/internal/config"
	"micspectrum/internal/handoff"
	applog "micspectrum/internal/log"
)

// Options configures an Analyzer.
type Options struct {
	FrameSize     int
	StepSize      int
	Policy        Policy
	Window        WindowFunc
	EnvelopeDecay float64
	GateThreshold float64
	MaxFrequency  float64
	Bands         []FrequencyBand
	// Strict makes transform errors panic instead of being logged and
	// skipped.
	Strict bool
}

// OptionsFromConfig builds analyzer options from a validated configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := ParsePolicy(cfg.Analysis.Policy)
	if err != nil {
		return Options{}, err
	}
	window, err := ParseWindowFunc(cfg.Analysis.Window)
	if err != nil {
		return Options{}, err
	}

	return Options{
		FrameSize:     cfg.Analysis.FrameSize,
		StepSize:      cfg.Analysis.EffectiveStep(),
		Policy:        policy,
		Window:        window,
		EnvelopeDecay: cfg.Analysis.EnvelopeDecay,
		GateThreshold: cfg.Analysis.GateThreshold,
		MaxFrequency:  cfg.Display.MaxFrequency,
		Bands:         DefaultBands,
		Strict:        cfg.Debug,
	}, nil
}

// Stats are cumulative counters of an Analyzer.
type Stats struct {
	Ticks           uint64
	Frames          uint64
	GatedFrames     uint64
	DroppedFrames   uint64 // Stale frames skipped by the overlap policy.
	DroppedSamples  uint64 // Samples lost at the capture handoff.
	TransformErrors uint64
	Backlog         int
}

// Analyzer runs the analysis tick: it drains the handoff queue, cuts frames,
// transforms them and folds each spectrum into the envelope. All methods
// must be called from the same goroutine.
type Analyzer struct {
	src        handoff.Reader
	sampleRate float64
	maxBin     int
	strict     bool

	assembler *Assembler
	transform *Transformer
	envelope  *Envelope
	gate      *Gate
	bands     *BandMeter
	tee       SampleSink

	drained []float32

	ticks           uint64
	frames          uint64
	gated           uint64
	transformErrors uint64
	lastFrames      int

	reportedDrops uint64
	dropLimiter   *applog.Limiter
	teeLimiter    *applog.Limiter
}

var _ SpectrumProvider = (*Analyzer)(nil)

// NewAnalyzer creates an analyzer that consumes src, captured at sampleRate.
func NewAnalyzer(src handoff.Reader, sampleRate float64, opts Options) (*Analyzer, error) {
	if src == nil {
		return nil, errors.New("analyzer requires a sample source")
	}
	if opts.EnvelopeDecay < 0 || opts.EnvelopeDecay > 1 {
		return nil, fmt.Errorf("envelope decay must be within [0, 1], got %g", opts.EnvelopeDecay)
	}

	assembler, err := NewAssembler(opts.FrameSize, opts.StepSize, opts.Policy, opts.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame assembler: %w", err)
	}
	transform, err := NewTransformer(opts.FrameSize, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create transform: %w", err)
	}

	maxBin := MaxDisplayBin(sampleRate, opts.FrameSize, opts.MaxFrequency)
	a := &Analyzer{
		src:         src,
		sampleRate:  sampleRate,
		maxBin:      maxBin,
		strict:      opts.Strict,
		assembler:   assembler,
		transform:   transform,
		envelope:    NewEnvelope(opts.FrameSize/2, opts.EnvelopeDecay),
		drained:     make([]float32, 0, 4*opts.FrameSize),
		dropLimiter: applog.NewLimiter(time.Second),
		teeLimiter:  applog.NewLimiter(5 * time.Second),
	}
	if opts.GateThreshold > 0 {
		a.gate = NewGate(opts.GateThreshold)
	}
	if len(opts.Bands) > 0 {
		a.bands = NewBandMeter(opts.Bands, sampleRate, opts.FrameSize, maxBin)
	}

	applog.Debugf("Analyzer: frame=%d step=%d policy=%s window=%s decay=%.3f rate=%.0f maxBin=%d",
		opts.FrameSize, assembler.Step(), opts.Policy, opts.Window, opts.EnvelopeDecay, sampleRate, maxBin)

	return a, nil
}

// SetTee routes every drained sample to sink before framing. Pass nil to
// detach.
func (a *Analyzer) SetTee(sink SampleSink) {
	a.tee = sink
}

// Tick performs one analysis step and returns the number of frames
// analysed. Frames that fail to transform are skipped (or panic in strict
// mode) and do not touch the envelope.
func (a *Analyzer) Tick() int {
	a.ticks++
	a.drained = a.src.Drain(a.drained[:0])

	if len(a.drained) > 0 {
		if a.tee != nil {
			if err := a.tee.WriteSamples(a.drained); err != nil {
				if ok, suppressed := a.teeLimiter.Allow(); ok {
					applog.Errorf("Analyzer: sample sink write failed: %v (%d suppressed)", err, suppressed)
				}
			}
		}
		a.assembler.Feed(a.drained)
	}
	a.reportDrops()

	frames := 0
	for {
		frame, ok := a.assembler.TryTakeFrame()
		if !ok {
			break
		}

		if a.gate != nil && !a.gate.Open(frame.Raw) {
			clear(frame.Samples)
			a.gated++
		}

		raw, err := a.transform.Transform(frame.Samples)
		if err != nil {
			a.transformErrors++
			if a.strict {
				panic(fmt.Sprintf("analysis: transform failed: %v", err))
			}
			applog.Errorf("Analyzer: skipping frame: %v", err)
			continue
		}

		a.envelope.Update(raw)
		frames++
	}

	a.frames += uint64(frames)
	a.lastFrames = frames
	return frames
}

func (a *Analyzer) reportDrops() {
	dropped := a.src.Dropped()
	if dropped == a.reportedDrops {
		return
	}
	if ok, _ := a.dropLimiter.Allow(); ok {
		applog.Warnf("Analyzer: capture handoff dropped %d samples (%d total)", dropped-a.reportedDrops, dropped)
		a.reportedDrops = dropped
	}
}

// Snapshot fills dst with the current state, reusing its slices. Raw is
// zeroed when the last tick analysed no frame.
func (a *Analyzer) Snapshot(dst *Snapshot) {
	dst.Seq = a.ticks
	dst.SampleRate = a.sampleRate
	dst.FrameSize = a.assembler.Size()
	dst.MaxBin = a.maxBin
	dst.Frames = a.lastFrames
	dst.Dropped = a.src.Dropped()
	dst.Raw = append(dst.Raw[:0], a.transform.Magnitudes()...)
	if a.lastFrames == 0 {
		clear(dst.Raw)
	}
	dst.Envelope = append(dst.Envelope[:0], a.envelope.Bins()...)
	if a.bands != nil {
		dst.Bands = append(dst.Bands[:0], a.bands.Measure(a.envelope.Bins())...)
	} else {
		dst.Bands = dst.Bands[:0]
	}
}

// Stats returns the cumulative counters.
func (a *Analyzer) Stats() Stats {
	return Stats{
		Ticks:           a.ticks,
		Frames:          a.frames,
		GatedFrames:     a.gated,
		DroppedFrames:   a.assembler.Dropped(),
		DroppedSamples:  a.src.Dropped(),
		TransformErrors: a.transformErrors,
		Backlog:         a.assembler.Backlog(),
	}
}

func (a *Analyzer) Raw() []float64             { return a.transform.Magnitudes() }
func (a *Analyzer) Envelope() []float64        { return a.envelope.Bins() }
func (a *Analyzer) BinFrequency(i int) float64 { return a.transform.BinFrequency(i) }
func (a *Analyzer) FrameSize() int             { return a.assembler.Size() }
func (a *Analyzer) SampleRate() float64        { return a.sampleRate }
func (a *Analyzer) MaxBin() int                { return a.maxBin }
func (a *Analyzer) Assembler() *Assembler      { return a.assembler }
