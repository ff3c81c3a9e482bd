// SPDX-License-Identifier: MIT
/*
Package engine runs the spectrum pipeline:
- Capture pushes samples into the handoff queue from the audio callback
- A single analysis goroutine drains it on a fixed tick
- Each tick produces a Snapshot that is fanned out to sinks

Thread Safety:
- The analyzer, its assembler and envelope are only touched by the tick goroutine
- The handoff queue is the only state shared with the audio callback
- Start, Stop and Close may be called from any goroutine
*/
package engine

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"micspectrum/internal/analysis"
	"micspectrum/internal/audio"
	"micspectrum/internal/config"
	"micspectrum/internal/handoff"
	applog "micspectrum/internal/log"
	"micspectrum/internal/transport"
)

// Capture is a started audio source. *audio.Bridge implements it.
type Capture interface {
	Start() (float64, handoff.Reader, error)
	Close() error
}

var _ Capture = (*audio.Bridge)(nil)

// ErrNotStarted is returned by operations that need a running capture.
var ErrNotStarted = errors.New("engine not started")

// Engine owns the capture, the analyzer and the sinks.
type Engine struct {
	cfg      *config.Config
	opts     analysis.Options
	capture  Capture
	sinks    transport.Multi
	interval time.Duration

	analyzer *analysis.Analyzer
	recorder *audio.Recorder
	snap     analysis.Snapshot

	publishLimiter *applog.Limiter

	statsMu sync.Mutex
	stats   analysis.Stats

	mu       sync.Mutex // Protects ticker, doneChan and the lifecycle flags.
	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	closed   bool
}

// New validates cfg and prepares an engine. Nothing is opened until Start.
func New(cfg *config.Config, capture Capture, sinks ...transport.Sink) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: nil config")
	}
	if capture == nil {
		return nil, errors.New("engine: nil capture")
	}

	opts, err := analysis.OptionsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	interval := cfg.Analysis.TickInterval
	if interval <= 0 {
		interval = config.DefaultTickInterval
	}

	return &Engine{
		cfg:            cfg,
		opts:           opts,
		capture:        capture,
		sinks:          transport.Multi(sinks),
		interval:       interval,
		publishLimiter: applog.NewLimiter(5 * time.Second),
	}, nil
}

// Start opens the capture stream, builds the analyzer for the negotiated
// sample rate, opens the recorder if enabled and starts ticking.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.New("engine: closed")
	}
	if e.started {
		if e.ticker != nil {
			applog.Warnf("Engine: Start called but already running.")
		} else {
			e.startTicking()
		}
		return nil
	}

	sampleRate, reader, err := e.capture.Start()
	if err != nil {
		return err
	}

	analyzer, err := analysis.NewAnalyzer(reader, sampleRate, e.opts)
	if err != nil {
		return errors.Join(err, e.capture.Close())
	}

	if e.cfg.Recording.Enabled {
		rc := e.cfg.Recording
		rec, err := audio.NewRecorder(audio.RecordingPath(rc, time.Now()), sampleRate, rc.BitDepth, rc.MaxDuration)
		if err != nil {
			return errors.Join(fmt.Errorf("engine: open recording: %w", err), e.capture.Close())
		}
		analyzer.SetTee(rec)
		e.recorder = rec
		applog.Infof("Engine: Recording to %s", rec.Path())
	}

	e.analyzer = analyzer
	e.started = true

	applog.Infof("Engine: %.0f Hz, frame %d, step %d, %s policy, showing %d bins up to %.0f Hz",
		sampleRate, e.opts.FrameSize, e.opts.StepSize, e.opts.Policy, analyzer.MaxBin(),
		float64(analyzer.MaxBin())*analysis.BinWidth(sampleRate, e.opts.FrameSize))

	e.startTicking()
	return nil
}

// startTicking launches the analysis goroutine. e.mu must be held.
func (e *Engine) startTicking() {
	e.ticker = time.NewTicker(e.interval)
	e.doneChan = make(chan struct{})
	e.wg.Add(1)

	ticker := e.ticker
	doneChan := e.doneChan
	go func() {
		defer e.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		for {
			select {
			case <-ticker.C:
				e.tick()
			case <-doneChan:
				return
			}
		}
	}()
}

// tick runs one analysis step and publishes the snapshot.
func (e *Engine) tick() {
	e.analyzer.Tick()
	e.analyzer.Snapshot(&e.snap)

	e.statsMu.Lock()
	e.stats = e.analyzer.Stats()
	e.statsMu.Unlock()

	if len(e.sinks) == 0 {
		return
	}
	if err := e.sinks.Publish(&e.snap); err != nil {
		if ok, suppressed := e.publishLimiter.Allow(); ok {
			applog.Errorf("Engine: publish failed: %v (%d suppressed)", err, suppressed)
		}
	}
}

// Stop halts the tick goroutine and waits for it to exit. Capture keeps
// running until Close. It is safe to call Stop multiple times.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.ticker == nil {
		e.mu.Unlock()
		return
	}
	e.ticker.Stop()
	close(e.doneChan)
	e.ticker = nil
	e.doneChan = nil
	e.mu.Unlock()

	e.wg.Wait()
	applog.Debugf("Engine: tick goroutine stopped")
}

// Close stops ticking, closes the capture stream, then the sinks and the
// recorder. Once Close returns no callback or tick is running.
func (e *Engine) Close() error {
	e.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if err := e.capture.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: close capture: %w", err))
	}
	if err := e.sinks.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: close sinks: %w", err))
	}
	if e.recorder != nil {
		if err := e.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: close recording: %w", err))
		} else {
			applog.Infof("Engine: Recording saved to %s (%s)", e.recorder.Path(), e.recorder.Duration())
		}
	}

	if e.analyzer != nil {
		s := e.analyzer.Stats()
		applog.Infof("Engine: %d ticks, %d frames, %d stale frames, %d dropped samples",
			s.Ticks, s.Frames, s.DroppedFrames, s.DroppedSamples)
	}
	return errors.Join(errs...)
}

// Analyzer returns the analyzer, or nil before Start. It is not safe to
// use while the engine is ticking.
func (e *Engine) Analyzer() *analysis.Analyzer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.analyzer
}

// Recorder returns the active recorder, or nil when recording is disabled.
func (e *Engine) Recorder() *audio.Recorder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder
}

// Stats returns the analyzer counters as of the last tick.
func (e *Engine) Stats() (analysis.Stats, error) {
	if e.Analyzer() == nil {
		return analysis.Stats{}, ErrNotStarted
	}
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats, nil
}
