// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"micspectrum/internal/config"
	applog "micspectrum/internal/log"
)

// Recorder writes the mono sample stream to a WAV file. It is fed from the
// analysis tick, never from the audio callback.
type Recorder struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	encoder    *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion
	fullScale  float64
	sampleRate int
	maxSamples int // 0 means unlimited
	written    int
	closed     bool
}

// RecordingPath returns the configured output file, or a timestamped name
// inside the output directory.
func RecordingPath(cfg config.RecordingConfig, now time.Time) string {
	if cfg.OutputFile != "" {
		if filepath.IsAbs(cfg.OutputFile) || cfg.OutputDir == "" {
			return cfg.OutputFile
		}
		return filepath.Join(cfg.OutputDir, cfg.OutputFile)
	}
	return filepath.Join(cfg.OutputDir, fmt.Sprintf("micspectrum-%s.wav", now.Format("20060102-150405")))
}

// NewRecorder creates path (and its directory) and writes a mono PCM WAV
// header for sampleRate and bitDepth (16, 24 or 32). maxSeconds > 0 caps the
// recording length.
func NewRecorder(path string, sampleRate float64, bitDepth, maxSeconds int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %v", sampleRate)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create recording directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	rate := int(sampleRate)
	r := &Recorder{
		path:       path,
		file:       file,
		encoder:    wav.NewEncoder(file, rate, bitDepth, 1, 1),
		fullScale:  float64(int64(1)<<(bitDepth-1) - 1),
		sampleRate: rate,
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  rate,
			},
			SourceBitDepth: bitDepth,
			Data:           make([]int, 0, 8192),
		},
	}
	if maxSeconds > 0 {
		r.maxSamples = maxSeconds * rate
	}

	applog.Infof("Recording: writing %d-bit mono WAV at %d Hz to %s", bitDepth, rate, path)
	return r, nil
}

// WriteSamples converts samples to PCM and appends them to the file.
// Samples outside [-1, 1] are clipped. Once the duration cap is reached the
// remaining samples are discarded.
func (r *Recorder) WriteSamples(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("recorder is closed")
	}

	if r.maxSamples > 0 {
		remaining := r.maxSamples - r.written
		if remaining <= 0 {
			return nil
		}
		if len(samples) > remaining {
			samples = samples[:remaining]
			applog.Infof("Recording: reached maximum duration, further audio is not recorded")
		}
	}

	data := r.sampleBuf.Data[:0]
	for _, s := range samples {
		v := max(-1, min(1, float64(s)))
		data = append(data, int(v*r.fullScale))
	}
	r.sampleBuf.Data = data

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	r.written += len(samples)
	return nil
}

// Close finalizes the WAV header and closes the file. It is safe to call
// more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to finalize WAV file: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close recording file: %w", err))
	}

	applog.Infof("Recording: saved %s (%.1fs)", r.path, r.duration().Seconds())
	return errors.Join(errs...)
}

// Path returns the output file path.
func (r *Recorder) Path() string { return r.path }

// Written returns the number of samples written so far.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Duration returns the recorded length.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.duration()
}

func (r *Recorder) duration() time.Duration {
	return time.Duration(r.written) * time.Second / time.Duration(r.sampleRate)
}
