// SPDX-License-Identifier: MIT
/*
Package audio owns the capture side of the pipeline:
- Device discovery and selection through PortAudio
- A capture bridge whose callback hands mono samples to a lock-free queue
- WAV recording of the drained sample stream

Thread Safety:
- The stream callback runs on a PortAudio thread and touches only the
  queue's producer side and preallocated scratch memory
- No allocations, locks or logging in the callback
- Start/Stop/Close are serialised by a mutex and run on the control goroutine
*/
package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"micspectrum/internal/config"
	"micspectrum/internal/handoff"
	applog "micspectrum/internal/log"
)

// paStream is the subset of *portaudio.Stream the bridge drives.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Info() *portaudio.StreamInfo
}

var paOpenStream = func(params portaudio.StreamParameters, callback func(in []float32)) (paStream, error) {
	return portaudio.OpenStream(params, callback)
}

// scratchFrames bounds how many frames are downmixed per queue push when the
// driver chooses the buffer size.
const scratchFrames = 4096

// Bridge connects a PortAudio input stream to a handoff queue.
type Bridge struct {
	cfg      config.AudioConfig
	device   *portaudio.DeviceInfo
	channels int
	latency  time.Duration

	queue   *handoff.Queue
	scratch []float32 // Mono downmix buffer, callback-owned.

	mu         sync.Mutex
	stream     paStream
	sampleRate float64

	callbacks atomic.Uint64
	panics    atomic.Uint64
}

// Open resolves the configured input device and prepares the queue. It
// does not open the stream.
func Open(cfg config.AudioConfig) (*Bridge, error) {
	device, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}

	channels := max(1, min(cfg.InputChannels, device.MaxInputChannels))
	if channels != cfg.InputChannels {
		applog.Warnf("Audio: %q supports %d input channels, using %d", device.Name, device.MaxInputChannels, channels)
	}

	capacity := cfg.HandoffCapacity
	if capacity <= 0 {
		capacity = config.DefaultHandoffCapacity
	}

	b := &Bridge{
		cfg:      cfg,
		device:   device,
		channels: channels,
		latency:  device.DefaultHighInputLatency,
		queue:    handoff.New(capacity),
	}
	if cfg.LowLatency {
		b.latency = device.DefaultLowInputLatency
	}
	if channels > 1 {
		size := scratchFrames
		if cfg.FramesPerBuffer > 0 {
			size = cfg.FramesPerBuffer
		}
		b.scratch = make([]float32, size)
	}

	return b, nil
}

// Start opens and starts the input stream and returns the negotiated sample
// rate together with the consumer side of the queue. A rejected configured
// rate is retried once at the device default rate.
func (b *Bridge) Start() (float64, handoff.Reader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream != nil {
		return 0, nil, errors.New("audio: capture already started")
	}

	rates := []float64{b.device.DefaultSampleRate}
	if b.cfg.SampleRate > 0 && b.cfg.SampleRate != b.device.DefaultSampleRate {
		rates = []float64{b.cfg.SampleRate, b.device.DefaultSampleRate}
	}

	var lastErr error
	for _, rate := range rates {
		stream, err := paOpenStream(b.streamParameters(rate), b.process)
		if err != nil {
			applog.Warnf("Audio: %q rejected %.0f Hz x %d ch: %v", b.device.Name, rate, b.channels, err)
			lastErr = err
			continue
		}
		if err := stream.Start(); err != nil {
			stream.Close()
			applog.Warnf("Audio: failed to start %q at %.0f Hz: %v", b.device.Name, rate, err)
			lastErr = err
			continue
		}

		b.stream = stream
		b.sampleRate = rate
		if info := stream.Info(); info != nil && info.SampleRate > 0 {
			b.sampleRate = info.SampleRate
		}
		applog.Infof("Audio: capturing from %q at %.0f Hz, %d channel(s)", b.device.Name, b.sampleRate, b.channels)
		return b.sampleRate, b.queue, nil
	}

	return 0, nil, &DeviceError{
		Op:     "open stream",
		Device: b.device.Name,
		Err:    fmt.Errorf("%w: %w", ErrUnsupportedConfig, lastErr),
	}
}

func (b *Bridge) streamParameters(rate float64) portaudio.StreamParameters {
	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   b.device,
			Channels: b.channels,
			Latency:  b.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: b.cfg.FramesPerBuffer,
		SampleRate:      rate,
	}
}

// process is the stream callback.
// Performance Critical:
// - Runs on the PortAudio callback thread
// - Uses pre-allocated buffers only
// - Never blocks; a full queue drops and counts samples
func (b *Bridge) process(in []float32) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
		}
	}()
	b.callbacks.Add(1)

	if b.channels == 1 {
		b.queue.Push(in)
		return
	}
	b.downmix(in)
}

// downmix averages interleaved frames into the scratch buffer and pushes
// them in scratch-sized runs.
func (b *Bridge) downmix(in []float32) {
	channels := b.channels
	frames := len(in) / channels
	inv := 1 / float32(channels)

	for off := 0; off < frames; off += len(b.scratch) {
		n := min(len(b.scratch), frames-off)
		src := in[off*channels : (off+n)*channels]

		switch channels {
		case 2:
			for f := 0; f < n; f++ {
				b.scratch[f] = (src[2*f] + src[2*f+1]) * 0.5
			}
		default:
			for f := 0; f < n; f++ {
				var sum float32
				for _, s := range src[f*channels : (f+1)*channels] {
					sum += s
				}
				b.scratch[f] = sum * inv
			}
		}
		b.queue.Push(b.scratch[:n])
	}
}

// Stop stops and closes the stream. PortAudio returns from Stop only after
// the callback has finished, so no callback runs once Stop returns.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream == nil {
		return nil
	}
	stream := b.stream
	b.stream = nil

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop stream: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases the stream. It is safe to call more than once.
func (b *Bridge) Close() error {
	return b.Stop()
}

// SampleRate returns the negotiated rate, or 0 before Start.
func (b *Bridge) SampleRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sampleRate
}

func (b *Bridge) Device() *portaudio.DeviceInfo { return b.device }
func (b *Bridge) Channels() int                 { return b.channels }
func (b *Bridge) Queue() *handoff.Queue         { return b.queue }

// Callbacks returns how many times the stream callback has run.
func (b *Bridge) Callbacks() uint64 { return b.callbacks.Load() }

// Panics returns how many callback invocations panicked and were recovered.
func (b *Bridge) Panics() uint64 { return b.panics.Load() }
