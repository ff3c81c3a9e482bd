// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	applog "micspectrum/internal/log"
	"micspectrum/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Verbose logging, and transform errors panic instead of being skipped.
	LogLevel  string          `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	LogFile   string          `yaml:"log_file"`          // Log destination while the TUI owns the terminal (empty discards).
	Command   string          `yaml:"command,omitempty"` // A one-off command to execute instead of running the engine.
	Audio     AudioConfig     `yaml:"audio"`             // Capture device settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`          // Frame assembly, transform and envelope settings.
	Display   DisplayConfig   `yaml:"display"`           // Settings handed to renderers.
	Recording RecordingConfig `yaml:"recording"`         // Audio recording settings.
	Transport TransportConfig `yaml:"transport"`         // Network sinks for spectrum snapshots.
}

// AudioConfig holds settings related to the capture device.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Requested sample rate in Hz (0 uses the device default).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback (0 lets the driver choose).
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	InputChannels   int     `yaml:"input_channels"`    // Channels to capture; more than one is downmixed to mono.
	HandoffCapacity int     `yaml:"handoff_capacity"`  // Samples the capture->analysis ring can hold (rounded up to a power of 2); overflow is dropped and counted.
}

// AnalysisConfig holds the spectrum pipeline settings.
type AnalysisConfig struct {
	FrameSize     int           `yaml:"frame_size"`     // FRAME_SIZE: transform length, power of 2.
	StepSize      int           `yaml:"step_size"`      // STEP_SIZE: hop between frames for the overlap policy (0 = frame size).
	Policy        string        `yaml:"policy"`         // "block" (never drop) or "overlap" (drop stale frames).
	Window        string        `yaml:"window"`         // Window function name (hann, hamming, blackman, ...).
	EnvelopeDecay float64       `yaml:"envelope_decay"` // ENVELOPE_DECAY: follower smoothing constant K in [0, 1].
	GateThreshold float64       `yaml:"gate_threshold"` // Peak amplitude at or below which a frame is treated as silence (0 disables).
	TickInterval  time.Duration `yaml:"tick_interval"`  // Analysis tick cadence.
}

// DisplayConfig holds values renderers need to map the spectrum.
type DisplayConfig struct {
	MaxFrequency   float64 `yaml:"max_frequency"`   // MAX_DISPLAY_FREQUENCY_HZ: highest frequency drawn.
	AmplitudeScale float64 `yaml:"amplitude_scale"` // Magnitude that maps to a full-height bar.
	Renderer       string  `yaml:"renderer"`        // "tui" or "none".
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled     bool   `yaml:"enabled"`              // Enable audio recording to file.
	OutputDir   string `yaml:"output_dir"`           // Directory to save recorded audio files.
	OutputFile  string `yaml:"output_file"`          // Explicit file name (generated when empty).
	Format      string `yaml:"format"`               // File format for recordings (only "wav").
	BitDepth    int    `yaml:"bit_depth"`            // Bit depth for recorded audio (16, 24 or 32).
	MaxDuration int    `yaml:"max_duration_seconds"` // Stop writing after this many seconds (0 for unlimited).
}

// TransportConfig holds settings related to sending snapshots over the network.
type TransportConfig struct {
	UDPEnabled        bool          `yaml:"udp_enabled"`        // Enable sending envelope packets over UDP.
	UDPTargetAddress  string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval   time.Duration `yaml:"udp_send_interval"`  // Minimum interval between UDP packets.
	WebSocketEnabled  bool          `yaml:"websocket_enabled"`  // Serve snapshots to browser renderers.
	WebSocketAddress  string        `yaml:"websocket_address"`  // Listen address for the WebSocket server.
	WebSocketInterval time.Duration `yaml:"websocket_interval"` // Minimum interval between WebSocket broadcasts.
	LogSpectrum       bool          `yaml:"log_spectrum"`       // Log the peak bin of every snapshot at DEBUG.
}

// EffectiveStep returns the hop between frames, defaulting to the frame size.
func (a AnalysisConfig) EffectiveStep() int {
	if a.StepSize <= 0 {
		return a.FrameSize
	}
	return a.StepSize
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"micspectrum.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every option against its allowed range and reports all
// violations at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Audio
	if c.Audio.InputDevice < MinDeviceID {
		fail("audio.input_device must be >= %d, got %d", MinDeviceID, c.Audio.InputDevice)
	}
	if c.Audio.SampleRate != 0 && (c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate) {
		fail("audio.sample_rate must be 0 or within [%d, %d], got %.0f", MinSampleRate, MaxSampleRate, c.Audio.SampleRate)
	}
	if c.Audio.FramesPerBuffer < 0 {
		fail("audio.frames_per_buffer must not be negative, got %d", c.Audio.FramesPerBuffer)
	}
	if c.Audio.InputChannels < 1 {
		fail("audio.input_channels must be at least 1, got %d", c.Audio.InputChannels)
	}

	// Analysis
	a := c.Analysis
	if !bitint.IsPowerOfTwo(a.FrameSize) || a.FrameSize < MinFrameSize || a.FrameSize > MaxFrameSize {
		fail("analysis.frame_size must be a power of 2 within [%d, %d], got %d", MinFrameSize, MaxFrameSize, a.FrameSize)
	}
	step := a.EffectiveStep()
	switch a.Policy {
	case PolicyBlock:
		if step != a.FrameSize {
			fail("analysis.step_size %d requires policy %q (block policy advances by frame_size)", a.StepSize, PolicyOverlap)
		}
	case PolicyOverlap:
		if step <= 0 || step >= a.FrameSize {
			fail("analysis.step_size must be within (0, %d) for the overlap policy, got %d", a.FrameSize, step)
		}
	default:
		fail("analysis.policy must be %q or %q, got %q", PolicyBlock, PolicyOverlap, a.Policy)
	}
	if a.EnvelopeDecay < 0 || a.EnvelopeDecay > 1 {
		fail("analysis.envelope_decay must be within [0, 1], got %g", a.EnvelopeDecay)
	}
	if a.GateThreshold < 0 || a.GateThreshold >= 1 {
		fail("analysis.gate_threshold must be within [0, 1), got %g", a.GateThreshold)
	}
	if a.TickInterval <= 0 {
		fail("analysis.tick_interval must be positive, got %s", a.TickInterval)
	}
	if c.Audio.HandoffCapacity < a.FrameSize {
		fail("audio.handoff_capacity (%d) must hold at least one frame (%d)", c.Audio.HandoffCapacity, a.FrameSize)
	}

	// Display
	if !isFinite(c.Display.MaxFrequency) || c.Display.MaxFrequency <= 0 {
		fail("display.max_frequency must be a positive finite number, got %g", c.Display.MaxFrequency)
	}
	if !isFinite(c.Display.AmplitudeScale) || c.Display.AmplitudeScale <= 0 {
		fail("display.amplitude_scale must be a positive finite number, got %g", c.Display.AmplitudeScale)
	}
	if c.Display.Renderer != RendererTUI && c.Display.Renderer != RendererNone {
		fail("display.renderer must be %q or %q, got %q", RendererTUI, RendererNone, c.Display.Renderer)
	}

	// Recording
	if c.Recording.Enabled {
		if c.Recording.Format != "wav" {
			fail("recording.format %q is not supported (only wav)", c.Recording.Format)
		}
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			fail("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
		}
		if c.Recording.MaxDuration < 0 {
			fail("recording.max_duration_seconds must not be negative, got %d", c.Recording.MaxDuration)
		}
	}

	// Transport
	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			fail("transport.udp_target_address %q appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval < 0 {
			fail("transport.udp_send_interval must not be negative, got %s", c.Transport.UDPSendInterval)
		}
	}
	if c.Transport.WebSocketEnabled {
		if !strings.Contains(c.Transport.WebSocketAddress, ":") {
			fail("transport.websocket_address %q appears invalid (missing port?)", c.Transport.WebSocketAddress)
		}
		if c.Transport.WebSocketInterval < 0 {
			fail("transport.websocket_interval must not be negative, got %s", c.Transport.WebSocketInterval)
		}
	}

	return errors.Join(errs...)
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// applyEnvOverrides lets the environment override file values. Every
// variable is prefixed ENV_; unparsable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.
	envBool("ENV_DEBUG", &c.Debug)
	envString("ENV_LOG_LEVEL", &c.LogLevel)

	// ENV_AUDIO_{...} / ENV_ANALYSIS_{...} / ENV_DISPLAY_{...}
	envInt("ENV_AUDIO_INPUT_DEVICE", &c.Audio.InputDevice)
	envFloat("ENV_AUDIO_SAMPLE_RATE", &c.Audio.SampleRate)
	envInt("ENV_ANALYSIS_FRAME_SIZE", &c.Analysis.FrameSize)
	envInt("ENV_ANALYSIS_STEP_SIZE", &c.Analysis.StepSize)
	envString("ENV_ANALYSIS_POLICY", &c.Analysis.Policy)
	envFloat("ENV_ANALYSIS_ENVELOPE_DECAY", &c.Analysis.EnvelopeDecay)
	envFloat("ENV_DISPLAY_MAX_FREQUENCY", &c.Display.MaxFrequency)

	// ENV_UDP_{...} / ENV_WS_{...}
	// These are specific to the transport layer.
	envBool("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	envDuration("ENV_UDP_SEND_INTERVAL", &c.Transport.UDPSendInterval)
	envBool("ENV_WS_ENABLED", &c.Transport.WebSocketEnabled)
	envString("ENV_WS_ADDRESS", &c.Transport.WebSocketAddress)
}

func envString(name string, dst *string) {
	if val, ok := os.LookupEnv(name); ok {
		*dst = val
		applog.Infof("configuration: overriding from %s: %s", name, val)
	}
}

func envBool(name string, dst *bool) {
	envParse(name, dst, strconv.ParseBool)
}

func envInt(name string, dst *int) {
	envParse(name, dst, strconv.Atoi)
}

func envFloat(name string, dst *float64) {
	envParse(name, dst, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func envDuration(name string, dst *time.Duration) {
	envParse(name, dst, time.ParseDuration)
}

func envParse[T any](name string, dst *T, parse func(string) (T, error)) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	parsed, err := parse(val)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = parsed
	applog.Infof("configuration: overriding from %s: %v", name, parsed)
}
