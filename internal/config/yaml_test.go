// SPDX-License-Identifier: MIT
package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Analysis.FrameSize != DefaultFrameSize {
		t.Errorf("frame size = %d, want %d", cfg.Analysis.FrameSize, DefaultFrameSize)
	}
	if cfg.Analysis.EnvelopeDecay != DefaultEnvelopeDecay {
		t.Errorf("envelope decay = %g, want %g", cfg.Analysis.EnvelopeDecay, DefaultEnvelopeDecay)
	}
	if cfg.Display.MaxFrequency != DefaultMaxFrequency {
		t.Errorf("max frequency = %g, want %g", cfg.Display.MaxFrequency, DefaultMaxFrequency)
	}
	if cfg.Analysis.Policy != PolicyBlock {
		t.Errorf("policy = %q, want %q", cfg.Analysis.Policy, PolicyBlock)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: warn
audio:
  input_device: 3
  sample_rate: 48000
analysis:
  frame_size: 4096
  step_size: 1024
  policy: overlap
  envelope_decay: 0.9
  tick_interval: 20ms
display:
  max_frequency: 8000
transport:
  udp_enabled: true
  udp_target_address: "10.0.0.2:7000"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Audio.InputDevice != 3 || cfg.Audio.SampleRate != 48000 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Analysis.FrameSize != 4096 || cfg.Analysis.EffectiveStep() != 1024 {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	if cfg.Analysis.TickInterval != 20*time.Millisecond {
		t.Errorf("tick interval = %s, want 20ms", cfg.Analysis.TickInterval)
	}
	if cfg.Display.MaxFrequency != 8000 {
		t.Errorf("max frequency = %g", cfg.Display.MaxFrequency)
	}
	// Unset keys keep their defaults.
	if cfg.Audio.HandoffCapacity != DefaultHandoffCapacity {
		t.Errorf("handoff capacity = %d, want default", cfg.Audio.HandoffCapacity)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.2:7000" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "analysis:\n  frame_size: 1000\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "power of 2") {
		t.Errorf("error should name the frame size rule: %v", err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_ANALYSIS_FRAME_SIZE", "1024")
	t.Setenv("ENV_ANALYSIS_ENVELOPE_DECAY", "0.8")
	t.Setenv("ENV_DISPLAY_MAX_FREQUENCY", "not-a-number")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "50ms")

	path := writeTempConfig(t, "analysis:\n  frame_size: 2048\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.Debug {
		t.Error("ENV_DEBUG not applied")
	}
	if cfg.Analysis.FrameSize != 1024 {
		t.Errorf("frame size = %d, want env override 1024", cfg.Analysis.FrameSize)
	}
	if cfg.Analysis.EnvelopeDecay != 0.8 {
		t.Errorf("envelope decay = %g, want 0.8", cfg.Analysis.EnvelopeDecay)
	}
	if cfg.Display.MaxFrequency != DefaultMaxFrequency {
		t.Errorf("unparsable override should be ignored, got %g", cfg.Display.MaxFrequency)
	}
	if cfg.Transport.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("udp interval = %s, want 50ms", cfg.Transport.UDPSendInterval)
	}
}

func TestLoadConfig_InfiniteMaxFrequency(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "display:\n  max_frequency: .inf\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "max_frequency") {
		t.Fatalf("LoadConfig(.inf) error = %v, want max_frequency error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		substr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"frame size not power of two", func(c *Config) { c.Analysis.FrameSize = 3000 }, "frame_size"},
		{"frame size too small", func(c *Config) { c.Analysis.FrameSize = 32 }, "frame_size"},
		{"block policy with step", func(c *Config) { c.Analysis.StepSize = 512 }, "step_size"},
		{"overlap policy without step", func(c *Config) { c.Analysis.Policy = PolicyOverlap }, "step_size"},
		{"overlap policy valid", func(c *Config) {
			c.Analysis.Policy = PolicyOverlap
			c.Analysis.StepSize = 1024
		}, ""},
		{"unknown policy", func(c *Config) { c.Analysis.Policy = "sliding" }, "analysis.policy"},
		{"decay above one", func(c *Config) { c.Analysis.EnvelopeDecay = 1.5 }, "envelope_decay"},
		{"decay of one is peak hold", func(c *Config) { c.Analysis.EnvelopeDecay = 1 }, ""},
		{"zero tick", func(c *Config) { c.Analysis.TickInterval = 0 }, "tick_interval"},
		{"negative max frequency", func(c *Config) { c.Display.MaxFrequency = -1 }, "max_frequency"},
		{"infinite max frequency", func(c *Config) { c.Display.MaxFrequency = math.Inf(1) }, "max_frequency"},
		{"NaN max frequency", func(c *Config) { c.Display.MaxFrequency = math.NaN() }, "max_frequency"},
		{"infinite amplitude scale", func(c *Config) { c.Display.AmplitudeScale = math.Inf(1) }, "amplitude_scale"},
		{"handoff smaller than frame", func(c *Config) { c.Audio.HandoffCapacity = 1024 }, "handoff_capacity"},
		{"sample rate out of range", func(c *Config) { c.Audio.SampleRate = 1000 }, "sample_rate"},
		{"no channels", func(c *Config) { c.Audio.InputChannels = 0 }, "input_channels"},
		{"bad bit depth", func(c *Config) {
			c.Recording.Enabled = true
			c.Recording.BitDepth = 12
		}, "bit_depth"},
		{"udp without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "udp_target_address"},
		{"unknown renderer", func(c *Config) { c.Display.Renderer = "gl" }, "renderer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.substr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("error = %v, want substring %q", err, tt.substr)
			}
		})
	}
}
