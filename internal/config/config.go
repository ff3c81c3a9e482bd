// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for the analyzer. The analysis defaults mirror the
// classic 2048-point, 6 kHz, K=0.95 setup.
const (
	DefaultInputDevice     = MinDeviceID // System default input device
	DefaultInputChannels   = 1           // Mono capture
	DefaultSampleRate      = 0           // Use the device's default rate
	DefaultFramesPerBuffer = 0           // Let the driver choose
	DefaultHandoffCapacity = 1 << 17     // ~2.7s of mono audio at 48 kHz

	DefaultFrameSize     = 2048
	DefaultPolicy        = PolicyBlock
	DefaultWindow        = "hann"
	DefaultEnvelopeDecay = 0.95
	DefaultTickInterval  = 16 * time.Millisecond // ~60Hz host cadence

	DefaultMaxFrequency   = 6000.0 // Hz
	DefaultAmplitudeScale = 25.0   // Envelope magnitude that fills a bar
	DefaultRenderer       = RendererTUI

	DefaultRecordingDir = "./recordings"
	DefaultBitDepth     = 16

	DefaultUDPTargetAddress  = "127.0.0.1:9090"
	DefaultUDPSendInterval   = 33 * time.Millisecond
	DefaultWebSocketAddress  = ":8080"
	DefaultWebSocketInterval = 33 * time.Millisecond

	// Hardware and processing limits
	MinDeviceID   = -1     // -1 represents system default device
	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
	MinFrameSize  = 64
	MaxFrameSize  = 1 << 16
)

// Frame assembly policies.
const (
	PolicyBlock   = "block"
	PolicyOverlap = "overlap"
)

// Renderers selectable from the command line.
const (
	RendererTUI  = "tui"
	RendererNone = "none"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultInputDevice,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      false,
			InputChannels:   DefaultInputChannels,
			HandoffCapacity: DefaultHandoffCapacity,
		},
		Analysis: AnalysisConfig{
			FrameSize:     DefaultFrameSize,
			StepSize:      0, // Same as frame size
			Policy:        DefaultPolicy,
			Window:        DefaultWindow,
			EnvelopeDecay: DefaultEnvelopeDecay,
			GateThreshold: 0,
			TickInterval:  DefaultTickInterval,
		},
		Display: DisplayConfig{
			MaxFrequency:   DefaultMaxFrequency,
			AmplitudeScale: DefaultAmplitudeScale,
			Renderer:       DefaultRenderer,
		},
		Recording: RecordingConfig{
			Enabled:     false,
			OutputDir:   DefaultRecordingDir,
			Format:      "wav",
			BitDepth:    DefaultBitDepth,
			MaxDuration: 0, // Unlimited
		},
		Transport: TransportConfig{
			UDPEnabled:        false,
			UDPTargetAddress:  DefaultUDPTargetAddress,
			UDPSendInterval:   DefaultUDPSendInterval,
			WebSocketEnabled:  false,
			WebSocketAddress:  DefaultWebSocketAddress,
			WebSocketInterval: DefaultWebSocketInterval,
			LogSpectrum:       false,
		},
	}
}
