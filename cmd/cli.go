// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"micspectrum/internal/config"
	"micspectrum/pkg/build"
)

// Commands selected on the command line.
const (
	CommandRun     = "run"
	CommandList    = "list"
	CommandDevices = "devices"
	CommandVersion = "version"
)

// flagValues holds everything that can be set from the command line. Only
// flags the user actually passed override the loaded configuration.
type flagValues struct {
	configPath string

	device          int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool

	frameSize int
	stepSize  int
	policy    string
	window    string
	decay     float64
	gate      float64

	maxFrequency float64
	scale        float64
	renderer     string

	record bool
	output string

	udp          bool
	udpTarget    string
	websocket    bool
	websocketURL string
	logSpectrum  bool

	verbose  bool
	logLevel string
	logFile  string
}

// ParseArgs parses args, loads the configuration file and applies flag
// overrides. The returned config's Command names what main should do.
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.Get()
	defaults := config.Default()
	var (
		fv      flagValues
		command string
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			command = CommandRun
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetArgs(args)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available audio devices",
			Args:  cobra.NoArgs,
			Run:   func(cmd *cobra.Command, args []string) { command = CommandList },
		},
		&cobra.Command{
			Use:   "devices",
			Short: "Pick an input device interactively, then run",
			Args:  cobra.NoArgs,
			Run:   func(cmd *cobra.Command, args []string) { command = CommandDevices },
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run:   func(cmd *cobra.Command, args []string) { command = CommandVersion },
		},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&fv.configPath, "config", "f", "",
		"Path to a YAML configuration file (default: ./config.yaml or ./micspectrum.yaml if present)")

	// Audio Device Configuration
	flags.IntVarP(&fv.device, "device", "d", defaults.Audio.InputDevice,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.IntVarP(&fv.channels, "channels", "c", defaults.Audio.InputChannels,
		"Number of channels to capture; more than one is downmixed to mono")
	flags.Float64VarP(&fv.sampleRate, "sample-rate", "s", defaults.Audio.SampleRate,
		"Sample rate, measured in Hertz (Hz). 0 uses the device default")
	flags.IntVarP(&fv.framesPerBuffer, "frames-per-buffer", "b", defaults.Audio.FramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&fv.lowLatency, "low-latency", "l", defaults.Audio.LowLatency,
		"Use low latency mode for real-time processing")

	// Analysis
	flags.IntVar(&fv.frameSize, "frame-size", defaults.Analysis.FrameSize,
		"Transform length in samples (power of 2)")
	flags.IntVar(&fv.stepSize, "step-size", defaults.Analysis.StepSize,
		"Hop between frames for the overlap policy (0 = frame size)")
	flags.StringVar(&fv.policy, "policy", defaults.Analysis.Policy,
		"Frame policy: block (never drop) or overlap (drop stale frames)")
	flags.StringVar(&fv.window, "window", defaults.Analysis.Window,
		"Window function: hann, hamming, blackman, blackmannuttall, bartletthann, lanczos, nuttall, rectangular")
	flags.Float64Var(&fv.decay, "decay", defaults.Analysis.EnvelopeDecay,
		"Envelope decay constant K in [0, 1]")
	flags.Float64Var(&fv.gate, "gate", defaults.Analysis.GateThreshold,
		"Noise gate peak threshold in [0, 1] (0 disables)")

	// Display
	flags.Float64Var(&fv.maxFrequency, "max-frequency", defaults.Display.MaxFrequency,
		"Highest frequency shown, in Hz")
	flags.Float64Var(&fv.scale, "scale", defaults.Display.AmplitudeScale,
		"Envelope magnitude that fills a bar")
	flags.StringVar(&fv.renderer, "renderer", defaults.Display.Renderer,
		"Renderer: tui or none")

	// Recording Configuration
	flags.BoolVarP(&fv.record, "record", "r", defaults.Recording.Enabled,
		"Record the captured mono signal to a WAV file")
	flags.StringVarP(&fv.output, "output", "o", defaults.Recording.OutputFile,
		"Output file name. Default is micspectrum-YYYYMMDD-HHMMSS.wav")

	// Transport
	flags.BoolVar(&fv.udp, "udp", defaults.Transport.UDPEnabled,
		"Send envelope packets over UDP")
	flags.StringVar(&fv.udpTarget, "udp-target", defaults.Transport.UDPTargetAddress,
		"UDP target address")
	flags.BoolVar(&fv.websocket, "websocket", defaults.Transport.WebSocketEnabled,
		"Serve snapshots to WebSocket clients on /ws")
	flags.StringVar(&fv.websocketURL, "websocket-addr", defaults.Transport.WebSocketAddress,
		"WebSocket listen address")
	flags.BoolVar(&fv.logSpectrum, "log-spectrum", defaults.Transport.LogSpectrum,
		"Log the spectrum peak at debug level")

	// Debug Configuration
	flags.BoolVarP(&fv.verbose, "verbose", "v", defaults.Debug,
		"Show verbose output; transform errors become fatal")
	flags.StringVar(&fv.logLevel, "log-level", defaults.LogLevel,
		"Log level: debug, info, warn, error")
	flags.StringVar(&fv.logFile, "log-file", defaults.LogFile,
		"Write logs to this file (the TUI discards logs otherwise)")

	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if command == "" {
		// --help or --version was handled by cobra.
		return nil, nil
	}

	cfg, err := config.LoadConfig(fv.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, &fv, flags)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Command = command
	return cfg, nil
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(cfg *config.Config, fv *flagValues, flags *pflag.FlagSet) {
	overrides := map[string]func(){
		"device":            func() { cfg.Audio.InputDevice = fv.device },
		"channels":          func() { cfg.Audio.InputChannels = fv.channels },
		"sample-rate":       func() { cfg.Audio.SampleRate = fv.sampleRate },
		"frames-per-buffer": func() { cfg.Audio.FramesPerBuffer = fv.framesPerBuffer },
		"low-latency":       func() { cfg.Audio.LowLatency = fv.lowLatency },
		"frame-size":        func() { cfg.Analysis.FrameSize = fv.frameSize },
		"step-size":         func() { cfg.Analysis.StepSize = fv.stepSize },
		"policy":            func() { cfg.Analysis.Policy = fv.policy },
		"window":            func() { cfg.Analysis.Window = fv.window },
		"decay":             func() { cfg.Analysis.EnvelopeDecay = fv.decay },
		"gate":              func() { cfg.Analysis.GateThreshold = fv.gate },
		"max-frequency":     func() { cfg.Display.MaxFrequency = fv.maxFrequency },
		"scale":             func() { cfg.Display.AmplitudeScale = fv.scale },
		"renderer":          func() { cfg.Display.Renderer = fv.renderer },
		"record":            func() { cfg.Recording.Enabled = fv.record },
		"output":            func() { cfg.Recording.OutputFile = fv.output },
		"udp":               func() { cfg.Transport.UDPEnabled = fv.udp },
		"udp-target":        func() { cfg.Transport.UDPTargetAddress = fv.udpTarget },
		"websocket":         func() { cfg.Transport.WebSocketEnabled = fv.websocket },
		"websocket-addr":    func() { cfg.Transport.WebSocketAddress = fv.websocketURL },
		"log-spectrum":      func() { cfg.Transport.LogSpectrum = fv.logSpectrum },
		"verbose":           func() { cfg.Debug = fv.verbose },
		"log-level":         func() { cfg.LogLevel = fv.logLevel },
		"log-file":          func() { cfg.LogFile = fv.logFile },
	}

	// Subcommands parse into their own flag set, so check Changed on the
	// shared flag rather than visiting the persistent set.
	flags.VisitAll(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; f.Changed && ok {
			apply()
		}
	})
}
