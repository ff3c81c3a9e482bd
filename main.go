// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"micspectrum/cmd"
	"micspectrum/internal/audio"
	"micspectrum/internal/config"
	"micspectrum/internal/engine"
	applog "micspectrum/internal/log"
	"micspectrum/internal/tui"
	"micspectrum/pkg/build"
)

// main is the entry point for the spectrum analyzer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Initialize PortAudio and open the capture device
//
// 2. Concurrent Phase (Hot Path):
//   - The PortAudio callback feeds the handoff queue
//   - The engine ticks the analysis and publishes snapshots
//   - The renderer (TUI or network sinks) consumes them
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or the TUI quitting
//   - Stop the engine, close the stream, sinks and recording
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build info incomplete: %v", err)
	}

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if cfg == nil {
		return // help or version flag
	}

	if err := applog.Configure(cfg.LogLevel, cfg.Debug); err != nil {
		applog.Warnf("%v", err)
	}

	if err := execute(cfg); err != nil {
		applog.Fatalf("%v", err)
	}
}

func execute(cfg *config.Config) error {
	switch cfg.Command {
	case cmd.CommandVersion:
		fmt.Println(build.Get())
		return nil

	case cmd.CommandList:
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		return audio.ListDevices(os.Stdout)

	case cmd.CommandDevices:
		sel, ok, err := tui.PickDevice()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cfg.Audio.InputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
	}

	return run(cfg)
}

func run(cfg *config.Config) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	bridge, err := audio.Open(cfg.Audio)
	if err != nil {
		return err
	}

	sinks, err := cmd.BuildSinks(cfg)
	if err != nil {
		bridge.Close()
		return err
	}

	eng, err := engine.New(cfg, bridge, sinks.All...)
	if err != nil {
		bridge.Close()
		sinks.Close()
		return err
	}

	// The alternate screen belongs to the TUI; keep log lines off it.
	if sinks.TUI != nil {
		restore, err := redirectLogs(cfg.LogFile)
		if err != nil {
			eng.Close()
			return err
		}
		defer restore()
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	if err := eng.Start(); err != nil {
		eng.Close()
		return err
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	if sinks.TUI != nil {
		go func() {
			<-done
			sinks.TUI.Close()
		}()

		title := fmt.Sprintf("%s · %s", build.Get().Name, bridge.Device().Name)
		if err := tui.StartSpectrumUI(sinks.TUI, title, cfg.Display.AmplitudeScale); err != nil {
			applog.Errorf("TUI exited: %v", err)
		}
	} else {
		applog.Infof("Running without a renderer; press Ctrl+C to stop.")
		<-done
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	return eng.Close()
}

// redirectLogs sends log output to path, or discards it when path is empty.
func redirectLogs(path string) (func(), error) {
	if path == "" {
		applog.SetOutput(io.Discard)
		return func() { applog.SetOutput(os.Stderr) }, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	applog.SetOutput(f)
	return func() {
		applog.SetOutput(os.Stderr)
		f.Close()
	}, nil
}
