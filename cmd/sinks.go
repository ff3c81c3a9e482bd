// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"time"

	"micspectrum/internal/config"
	"micspectrum/internal/transport"
	"micspectrum/internal/transport/udp"
	"micspectrum/internal/tui"
)

const logSpectrumInterval = time.Second

// Sinks are the renderers built from the transport and display settings.
type Sinks struct {
	All       []transport.Sink
	TUI       *tui.Sink // nil unless the tui renderer is selected
	WebSocket *transport.WebSocketSink
	UDP       *udp.UDPPublisher
}

// Close closes every sink that was built.
func (s *Sinks) Close() error {
	return transport.Multi(s.All).Close()
}

// BuildSinks creates the configured sinks. Background publishers are
// started. On error everything already built is closed.
func BuildSinks(cfg *config.Config) (*Sinks, error) {
	s := &Sinks{}
	fail := func(err error) (*Sinks, error) {
		return nil, errors.Join(err, s.Close())
	}

	if cfg.Transport.LogSpectrum {
		s.All = append(s.All, transport.NewLoggingSink(logSpectrumInterval))
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return fail(fmt.Errorf("udp sink: %w", err))
		}
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender)
		if err != nil {
			return fail(errors.Join(fmt.Errorf("udp sink: %w", err), sender.Close()))
		}
		pub.Start()
		s.UDP = pub
		s.All = append(s.All, pub)
	}

	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.ListenWebSocket(cfg.Transport.WebSocketAddress, cfg.Transport.WebSocketInterval)
		if err != nil {
			return fail(fmt.Errorf("websocket sink: %w", err))
		}
		s.WebSocket = ws
		s.All = append(s.All, ws)
	}

	if cfg.Display.Renderer == config.RendererTUI {
		s.TUI = tui.NewSink()
		s.All = append(s.All, s.TUI)
	}

	return s, nil
}
