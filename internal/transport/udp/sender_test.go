// SPDX-License-Identifier: MIT
package udp

import (
	"net"
	"testing"
	"time"
)

func TestUDPSenderSendAndClose(t *testing.T) {
	ln, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket error: %v", err)
	}
	defer ln.Close()

	s, err := NewUDPSender(ln.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender error: %v", err)
	}
	if s.Target().Port != ln.LocalAddr().(*net.UDPAddr).Port {
		t.Errorf("Target() = %v, want %v", s.Target(), ln.LocalAddr())
	}

	if err := s.Send([]byte("spectrum")); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	buf := make([]byte, 64)
	ln.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := ln.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom error: %v", err)
	}
	if string(buf[:n]) != "spectrum" {
		t.Errorf("received %q, want %q", buf[:n], "spectrum")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
	if err := s.Send([]byte("late")); err == nil {
		t.Error("Send after Close should fail")
	}
}

func TestNewUDPSenderBadAddress(t *testing.T) {
	tests := []string{"", "no-port", "127.0.0.1:notaport"}
	for _, addr := range tests {
		if _, err := NewUDPSender(addr); err == nil {
			t.Errorf("NewUDPSender(%q) expected error", addr)
		}
	}
}
