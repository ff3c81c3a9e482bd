// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"micspectrum/internal/config"
)

func decodeWAV(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatalf("%s is not a valid WAV file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode recording: %v", err)
	}
	return d, buf.Data
}

func TestRecorderWritesDecodableWAV(t *testing.T) {
	tests := []struct {
		bitDepth  int
		fullScale int
	}{
		{16, 32767},
		{24, 8388607},
		{32, 2147483647},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-bit", tt.bitDepth), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "take.wav")
			r, err := NewRecorder(path, 48000, tt.bitDepth, 0)
			if err != nil {
				t.Fatalf("NewRecorder() error = %v", err)
			}

			if err := r.WriteSamples([]float32{0, 0.5, -0.5, 1}); err != nil {
				t.Fatalf("WriteSamples() error = %v", err)
			}
			if err := r.WriteSamples([]float32{2, -3}); err != nil { // clipped
				t.Fatalf("WriteSamples() error = %v", err)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			d, data := decodeWAV(t, path)
			if d.NumChans != 1 || d.SampleRate != 48000 || int(d.BitDepth) != tt.bitDepth {
				t.Errorf("header = %d ch, %d Hz, %d bit; want 1, 48000, %d", d.NumChans, d.SampleRate, d.BitDepth, tt.bitDepth)
			}

			fs := tt.fullScale
			want := []int{0, fs / 2, -(fs / 2), fs, fs, -fs}
			if len(data) != len(want) {
				t.Fatalf("decoded %d samples, want %d", len(data), len(want))
			}
			for i := range want {
				if diff := data[i] - want[i]; diff < -1 || diff > 1 {
					t.Errorf("sample %d = %d, want %d", i, data[i], want[i])
				}
			}
		})
	}
}

func TestRecorderMaxDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capped.wav")
	r, err := NewRecorder(path, 8000, 16, 1)
	if err != nil {
		t.Fatal(err)
	}

	chunk := make([]float32, 3000)
	for i := 0; i < 4; i++ {
		if err := r.WriteSamples(chunk); err != nil {
			t.Fatalf("WriteSamples() error = %v", err)
		}
	}
	if r.Written() != 8000 {
		t.Errorf("Written() = %d, want 8000", r.Written())
	}
	if r.Duration() != time.Second {
		t.Errorf("Duration() = %v, want 1s", r.Duration())
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	_, data := decodeWAV(t, path)
	if len(data) != 8000 {
		t.Errorf("decoded %d samples, want 8000", len(data))
	}
}

func TestRecorderErrorCases(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		desc       string
		path       string
		sampleRate float64
		bitDepth   int
	}{
		{"Bad bit depth", filepath.Join(dir, "a.wav"), 48000, 12},
		{"Bad sample rate", filepath.Join(dir, "b.wav"), 0, 16},
		{"Path is a directory", dir, 48000, 16},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := NewRecorder(tt.path, tt.sampleRate, tt.bitDepth, 0); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestRecorderCloseTwiceAndWriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "rec.wav")
	r, err := NewRecorder(path, 44100, 16, 0)
	if err != nil {
		t.Fatalf("NewRecorder() should create missing directories: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := r.WriteSamples([]float32{0}); err == nil {
		t.Error("WriteSamples after Close should fail")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("recording file missing: %v", err)
	}
}

func TestRecordingPath(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	tests := []struct {
		name string
		cfg  config.RecordingConfig
		want string
	}{
		{"generated", config.RecordingConfig{OutputDir: "recs"}, filepath.Join("recs", "micspectrum-20250314-150926.wav")},
		{"explicit relative", config.RecordingConfig{OutputDir: "recs", OutputFile: "take.wav"}, filepath.Join("recs", "take.wav")},
		{"explicit absolute", config.RecordingConfig{OutputDir: "recs", OutputFile: "/tmp/take.wav"}, "/tmp/take.wav"},
		{"no directory", config.RecordingConfig{OutputFile: "take.wav"}, "take.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecordingPath(tt.cfg, now); got != tt.want {
				t.Errorf("RecordingPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func BenchmarkRecorderWrite(b *testing.B) {
	r, err := NewRecorder(filepath.Join(b.TempDir(), "bench.wav"), 48000, 16, 0)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()
	chunk := make([]float32, 1024)

	b.ReportAllocs()
	for b.Loop() {
		_ = r.WriteSamples(chunk)
	}
}
