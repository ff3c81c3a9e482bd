// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gordonklaus/portaudio"

	"micspectrum/internal/config"
)

type fakeStream struct {
	info     *portaudio.StreamInfo
	startErr error
	stopErr  error
	started  bool
	stopped  bool
	closed   bool
}

func (s *fakeStream) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error                 { s.stopped = true; return s.stopErr }
func (s *fakeStream) Close() error                { s.closed = true; return nil }
func (s *fakeStream) Info() *portaudio.StreamInfo { return s.info }

// fakeOpener records every open attempt and hands out fake streams.
type fakeOpener struct {
	reject   map[float64]bool
	startErr error
	info     *portaudio.StreamInfo
	params   []portaudio.StreamParameters
	streams  []*fakeStream
	callback func([]float32)
}

func mockOpenStream(t testing.TB, o *fakeOpener) {
	t.Helper()
	orig := paOpenStream
	t.Cleanup(func() { paOpenStream = orig })

	paOpenStream = func(params portaudio.StreamParameters, cb func([]float32)) (paStream, error) {
		o.params = append(o.params, params)
		if o.reject[params.SampleRate] {
			return nil, fmt.Errorf("invalid sample rate %.0f", params.SampleRate)
		}
		s := &fakeStream{startErr: o.startErr, info: o.info}
		o.streams = append(o.streams, s)
		o.callback = cb
		return s, nil
	}
}

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{
		InputDevice:     config.MinDeviceID,
		InputChannels:   1,
		FramesPerBuffer: 256,
		HandoffCapacity: 1 << 12,
	}
}

func openTestBridge(t *testing.T, cfg config.AudioConfig) (*Bridge, *fakeOpener) {
	t.Helper()
	mockDevices(t, testDeviceInfos(), 0)
	opener := &fakeOpener{}
	mockOpenStream(t, opener)

	b, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, opener
}

func TestBridgeStartMono(t *testing.T) {
	cfg := testAudioConfig()
	cfg.SampleRate = 44100
	b, opener := openTestBridge(t, cfg)

	rate, reader, err := b.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if rate != 44100 || b.SampleRate() != 44100 {
		t.Errorf("rate = %v, want 44100", rate)
	}

	p := opener.params[0]
	if p.Input.Channels != 1 || p.Output.Channels != 0 || p.FramesPerBuffer != 256 {
		t.Errorf("unexpected stream parameters: %+v", p)
	}
	if p.Input.Latency != testDeviceInfos()[0].DefaultHighInputLatency {
		t.Errorf("latency = %v, want the high input latency", p.Input.Latency)
	}
	if !opener.streams[0].started {
		t.Error("stream was not started")
	}

	opener.callback([]float32{0.1, 0.2, 0.3})
	opener.callback([]float32{0.4})
	got := reader.Drain(nil)
	want := []float32{0.1, 0.2, 0.3, 0.4}
	if len(got) != len(want) {
		t.Fatalf("Drain() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
	if b.Callbacks() != 2 {
		t.Errorf("Callbacks() = %d, want 2", b.Callbacks())
	}
}

func TestBridgeDeviceDefaultRate(t *testing.T) {
	b, opener := openTestBridge(t, testAudioConfig())

	rate, _, err := b.Start()
	if err != nil {
		t.Fatal(err)
	}
	if rate != 48000 || len(opener.params) != 1 {
		t.Errorf("rate = %v after %d attempts, want device default 48000 at once", rate, len(opener.params))
	}
}

func TestBridgeStreamInfoRateWins(t *testing.T) {
	b, opener := openTestBridge(t, testAudioConfig())
	opener.info = &portaudio.StreamInfo{SampleRate: 47999}

	rate, _, err := b.Start()
	if err != nil {
		t.Fatal(err)
	}
	if rate != 47999 {
		t.Errorf("rate = %v, want the stream's reported 47999", rate)
	}
}

func TestBridgeFallsBackToDefaultRate(t *testing.T) {
	cfg := testAudioConfig()
	cfg.SampleRate = 96000
	b, opener := openTestBridge(t, cfg)
	opener.reject = map[float64]bool{96000: true}

	rate, _, err := b.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if rate != 48000 {
		t.Errorf("rate = %v, want fallback 48000", rate)
	}
	if len(opener.params) != 2 || opener.params[0].SampleRate != 96000 {
		t.Errorf("open attempts = %+v, want 96000 then 48000", opener.params)
	}
}

func TestBridgeUnsupportedConfig(t *testing.T) {
	cfg := testAudioConfig()
	cfg.SampleRate = 96000
	b, opener := openTestBridge(t, cfg)
	opener.reject = map[float64]bool{96000: true, 48000: true}

	_, reader, err := b.Start()
	if !errors.Is(err, ErrUnsupportedConfig) {
		t.Fatalf("Start() error = %v, want ErrUnsupportedConfig", err)
	}
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Device != "Built-in Microphone" {
		t.Errorf("error = %#v, want *DeviceError naming the device", err)
	}
	if reader != nil {
		t.Error("reader returned on failure")
	}
}

func TestBridgeStartFailureClosesStream(t *testing.T) {
	b, opener := openTestBridge(t, testAudioConfig())
	opener.startErr = errors.New("device busy")

	if _, _, err := b.Start(); !errors.Is(err, ErrUnsupportedConfig) {
		t.Fatalf("Start() error = %v, want ErrUnsupportedConfig", err)
	}
	for i, s := range opener.streams {
		if !s.closed {
			t.Errorf("stream %d left open after failed start", i)
		}
	}
}

func TestBridgeStartTwice(t *testing.T) {
	b, _ := openTestBridge(t, testAudioConfig())
	if _, _, err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.Start(); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestBridgeCloseStopsStream(t *testing.T) {
	b, opener := openTestBridge(t, testAudioConfig())
	if _, _, err := b.Start(); err != nil {
		t.Fatal(err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	s := opener.streams[0]
	if !s.stopped || !s.closed {
		t.Errorf("stream stopped=%v closed=%v, want both", s.stopped, s.closed)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestBridgeStopErrorReported(t *testing.T) {
	b, opener := openTestBridge(t, testAudioConfig())
	if _, _, err := b.Start(); err != nil {
		t.Fatal(err)
	}
	opener.streams[0].stopErr = errors.New("stop failed")

	if err := b.Stop(); err == nil {
		t.Error("Stop() should report the stream error")
	}
	if !opener.streams[0].closed {
		t.Error("stream should be closed even when Stop fails")
	}
}

func TestBridgeChannelClamp(t *testing.T) {
	cfg := testAudioConfig()
	cfg.InputChannels = 8
	b, opener := openTestBridge(t, cfg)

	if b.Channels() != 2 {
		t.Fatalf("Channels() = %d, want device maximum 2", b.Channels())
	}
	if _, _, err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if opener.params[0].Input.Channels != 2 {
		t.Errorf("stream opened with %d channels, want 2", opener.params[0].Input.Channels)
	}
}

func TestBridgeStereoDownmix(t *testing.T) {
	cfg := testAudioConfig()
	cfg.InputChannels = 2
	b, opener := openTestBridge(t, cfg)
	_, reader, err := b.Start()
	if err != nil {
		t.Fatal(err)
	}

	opener.callback([]float32{1, 3, -1, 1, 0.5, 0.5})
	got := reader.Drain(nil)
	want := []float32{2, 0, 0.5}
	if len(got) != len(want) {
		t.Fatalf("Drain() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBridgeDownmixLargerThanScratch(t *testing.T) {
	cfg := testAudioConfig()
	cfg.InputChannels = 2
	cfg.FramesPerBuffer = 0 // driver chooses
	cfg.HandoffCapacity = 1 << 15
	b, opener := openTestBridge(t, cfg)
	_, reader, err := b.Start()
	if err != nil {
		t.Fatal(err)
	}

	const frames = 3*scratchFrames + 17
	in := make([]float32, 2*frames)
	for f := 0; f < frames; f++ {
		in[2*f] = float32(f)
		in[2*f+1] = float32(f)
	}
	opener.callback(in)

	got := reader.Drain(nil)
	if len(got) != frames {
		t.Fatalf("drained %d frames, want %d", len(got), frames)
	}
	for f, v := range got {
		if v != float32(f) {
			t.Fatalf("frame %d = %v, want %v", f, v, float32(f))
		}
	}
}

func TestBridgeGenericDownmix(t *testing.T) {
	infos := testDeviceInfos()
	infos[0].MaxInputChannels = 4
	mockDevices(t, infos, 0)
	opener := &fakeOpener{}
	mockOpenStream(t, opener)

	cfg := testAudioConfig()
	cfg.InputChannels = 3
	b, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	_, reader, err := b.Start()
	if err != nil {
		t.Fatal(err)
	}

	opener.callback([]float32{3, 0, 0, 1, 1, 1})
	got := reader.Drain(nil)
	if len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Errorf("Drain() = %v, want [1 1]", got)
	}
}

func TestBridgeCallbackRecoversPanic(t *testing.T) {
	b, opener := openTestBridge(t, testAudioConfig())
	if _, _, err := b.Start(); err != nil {
		t.Fatal(err)
	}

	b.queue = nil // Push on a nil queue panics inside the callback.
	opener.callback([]float32{1, 2})

	if b.Panics() != 1 {
		t.Errorf("Panics() = %d, want 1", b.Panics())
	}
}

func TestBridgeDropsWhenQueueFull(t *testing.T) {
	cfg := testAudioConfig()
	cfg.HandoffCapacity = 1024
	b, opener := openTestBridge(t, cfg)
	_, reader, err := b.Start()
	if err != nil {
		t.Fatal(err)
	}

	opener.callback(make([]float32, 1000))
	opener.callback(make([]float32, 1000))
	if reader.Dropped() != 976 {
		t.Errorf("Dropped() = %d, want 976", reader.Dropped())
	}
	if n := len(reader.Drain(nil)); n != 1024 {
		t.Errorf("drained %d samples, want 1024", n)
	}
}

func TestBridgeCallbackZeroAllocs(t *testing.T) {
	tests := []struct {
		name     string
		channels int
	}{
		{"mono", 1},
		{"stereo", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAudioConfig()
			cfg.InputChannels = tt.channels
			cfg.HandoffCapacity = 1 << 16
			b, opener := openTestBridge(t, cfg)
			_, reader, err := b.Start()
			if err != nil {
				t.Fatal(err)
			}

			in := make([]float32, 256*tt.channels)
			drain := make([]float32, 0, 1<<16)
			allocs := testing.AllocsPerRun(100, func() {
				opener.callback(in)
				drain = reader.Drain(drain[:0])
			})
			if allocs > 0 {
				t.Errorf("Expected zero allocations in the capture callback, got %.1f", allocs)
			}
		})
	}
}

func BenchmarkBridgeCallbackStereo(b *testing.B) {
	mockDevices(b, testDeviceInfos(), 0)
	cfg := testAudioConfig()
	cfg.InputChannels = 2
	cfg.HandoffCapacity = 1 << 16
	bridge, err := Open(cfg)
	if err != nil {
		b.Fatal(err)
	}
	in := make([]float32, 512)
	drain := make([]float32, 0, 1<<16)

	b.ReportAllocs()
	for b.Loop() {
		bridge.process(in)
		drain = bridge.queue.Drain(drain[:0])
	}
}
