// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"micspectrum/internal/analysis"
	applog "micspectrum/internal/log"
	"micspectrum/internal/transport"
)

// headerSize is the fixed packet prefix: seq, timestamp, sample rate,
// max bin and count.
const headerSize = 4 + 8 + 4 + 2 + 2

// PacketSender is the transmit side used by the publisher.
type PacketSender interface {
	Send(data []byte) error
	Close() error
}

// UDPPublisher keeps the latest snapshot handed to Publish and, on its own
// goroutine, packs the displayed envelope into a binary packet at a fixed
// interval. Publish never blocks on the network.
type UDPPublisher struct {
	sender   PacketSender  // The underlying packet sender.
	interval time.Duration // The interval at which packets are sent.

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	latestMu sync.Mutex
	latest   analysis.Snapshot // Copy of the most recent snapshot.
	lastSent uint64            // Snapshot Seq of the last packet sent.

	sequenceNum uint32 // Monotonically increasing sequence number for packets.
	sent        uint64

	// Pre-allocated buffers reused on every packet.
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// If the provided interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender PacketSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Publish stores a copy of snap for the next packet.
func (p *UDPPublisher) Publish(snap *analysis.Snapshot) error {
	p.latestMu.Lock()
	p.latest.CopyFrom(snap)
	p.latestMu.Unlock()
	return nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Capture locals so the goroutine never reads p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop gracefully signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished after %d packets.", p.sent)
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Sample Rate       | uint32         | 4            | Stream rate in Hz       |
| Max Bin           | uint16         | 2            | Display ceiling bin     |
| Envelope Count    | uint16         | 2            | Number of floats (N)    |
| Envelope          | []float32      | N * 4        | Smoothed magnitudes     |
+-----------------------------------------------------------------------------+

N equals Max Bin: only the displayed bins are sent.
*/

// buildAndSendPacket packs the latest snapshot and sends it. A snapshot
// that was already sent is skipped.
func (p *UDPPublisher) buildAndSendPacket() {
	p.latestMu.Lock()
	if p.latest.Seq == 0 || p.latest.Seq == p.lastSent {
		p.latestMu.Unlock()
		return
	}
	p.lastSent = p.latest.Seq
	sampleRate := p.latest.SampleRate
	maxBin := p.latest.MaxBin
	visible := p.latest.Visible()
	p.f32Buffer = p.f32Buffer[:0]
	for _, v := range visible {
		p.f32Buffer = append(p.f32Buffer, float32(v))
	}
	p.latestMu.Unlock()

	p.sequenceNum++
	packet, err := p.encode(p.sequenceNum, time.Now().UnixNano(), sampleRate, maxBin, p.f32Buffer)
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return
	}

	if err := p.sender.Send(packet); err == nil {
		p.sent++
	}
}

func (p *UDPPublisher) encode(seq uint32, timestamp int64, sampleRate float64, maxBin int, envelope []float32) ([]byte, error) {
	if len(envelope) > 0xFFFF || maxBin > 0xFFFF {
		return nil, fmt.Errorf("envelope of %d bins does not fit a packet", len(envelope))
	}

	p.packetBuffer.Reset()
	w := p.packetBuffer

	// Chain error checks for cleaner code.
	err := binary.Write(w, binary.BigEndian, seq)
	if err == nil {
		err = binary.Write(w, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(w, binary.BigEndian, uint32(sampleRate))
	}
	if err == nil {
		err = binary.Write(w, binary.BigEndian, uint16(maxBin))
	}
	if err == nil {
		err = binary.Write(w, binary.BigEndian, uint16(len(envelope)))
	}
	if err == nil {
		err = binary.Write(w, binary.BigEndian, envelope)
	}
	if err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Packet is a decoded spectrum packet.
type Packet struct {
	Seq        uint32
	Timestamp  int64
	SampleRate uint32
	MaxBin     uint16
	Envelope   []float32
}

// DecodePacket parses a packet produced by UDPPublisher.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) < headerSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(data))
	}

	var pkt Packet
	r := bytes.NewReader(data)
	var count uint16
	for _, field := range []any{&pkt.Seq, &pkt.Timestamp, &pkt.SampleRate, &pkt.MaxBin, &count} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return Packet{}, err
		}
	}

	if want := headerSize + int(count)*4; len(data) != want {
		return Packet{}, fmt.Errorf("packet length %d does not match %d bins", len(data), count)
	}
	pkt.Envelope = make([]float32, count)
	if err := binary.Read(r, binary.BigEndian, pkt.Envelope); err != nil && !errors.Is(err, io.EOF) {
		return Packet{}, err
	}
	return pkt, nil
}

// Sent returns the number of packets handed to the sender successfully.
// Only meaningful after Stop.
func (p *UDPPublisher) Sent() uint64 { return p.sent }

// Close stops the publisher and closes the sender.
func (p *UDPPublisher) Close() error {
	return errors.Join(p.Stop(), p.sender.Close())
}

// Ensure UDPPublisher satisfies the Sink interface at compile time.
var _ transport.Sink = (*UDPPublisher)(nil)
