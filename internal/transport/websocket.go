// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"micspectrum/internal/analysis"
	applog "micspectrum/internal/log"
)

const (
	broadcastQueueSize = 16
	writeTimeout       = time.Second
)

// SpectrumMessage is the JSON document sent to WebSocket clients. Only the
// displayed bins (below MaxBin) are included.
type SpectrumMessage struct {
	Type       string               `json:"type"`
	Seq        uint64               `json:"seq"`
	SampleRate float64              `json:"sampleRate"`
	FrameSize  int                  `json:"frameSize"`
	MaxBin     int                  `json:"maxBin"`
	BinWidth   float64              `json:"binWidth"`
	Dropped    uint64               `json:"dropped"`
	Envelope   []float64            `json:"envelope"`
	Raw        []float64            `json:"raw"`
	Bands      []analysis.BandLevel `json:"bands,omitempty"`
}

// WebSocketSink broadcasts spectrum snapshots as JSON to every client
// connected on /ws. Slow clients never stall the analysis tick: when the
// broadcast queue is full the message is dropped.
type WebSocketSink struct {
	upgrader    websocket.Upgrader
	clients     map[*websocket.Conn]bool
	clientsMu   sync.Mutex
	clientCount atomic.Int32 // Mirrors len(clients) for the Publish fast path.
	broadcast   chan []byte
	done        chan struct{}
	wg          sync.WaitGroup
	server      *http.Server
	listener    net.Listener
	minInterval time.Duration
	lastSend    time.Time
	dropped     atomic.Uint64
	closeOnce   sync.Once
}

// NewWebSocketSink creates a sink without a listener. Mount Handler on a
// server of your choice, or use ListenWebSocket.
func NewWebSocketSink(minInterval time.Duration) *WebSocketSink {
	ws := &WebSocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Renderers are local browser pages.
			},
		},
		clients:     make(map[*websocket.Conn]bool),
		broadcast:   make(chan []byte, broadcastQueueSize),
		done:        make(chan struct{}),
		minInterval: minInterval,
	}

	ws.wg.Add(1)
	go ws.handleBroadcasts()
	return ws
}

// ListenWebSocket binds addr and serves the sink on /ws. Bind errors are
// returned immediately.
func ListenWebSocket(addr string, minInterval time.Duration) (*WebSocketSink, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ws := NewWebSocketSink(minInterval)
	ws.listener = ln
	ws.server = &http.Server{
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		applog.Infof("WebSocketSink: Serving spectrum on ws://%s/ws", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketSink: Server error: %v", err)
		}
	}()
	return ws, nil
}

// Handler returns an http.Handler serving the WebSocket endpoint at /ws.
func (ws *WebSocketSink) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.handleWebSocket)
	return mux
}

// Addr returns the listen address, or nil when not listening.
func (ws *WebSocketSink) Addr() net.Addr {
	if ws.listener == nil {
		return nil
	}
	return ws.listener.Addr()
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (ws *WebSocketSink) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketSink: Upgrade error: %v", err)
		return
	}

	select {
	case <-ws.done:
		conn.Close()
		return
	default:
	}

	ws.clientsMu.Lock()
	ws.clients[conn] = true
	total := len(ws.clients)
	ws.clientCount.Store(int32(total))
	ws.clientsMu.Unlock()
	applog.Infof("WebSocketSink: Client connected from %s, total: %d", conn.RemoteAddr(), total)

	// Clients only listen; reading detects the disconnect.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				ws.removeClient(conn)
				return
			}
		}
	}()
}

func (ws *WebSocketSink) removeClient(conn *websocket.Conn) {
	ws.clientsMu.Lock()
	_, ok := ws.clients[conn]
	delete(ws.clients, conn)
	total := len(ws.clients)
	ws.clientCount.Store(int32(total))
	ws.clientsMu.Unlock()

	if ok {
		conn.Close()
		applog.Infof("WebSocketSink: Client disconnected, total: %d", total)
	}
}

// Clients returns the number of connected clients.
func (ws *WebSocketSink) Clients() int {
	return int(ws.clientCount.Load())
}

// Dropped returns how many messages were discarded because the broadcast
// queue was full.
func (ws *WebSocketSink) Dropped() uint64 { return ws.dropped.Load() }

// handleBroadcasts sends messages to all connected clients. Writes happen
// outside clientsMu so a slow client only delays this goroutine.
func (ws *WebSocketSink) handleBroadcasts() {
	defer ws.wg.Done()
	var targets []*websocket.Conn
	for {
		select {
		case <-ws.done:
			return
		case msg := <-ws.broadcast:
			targets = targets[:0]
			ws.clientsMu.Lock()
			for client := range ws.clients {
				targets = append(targets, client)
			}
			ws.clientsMu.Unlock()

			for _, client := range targets {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
					applog.Warnf("WebSocketSink: Error sending to client: %v", err)
					ws.removeClient(client)
				}
			}
		}
	}
}

// Publish encodes the snapshot and queues it for broadcast. Nothing is
// encoded while no client is connected or within minInterval of the last
// message.
func (ws *WebSocketSink) Publish(snap *analysis.Snapshot) error {
	if ws.Clients() == 0 {
		return nil
	}
	now := time.Now()
	if ws.minInterval > 0 && now.Sub(ws.lastSend) < ws.minInterval {
		return nil
	}

	visible := min(snap.MaxBin, len(snap.Envelope))
	msg := SpectrumMessage{
		Type:       "spectrum",
		Seq:        snap.Seq,
		SampleRate: snap.SampleRate,
		FrameSize:  snap.FrameSize,
		MaxBin:     snap.MaxBin,
		BinWidth:   analysis.BinWidth(snap.SampleRate, snap.FrameSize),
		Dropped:    snap.Dropped,
		Envelope:   snap.Envelope[:visible],
		Raw:        snap.Raw[:min(visible, len(snap.Raw))],
		Bands:      snap.Bands,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode spectrum message: %w", err)
	}

	select {
	case ws.broadcast <- data:
		ws.lastSend = now
	default:
		ws.dropped.Add(1)
	}
	return nil
}

// Close shuts down the server, disconnects every client and stops the
// broadcast goroutine.
func (ws *WebSocketSink) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		applog.Infof("WebSocketSink: Closing")
		close(ws.done)

		if ws.server != nil {
			err = ws.server.Close()
		}

		ws.clientsMu.Lock()
		for client := range ws.clients {
			client.Close()
		}
		ws.clients = make(map[*websocket.Conn]bool)
		ws.clientCount.Store(0)
		ws.clientsMu.Unlock()

		ws.wg.Wait()
	})
	return err
}

// Ensure WebSocketSink satisfies the interface
var _ Sink = (*WebSocketSink)(nil)
