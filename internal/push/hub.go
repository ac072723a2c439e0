// Package push implements the WebSocket push channel: live subscribers
// receive every sequenced item plus periodic heartbeats so they can detect
// disconnection.
//
// Concurrency model mirrors the sequencer: a single internal goroutine owns
// the client set; public methods communicate through channels.
package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const (
	heartbeatInterval = 15 * time.Second
	writeTimeout      = 10 * time.Second
	clientBuffer      = 64
)

// Message kinds on the push channel.
const (
	KindItem            = "item"
	KindHeartbeat       = "heartbeat"
	KindSessionsUpdated = "sessions-updated"
	KindSessionCreated  = "session-created"
)

// Message is the wire envelope for push frames.
type Message struct {
	Kind string               `json:"kind"`
	Seq  uint64               `json:"seq,omitempty"`
	Item *telemetry.QueuedItem `json:"item,omitempty"`
	Data map[string]any       `json:"data,omitempty"`
}

// ItemFeed is the subscription surface of the sequencer the hub consumes.
type ItemFeed interface {
	Subscribe() chan telemetry.QueuedItem
	Unsubscribe(chan telemetry.QueuedItem)
}

// Hub fans sequenced items out to connected WebSocket clients. The hub
// never reorders: items are forwarded in the order the feed delivers them,
// which is strictly increasing seq.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Message
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewHub creates the hub and starts forwarding from feed.
func NewHub(feed ItemFeed, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			// The companion binds to localhost; the dashboard may be
			// served from a file:// or dev-server origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Message, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go h.run()
	if feed != nil {
		go h.consume(feed)
	}
	return h
}

func (h *Hub) consume(feed ItemFeed) {
	ch := feed.Subscribe()
	defer feed.Unsubscribe(ch)
	for {
		select {
		case <-h.stopCh:
			return
		case item, ok := <-ch:
			if !ok {
				return
			}
			it := item
			h.Publish(Message{Kind: KindItem, Seq: item.Seq, Item: &it})
		}
	}
}

func (h *Hub) run() {
	defer close(h.stopped)

	clients := make(map[chan []byte]struct{})
	var lastSeq uint64

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	broadcast := func(msg Message) {
		raw, err := json.Marshal(msg)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking the hub.
				// The client resynchronises over /queue with its cursor.
			}
		}
	}

	for {
		select {
		case <-h.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-h.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-h.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case msg := <-h.publishCh:
			if msg.Seq > lastSeq {
				lastSeq = msg.Seq
			}
			broadcast(msg)

		case <-heartbeat.C:
			broadcast(Message{Kind: KindHeartbeat, Seq: lastSeq})

		case reply := <-h.countReqCh:
			reply <- len(clients)
		}
	}
}

// Publish enqueues a message for broadcast.
func (h *Hub) Publish(msg Message) {
	if h.closed.Load() {
		return
	}
	select {
	case h.publishCh <- msg:
	case <-h.stopped:
	}
}

// PublishSessionsUpdated notifies dashboard clients that session-level
// state changed.
func (h *Hub) PublishSessionsUpdated(data map[string]any) {
	h.Publish(Message{Kind: KindSessionsUpdated, Data: data})
}

// PublishSessionCreated notifies dashboard clients of a new session.
func (h *Hub) PublishSessionCreated(data map[string]any) {
	h.Publish(Message{Kind: KindSessionCreated, Data: data})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	if h.closed.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case h.countReqCh <- reply:
	case <-h.stopped:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.stopped:
		return 0
	}
}

// Close stops the hub and disconnects all clients.
func (h *Hub) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if h.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case h.subscribeCh <- ch:
	case <-h.stopped:
		close(ch)
	}
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	if h.closed.Load() {
		return
	}
	select {
	case h.unsubscribeCh <- ch:
	case <-h.stopped:
	}
}

// ServeHTTP upgrades the connection and streams push frames until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("push: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// Reader loop only detects disconnects; clients do not send frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}
}
