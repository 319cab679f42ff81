package server

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/colorhit/internal/controller"
)

var srvLog = log.With().Str("module", "server").Logger()

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const (
	writeWait   = 2 * time.Second
	clientQueue = 16
)

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub broadcasts hits to every connected websocket client. It is a controller.HitSink.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*eventClient]struct{}
	closed  bool
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*eventClient]struct{})}
}

type hitEvent struct {
	Type string         `json:"type"`
	Hit  controller.Hit `json:"hit"`
}

// Hit queues h for every client. Clients whose queue is full miss the event.
func (h *EventHub) Hit(hit controller.Hit) {
	msg, err := sonic.Marshal(hitEvent{Type: "hit", Hit: hit})
	if err != nil {
		srvLog.Error().Err(err).Msg("encode hit event")
		return
	}
	h.broadcast(msg)
}

func (h *EventHub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			srvLog.Debug().Msg("event client lagging, dropping message")
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
		c.conn.Close()
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srvLog.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &eventClient{conn: conn, send: make(chan []byte, clientQueue)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range c.send {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	<-done
}

// RemoteHandler accepts detection digits from a peer capture node over a websocket.
// Each text message carries one decimal digit.
type RemoteHandler struct {
	target Controller
}

// NewRemoteHandler creates a RemoteHandler that forwards bits to c.
func NewRemoteHandler(c Controller) *RemoteHandler {
	return &RemoteHandler{target: c}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *RemoteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srvLog.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	srvLog.Info().Str("peer", r.RemoteAddr).Msg("remote detector connected")

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			srvLog.Info().Str("peer", r.RemoteAddr).Msg("remote detector disconnected")
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		bit, err := strconv.Atoi(strings.TrimSpace(string(msg)))
		if err != nil {
			srvLog.Debug().Str("message", string(msg)).Msg("ignoring remote message")
			continue
		}
		h.target.HandleRemoteBit(bit)
	}
}

// writeJSON writes a 200 JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
