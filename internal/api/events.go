package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hyperengineering/companion/internal/engine"
	"github.com/hyperengineering/companion/internal/types"
)

// EventFrame is the wire shape of one history change pushed to viewers.
type EventFrame struct {
	Type    engine.EventType `json:"type"`
	Message *types.Message   `json:"message,omitempty"`
}

// Hub fans history events out to connected websocket viewers. Appends marked
// EchoLocal are not rebroadcast; the sender already rendered them.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte

	log *slog.Logger
}

// NewHub creates a hub subscribed to the given history.
func NewHub(h *engine.History, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	hub := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Single-user service bound to localhost.
				return true
			},
		},
		conns: map[*websocket.Conn]chan []byte{},
		log:   log,
	}
	h.Subscribe(hub.onEvent)
	return hub
}

func (hub *Hub) onEvent(ev engine.Event) {
	if ev.Type == engine.EventAppend && ev.Echo == types.EchoLocal {
		return
	}

	frame := EventFrame{Type: ev.Type}
	if ev.Type != engine.EventClear {
		msg := ev.Message
		frame.Message = &msg
	}
	data, err := json.Marshal(frame)
	if err != nil {
		hub.log.Error("event frame encode failed", "error", err)
		return
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	for conn, ch := range hub.conns {
		select {
		case ch <- data:
		default:
			// Slow consumer; drop the connection rather than block the engine.
			hub.log.Warn("dropping slow event consumer")
			delete(hub.conns, conn)
			close(ch)
		}
	}
}

// ServeHTTP upgrades the request and streams history events until the client
// disconnects.
func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := make(chan []byte, 64)
	hub.mu.Lock()
	hub.conns[conn] = ch
	hub.mu.Unlock()

	go hub.writeLoop(conn, ch)
	hub.readLoop(conn)
}

func (hub *Hub) writeLoop(conn *websocket.Conn, ch chan []byte) {
	defer conn.Close()
	for data := range ch {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			hub.remove(conn)
			return
		}
	}
}

// readLoop discards inbound frames; the feed is one-way. It returns when the
// client closes, which tears the connection down.
func (hub *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			hub.remove(conn)
			return
		}
	}
}

func (hub *Hub) remove(conn *websocket.Conn) {
	hub.mu.Lock()
	ch, ok := hub.conns[conn]
	if ok {
		delete(hub.conns, conn)
		close(ch)
	}
	hub.mu.Unlock()
	conn.Close()
}

// Close disconnects every viewer.
func (hub *Hub) Close() {
	hub.mu.Lock()
	for conn, ch := range hub.conns {
		delete(hub.conns, conn)
		close(ch)
		conn.Close()
	}
	hub.mu.Unlock()
}
