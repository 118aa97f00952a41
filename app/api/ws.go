package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"feedsync/app/store"
	syncpkg "feedsync/app/sync"
)

const (
	wsWriteTimeout  = 5 * time.Second
	wsQueueCapacity = 64
)

// wsEvent is the envelope every websocket message travels in.
type wsEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub streams sync progress and store change events to websocket clients.
// The broadcast methods are safe to call from observers: they queue and
// never block, dropping events when the queue is full. A dropped event is
// harmless since a newer snapshot follows shortly.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool

	queue chan wsEvent
	done  chan struct{}
	wg    sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]bool),
		queue: make(chan wsEvent, wsQueueCapacity),
		done:  make(chan struct{}),
	}
}

func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
}

func (h *Hub) Stop() {
	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[*websocket.Conn]bool)
}

func (h *Hub) Broadcast(progress syncpkg.Progress) {
	h.enqueue(wsEvent{Type: "progress", Payload: progress})
}

// BroadcastChanges relays one coalesced store change set, so clients can
// refresh the affected resources without polling.
func (h *Hub) BroadcastChanges(changes []store.Change) {
	h.enqueue(wsEvent{Type: "changes", Payload: changes})
}

func (h *Hub) enqueue(event wsEvent) {
	select {
	case h.queue <- event:
	default:
		slog.Debug("Websocket event dropped, queue full", "type", event.Type)
	}
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			return
		case event := <-h.queue:
			h.send(event)
		}
	}
}

func (h *Hub) send(event wsEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			slog.Debug("Websocket write failed, dropping client", "error", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	// Drain the client side so pings and close frames get processed; the
	// read loop ends when the client goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				if h.conns[conn] {
					conn.Close()
					delete(h.conns, conn)
				}
				h.mu.Unlock()
				return
			}
		}
	}()
}
