package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 5 * time.Second

	// outbound buffer per client; a consumer that falls this far behind
	// is dropped rather than allowed to stall broadcasts
	sendBuffer = 16
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // reporting consumers connect cross-origin
	},
}

// Event is one stopwatch notification pushed to connected reporting
// consumers. Delivery is best-effort; nothing in the engine depends on a
// consumer seeing an event.
type Event struct {
	Type       string      `json:"type"`
	BatchID    uint        `json:"batch_id,omitempty"`
	InstanceID uint        `json:"instance_id,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	At         time.Time   `json:"at"`
}

// Event types emitted by the API layer.
const (
	EventBatchCreated   = "batch_created"
	EventStepStarted    = "step_started"
	EventStepStopped    = "step_stopped"
	EventBatchCompleted = "batch_completed"
	EventBatchValidated = "batch_validated"
)

// client pairs a connection with its outbound queue. All socket writes go
// through writePump, the connection's single writer.
type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans stopwatch events out to every connected websocket client.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	log     *zap.Logger
}

// NewHub creates a new event hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		log:     log,
	}
}

// Handle upgrades the request and registers the connection. Incoming frames
// are drained only to detect the close.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan Event, sendBuffer)}

	h.mu.Lock()
	h.clients[cl] = true
	h.mu.Unlock()

	go h.writePump(cl)
	go h.readPump(cl)
}

// readPump drains the connection until it closes, then unregisters it.
func (h *Hub) readPump(cl *client) {
	defer h.drop(cl)

	cl.conn.SetReadLimit(4 * 1024)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the connection's only writer, serializing frames from the
// send queue onto the socket.
func (h *Hub) writePump(cl *client) {
	defer h.drop(cl)

	for ev := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Broadcast queues one event for every connected client. A client whose
// queue is full is dropped; failures never surface to the caller.
func (h *Hub) Broadcast(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.Lock()
	for cl := range h.clients {
		select {
		case cl.send <- ev:
		default:
			h.removeLocked(cl)
		}
	}
	h.mu.Unlock()
}

// Clients returns the number of connected consumers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	h.removeLocked(cl)
	h.mu.Unlock()
}

// removeLocked unregisters a client and closes its send queue, ending its
// writePump. The queue is only ever closed under the hub mutex, the same
// lock Broadcast sends under, so a send on a closed channel cannot happen.
func (h *Hub) removeLocked(cl *client) {
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
	cl.conn.Close()
}
