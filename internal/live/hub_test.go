package live

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialTestHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/ws", h.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// registration happens just after the handshake response is written, so a
// freshly dialed client may not be visible to the hub yet
func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if h.Clients() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", n)
}

func TestBroadcastDeliversEvent(t *testing.T) {
	h := NewHub(zap.NewNop())
	conn := dialTestHub(t, h)
	waitForClients(t, h, 1)

	h.Broadcast(Event{Type: EventStepStarted, BatchID: 7, InstanceID: 3})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventStepStarted, ev.Type)
	assert.Equal(t, uint(7), ev.BatchID)
	assert.Equal(t, uint(3), ev.InstanceID)
	assert.False(t, ev.At.IsZero())
}

// Broadcasts arrive from arbitrary handler goroutines; the hub must funnel
// them through the connection's single writer.
func TestConcurrentBroadcasts(t *testing.T) {
	h := NewHub(zap.NewNop())
	conn := dialTestHub(t, h)
	waitForClients(t, h, 1)

	const events = 50

	received := make(chan int, 1)
	go func() {
		n := 0
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		for n < events {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				break
			}
			n++
		}
		received <- n
	}()

	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Broadcast(Event{Type: EventStepStopped, BatchID: 1})
		}()
	}
	wg.Wait()

	assert.Greater(t, <-received, 0)
}

func TestBroadcastDropsClosedClient(t *testing.T) {
	h := NewHub(zap.NewNop())
	conn := dialTestHub(t, h)
	waitForClients(t, h, 1)

	conn.Close()

	// the dead connection is reaped by its read pump; subsequent broadcasts
	// must not block or resurrect it
	for i := 0; i < 100; i++ {
		h.Broadcast(Event{Type: EventBatchCreated})
		if h.Clients() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Zero(t, h.Clients())
}
