package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeWait bounds one push to one client; a client slower than this
// errors out and is detached by the hub.
const writeWait = 5 * time.Second

// wsClient adapts one websocket connection to the hub's Subscriber
// contract. Writes are serialized so per-subscriber delivery order is
// preserved.
type wsClient struct {
	id   string
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{id: uuid.NewString(), conn: conn}
}

func (c *wsClient) ID() string { return c.id }

// Send pushes one serialized alert, failing fast on a slow client.
func (c *wsClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close is safe to call from both the hub and the read loop.
func (c *wsClient) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}
