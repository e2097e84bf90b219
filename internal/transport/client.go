package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/pkg/arenadto"
)

// Client wraps one accepted websocket connection. Writes are serialized so
// concurrent match broadcasts never interleave frames.
type Client struct {
	key  string
	conn *websocket.Conn

	writeM sync.Mutex
	ctx    context.Context
}

func newClient(ctx context.Context, conn *websocket.Conn) *Client {
	return &Client{
		key:  uuid.NewString(),
		conn: conn,
		ctx:  ctx,
	}
}

// Key identifies the connection for the coordinator's binding table.
func (c *Client) Key() string { return c.key }

// Send pushes one named event to the client.
func (c *Client) Send(event string, payload any) error {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c.conn, arenadto.Envelope{Event: event, Data: payload})
}
