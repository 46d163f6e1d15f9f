package renderer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a renderer-side connection to the hub.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to the hub. addr is host:port or a full ws:// URL.
func Dial(ctx context.Context, addr string) (*Client, error) {
	target := addr
	if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
		target = (&url.URL{Scheme: "ws", Host: addr, Path: "/ws"}).String()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	ws.SetPingHandler(func(data string) error {
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	return &Client{ws: ws}, nil
}

// Send writes one request. A missing RequestID is filled in.
func (c *Client) Send(env Envelope) (string, error) {
	if env.RequestID == "" && env.Type != "" {
		env.RequestID = uuid.NewString()
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(env); err != nil {
		return "", err
	}
	return env.RequestID, nil
}

// Hover reports a pointer position for a session.
func (c *Client) Hover(id uint64, angle, distance float64) (string, error) {
	return c.Send(Envelope{Type: TypeHover, SessionID: id, Angle: floatPtr(angle), Distance: floatPtr(distance)})
}

// Query asks for the active session.
func (c *Client) Query() (string, error) {
	return c.Send(Envelope{Type: TypeQuery})
}

// Ack acknowledges a session.
func (c *Client) Ack(id uint64) (string, error) {
	return c.Send(Envelope{Type: TypeAck, SessionID: id})
}

// Receive blocks for the next signal or reply.
func (c *Client) Receive() (Envelope, error) {
	var env Envelope
	err := c.ws.ReadJSON(&env)
	return env, err
}

// Close closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.ws.Close()
}
