package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/huddlechat/huddle/globals"
	"github.com/huddlechat/huddle/types"
)

const (
	// must hold a maximal send-message frame: 2000 characters of 4-byte
	// UTF-8 plus JSON escaping and the envelope
	maxFrameSize    = 16384
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256
)

// Client is the middleman between one websocket connection and the hub.
// All of its state except Send is owned by the hub dispatch loop.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	user *types.User

	// Buffered channel of outbound frames. Closed by the hub on
	// unregister.
	Send chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, user *types.User) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		user: user,
		Send: make(chan []byte, sendChannelSize),
	}
}

// User returns the identity this connection authenticated as.
func (c *Client) User() *types.User { return c.user }

// ReadLoop pumps frames from the websocket connection into the hub
// command queue. There is at most one reader per connection; the loop
// exits on any read or decode error, triggering unregistration.
func (c *Client) ReadLoop() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("unexpected websocket close", "error", err)
			}
			return
		}
		message := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			// a garbled frame is dropped, it does not cost the connection
			globals.AppLogger.Debug("could not unmarshal ws frame", "error", err)
			continue
		}
		c.hub.commands <- inbound{client: c, event: message.Event, data: message.Data}
	}
}

// WriteLoop pumps frames from the hub to the websocket connection.
// There is at most one writer per connection.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
