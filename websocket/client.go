package websocket

import (
	"cyberia/types"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocket upgrader. The plugin UI is served from the host, so every
// origin is accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	hub    Hub
	conn   *websocket.Conn
	send   chan types.ProgressMessage
	appID  int
	logger *slog.Logger
}

// NewClient creates a new WebSocket client subscribed to appID, or to every
// job when appID is AllJobs
func NewClient(hub Hub, conn *websocket.Conn, appID int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan types.ProgressMessage, 256),
		appID:  appID,
		logger: logger,
	}
}

// Send queues message for this client only, typically the current snapshot
// right after connecting. It reports false when the buffer is full.
func (c *Client) Send(message types.ProgressMessage) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// StartPumps starts the read and write pumps for the client
func (c *Client) StartPumps() {
	go c.writePump()
	go c.readPump()
}

// readPump handles reading from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", "appid", c.appID, "error", err)
			}
			break
		}
	}
}

// writePump writes queued messages to the connection. Messages already
// waiting in the buffer are written as one batch with stale progress
// updates dropped.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			batch, open := c.drain(message)
			for _, queued := range coalesce(batch) {
				if err := c.conn.WriteJSON(queued); err != nil {
					c.logger.Warn("WebSocket write error", "appid", c.appID, "error", err)
					return
				}
			}
			if !open {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain collects first and every message already buffered behind it. open
// is false when the hub closed the channel.
func (c *Client) drain(first types.ProgressMessage) (batch []types.ProgressMessage, open bool) {
	batch = append(batch, first)
	for n := len(c.send); n > 0; n-- {
		message, ok := <-c.send
		if !ok {
			return batch, false
		}
		batch = append(batch, message)
	}
	return batch, true
}

// coalesce drops a progress message when the next message in the batch is
// a progress message for the same app.
func coalesce(batch []types.ProgressMessage) []types.ProgressMessage {
	out := batch[:0]
	for i, message := range batch {
		if i+1 < len(batch) && message.Type == "progress" &&
			batch[i+1].Type == "progress" && batch[i+1].AppID == message.AppID {
			continue
		}
		out = append(out, message)
	}
	return out
}

// GetUpgrader returns the WebSocket upgrader
func GetUpgrader() *websocket.Upgrader {
	return &upgrader
}
