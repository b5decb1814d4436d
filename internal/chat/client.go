package chat

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"roomchat/internal/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 10 * time.Second
)

// Client is the ephemeral binding of one websocket to one room and one
// authenticated identity. A user with several devices holds several
// clients; the registry keys on the handle, not the identity.
type Client struct {
	Conn   *websocket.Conn
	Send   chan []byte
	RoomID uuid.UUID
	UserID string

	Limiter     *middleware.RateLimiter
	LastWarning time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, roomID uuid.UUID, userID string, sendBuffer int, limiter *middleware.RateLimiter) *Client {
	return &Client{
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		RoomID:  roomID,
		UserID:  userID,
		Limiter: limiter,
		done:    make(chan struct{}),
	}
}

// Close tears down the transport. Idempotent; the Send channel is never
// closed, senders check done instead.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// trySend queues payload for the write pump without blocking. Returns
// false if the client is closed or its buffer is full.
func (c *Client) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// sendError reports a local failure to this connection only. Errors on
// one inbound payload never reach other room members.
func (c *Client) sendError(msg string) {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	c.trySend(payload)
}

func (c *Client) WritePump(registry *Registry) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		registry.Unregister(c.RoomID, c)
		c.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))

			// One payload per frame; readers decode each frame as a
			// single JSON document.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) ReadPump(registry *Registry, pipeline *Pipeline) {
	defer func() {
		registry.Unregister(c.RoomID, c)
		c.Close()
	}()

	// Worst-case JSON escaping inflates each content byte sixfold
	// (\uXXXX), and oversized content must still reach the pipeline so
	// the sender gets an error frame instead of a dropped connection.
	// Frames beyond this are hostile and tear down the transport.
	c.Conn.SetReadLimit(int64(pipeline.maxContentLength)*6 + 512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[CLIENT] Unexpected close for user %s in room %s: %v", c.UserID, c.RoomID, err)
			}
			break
		}

		if c.Limiter != nil && !c.Limiter.Allow() {
			if time.Since(c.LastWarning) > 3*time.Second {
				c.sendError("Rate limit exceeded.")
				c.LastWarning = time.Now()
			}
			continue
		}

		pipeline.Ingest(c, message)
	}
}
