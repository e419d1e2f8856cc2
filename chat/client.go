package chat

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 32 * 1024
	sendBufSize    = 64
)

// Client is one live websocket connection joined to a conversation room.
// Each connection runs an isolated read pump and write pump; everything it
// shares with other connections goes through the hub or the services.
type Client struct {
	conversationID uuid.UUID
	userID         uuid.UUID
	conn           *websocket.Conn
	gw             *Gateway

	egress chan []byte
	done   chan struct{}
	once   sync.Once
}

func newClient(gw *Gateway, conn *websocket.Conn, conversationID, userID uuid.UUID) *Client {
	return &Client{
		conversationID: conversationID,
		userID:         userID,
		conn:           conn,
		gw:             gw,
		egress:         make(chan []byte, sendBufSize),
		done:           make(chan struct{}),
	}
}

// send enqueues an outbound frame. Returns false when the egress buffer is
// full, which the caller treats as a dead or hopelessly slow consumer.
func (c *Client) send(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.egress <- data:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) sendEvent(ev Event) {
	if !c.send(ev.Data) {
		c.disconnect()
	}
}

// readPump consumes inbound frames until the connection dies. Frames are
// dispatched synchronously so events from one sender reach the room in the
// order they were sent.
func (c *Client) readPump() {
	defer c.disconnect()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.gw.pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Printf("user %s timed out in conversation %s", c.userID, c.conversationID)
				return
			}
			log.Printf("read error for user %s: %v", c.userID, err)
			return
		}

		c.gw.handleFrame(c, raw)
	}
}

// writePump drains the egress buffer and keeps the heartbeat going. A
// failed write or missed ping deadline tears the connection down; the read
// pump then unwinds through its deadline.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.gw.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.gw.writeWait))
			return
		case data := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("write error for user %s: %v", c.userID, err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.gw.writeWait)); err != nil {
				return
			}
		}
	}
}

// disconnect releases room membership and presence and shuts the connection
// down. Safe to invoke any number of times; only the first does the work.
func (c *Client) disconnect() {
	c.once.Do(func() {
		c.gw.hub.Leave(c.conversationID, c)

		// Clear typing state eagerly instead of waiting for the sweep,
		// and tell the room so no stale indicator survives the drop.
		if c.gw.presence.IsTyping(c.conversationID, c.userID) {
			c.gw.hub.Broadcast(c.conversationID, TypingIndicatorEvent(c.userID, false))
		}
		c.gw.presence.ClearUser(c.conversationID, c.userID)

		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
