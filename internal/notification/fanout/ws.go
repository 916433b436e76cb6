package fanout

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsChannel writes records to one WebSocket connection. Reads only serve to
// detect the peer going away.
type wsChannel struct {
	id   string
	conn *websocket.Conn
	send chan Record
	done chan struct{}
	once sync.Once
}

func newWSChannel(conn *websocket.Conn, buffer int) *wsChannel {
	return &wsChannel{
		id:   "ws-" + uuid.NewString(),
		conn: conn,
		send: make(chan Record, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsChannel) ID() string { return c.id }

func (c *wsChannel) Send(rec Record) error {
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}
	select {
	case c.send <- rec:
		return nil
	default:
		return errChannelFull
	}
}

func (c *wsChannel) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case rec := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(rec); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump blocks until the peer disconnects or the channel is closed.
func (c *wsChannel) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newUpgrader(allowAll bool, origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range origins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
}

// WebSocket streams the caller's tenant events over a WebSocket.
func (h *Handler) WebSocket(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := newWSChannel(conn, h.buffer)
	h.hub.Register(tenantID, ch)
	go ch.writePump()
	ch.readPump()
	h.hub.Unregister(tenantID, ch)
}
