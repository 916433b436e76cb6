package fanout

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var (
	errChannelFull   = errors.New("channel buffer full")
	errChannelClosed = errors.New("channel closed")
)

// sseChannel buffers records for one Server-Sent Events connection.
type sseChannel struct {
	id     string
	events chan Record
	done   chan struct{}
	once   sync.Once
}

func newSSEChannel(buffer int) *sseChannel {
	return &sseChannel{
		id:     "sse-" + uuid.NewString(),
		events: make(chan Record, buffer),
		done:   make(chan struct{}),
	}
}

func (c *sseChannel) ID() string { return c.id }

func (c *sseChannel) Send(rec Record) error {
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}
	select {
	case c.events <- rec:
		return nil
	default:
		return errChannelFull
	}
}

func (c *sseChannel) Close() {
	c.once.Do(func() { close(c.done) })
}

// Events streams the caller's tenant events as Server-Sent Events.
func (h *Handler) Events(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	ch := newSSEChannel(h.buffer)
	h.hub.Register(tenantID, ch)
	defer h.hub.Unregister(tenantID, ch)

	c.SSEvent("connected", gin.H{"tenantId": tenantID, "channel": ch.ID()})
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-ch.done:
			return
		case rec := <-ch.events:
			c.SSEvent(rec.Name, rec)
			c.Writer.Flush()
		}
	}
}
