// Package websocket streams notebook events to WebSocket clients,
// mirroring the SSE feed.
package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/smilemakc/nbflow/internal/eventbus"
	"github.com/smilemakc/nbflow/internal/infrastructure/logger"
	"github.com/smilemakc/nbflow/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The API is unauthenticated; origins are not restricted.
		return true
	},
}

// Handler upgrades HTTP connections and pumps bus events to each client.
type Handler struct {
	bus     *eventbus.Bus
	metrics *monitoring.Metrics
	logger  *logger.Logger
}

// NewHandler creates a WebSocket handler over the event bus.
func NewHandler(bus *eventbus.Bus, metrics *monitoring.Metrics, log *logger.Logger) *Handler {
	return &Handler{
		bus:     bus,
		metrics: metrics,
		logger:  log,
	}
}

// Handle handles GET /notebook/ws.
func (h *Handler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := h.bus.Subscribe()
	if h.metrics != nil {
		h.metrics.SubscriberConnected()
	}
	h.logger.Info("websocket client connected", "subscriber_id", sub.ID())

	client := &client{
		conn:    conn,
		sub:     sub,
		handler: h,
	}
	go client.writePump()
	go client.readPump()
}

// client is one connected WebSocket peer.
type client struct {
	conn    *websocket.Conn
	sub     *eventbus.Subscriber
	handler *Handler
}

func (c *client) close() {
	c.sub.Close()
	c.conn.Close()
	if c.handler.metrics != nil {
		c.handler.metrics.SubscriberDisconnected()
	}
}

// readPump consumes client frames until the connection drops. Inbound
// messages are ignored; the stream is one-way.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.handler.logger.Warn("websocket read error",
					"subscriber_id", c.sub.ID(),
					"error", err,
				)
			}
			return
		}
	}
}

// writePump forwards bus events as JSON text frames and keeps the
// connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.Events():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
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
