package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-realtime-chat/internal/config"
)

// Client is one authenticated WebSocket connection. The registry owns its
// send queue: only the registry writes to or closes it.
type Client struct {
	ID     string
	UserID string

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	cfg     config.WSConfig
	log     zerolog.Logger
}

func newClient(id, userID string, conn *websocket.Conn, cfg config.WSConfig, log zerolog.Logger) *Client {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	var lim *rate.Limiter
	if cfg.EventRPS > 0 {
		burst := cfg.EventBurst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.EventRPS), burst)
	}
	return &Client{
		ID:      id,
		UserID:  userID,
		conn:    conn,
		send:    make(chan []byte, buf),
		limiter: lim,
		cfg:     cfg,
		log:     log,
	}
}

// enqueue performs a non-blocking send. Callers hold the registry lock.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// allow applies the per-connection inbound event limit.
func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// readPump reads frames until the peer goes away and hands each one to
// handle. Frames from one connection are handled in order. On exit the
// connection is removed from the registry.
func (c *Client) readPump(reg *Registry, handle func(*Client, []byte)) {
	defer func() {
		reg.Disconnect(c)
		_ = c.conn.Close()
	}()

	if c.cfg.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		handle(c, frame)
	}
}

// writePump drains the send queue onto the socket and keeps the peer alive
// with pings. A closed queue ends the connection with a close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
