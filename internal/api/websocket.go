package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsConn pairs a hub channel with its WebSocket connection.
type wsConn struct {
	server *Server
	ch     *queueChannel
	conn   *websocket.Conn
}

// handleWebSocket upgrades the connection and admits it as a subscriber
// channel. Each hub message is sent as one text frame. The dashboard is
// read-only, so incoming frames are discarded.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		server: s,
		ch:     newQueueChannel("ws", s.wsCfg.SendBuffer),
		conn:   conn,
	}
	if err := s.engine.Admit(c.ch); err != nil {
		s.logger.Debug("websocket admission failed", "error", err)
		//nolint:errcheck // Best-effort close message
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		return
	}
	s.logger.Debug("websocket channel opened", "channel_id", c.ch.ID(), "remote_addr", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

func (c *wsConn) intervals() (ping, pongWait time.Duration) {
	ping = time.Duration(c.server.wsCfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	pongWait = time.Duration(c.server.wsCfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = 10 * time.Second
	}
	return ping, pongWait
}

// readPump reads until the remote end goes away, then evicts the channel.
func (c *wsConn) readPump() {
	defer c.server.engine.Evict(c.ch)

	maxSize := c.server.wsCfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = 8192
	}
	c.conn.SetReadLimit(int64(maxSize))
	ping, pongWait := c.intervals()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(ping + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ping + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read error", "channel_id", c.ch.ID(), "error", err)
			}
			return
		}
		// Any client frame counts as liveness.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(ping + pongWait))
	}
}

// writePump drains the channel queue and pings the client. It owns the
// connection and closes it on exit.
func (c *wsConn) writePump() {
	ping, pongWait := c.intervals()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.server.engine.Evict(c.ch)
	}()

	for {
		select {
		case <-c.ch.Done():
			//nolint:errcheck // Best-effort close message
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(pongWait))
			return
		case msg := <-c.ch.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
