package wsgateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingzero/mt5bridge/internal/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// client is one WebSocket connection bound to a broadcaster
// subscription.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	sub  *broadcast.Subscriber
}

// command is what clients may send upstream.
type command struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
}

// readPump consumes client commands until the connection dies, then
// tears the subscription down.
func (c *client) readPump() {
	defer func() {
		c.hub.caster.Unsubscribe(c.sub.ID())
		_ = c.conn.Close()
		log.Infof("client disconnected (%d subscribers)", c.hub.caster.Len())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("read error: %v", err)
			}
			return
		}
		var cmd command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			log.Debugf("bad command: %v", err)
			continue
		}
		switch cmd.Type {
		case "subscribe":
			// Replay the last known quote immediately so the client
			// does not wait a full sampling interval for first data.
			if cmd.Symbol == "" {
				continue
			}
			if !c.hub.caster.Replay(c.sub.ID(), cmd.Symbol) {
				log.Debugf("no cached tick for %s yet", cmd.Symbol)
			}
		default:
			log.Debugf("unknown command type %q", cmd.Type)
		}
	}
}

// writePump pushes broadcaster events and keepalive pings to the peer.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
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
