// Package wsgateway forwards broadcaster events to WebSocket clients
// and handles client-initiated subscribe commands. Each connection gets
// its own buffered broadcaster subscription; the transport never feeds
// backpressure into the sampler.
package wsgateway

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wingzero/mt5bridge/internal/broadcast"
)

var log = logrus.WithField("component", "wsgateway")

const sendBuffer = 256

// Hub upgrades connections and wires them to the broadcaster.
type Hub struct {
	caster   *broadcast.Caster
	upgrader websocket.Upgrader
}

func NewHub(caster *broadcast.Caster) *Hub {
	return &Hub{
		caster: caster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients cannot send custom auth headers on the
			// upgrade; origin policy is left to the deployment edge.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeWS handles one WebSocket request.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("upgrade failed: %v", err)
		return
	}

	sub := h.caster.Subscribe(sendBuffer)
	c := &client{hub: h, conn: conn, sub: sub}
	log.Infof("client connected (%d subscribers)", h.caster.Len())

	h.caster.Send(sub.ID(), broadcast.Event{
		Name:    broadcast.EventConnected,
		Payload: map[string]string{"status": "connected to bridge"},
	})

	go c.writePump()
	go c.readPump()
}
