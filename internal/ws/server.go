// Package ws is the websocket market-data surface (spec.md §6's
// market_updates stream, mirrored over websocket per SPEC_FULL.md §7),
// grounded on 0xtitan6-polymarket-mm/internal/api/{handlers,stream}.go's
// hub/client pump design, with the welcome-handshake shape from
// original_source/src/websocket/server.rs.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"clobcore/internal/channels"
	"clobcore/internal/marketdata"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Server upgrades incoming HTTP connections to websocket and streams
// each subscriber its own feed off the shared Broadcaster.
type Server struct {
	broadcaster *channels.Broadcaster
	upgrader    websocket.Upgrader
}

func NewServer(broadcaster *channels.Broadcaster) *Server {
	return &Server{
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws: upgrade failed")
		return
	}

	clientID := uuid.New()
	events, unsubscribe := s.broadcaster.Subscribe()

	welcome, _ := json.Marshal(map[string]string{
		"type":      "welcome",
		"client_id": clientID.String(),
		"message":   "connected to trading engine",
	})
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		unsubscribe()
		conn.Close()
		return
	}

	c := &client{id: clientID, conn: conn, events: events, unsubscribe: unsubscribe}
	go c.readPump()
	go c.writePump()
}

type client struct {
	id          uuid.UUID
	conn        *websocket.Conn
	events      <-chan marketdata.Event
	unsubscribe func()
}

// writePump forwards the subscriber's event feed to the socket and
// keeps the connection alive with periodic pings, until either the feed
// closes (unsubscribed) or the write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.unsubscribe()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Msg("ws: failed to marshal market data event")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// readPump only drains and discards inbound frames to keep the
// connection's pong handler alive; this feed is publish-only.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
