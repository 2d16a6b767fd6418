package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Guliveer/twitch-drops-go/internal/events"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsQueueDepth   = 128
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the API is CORS-open; the push channel follows
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS upgrades the connection, replays initial state, then streams every
// bus event as {"event": name, "data": payload}.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, cancel := s.bus.Subscribe(wsQueueDepth)
	defer cancel()

	initial := events.Event{Name: "initial_state", Data: s.ctrl.InitialState()}
	if err := writeEvent(conn, initial); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// inbound frames are ignored; the read loop only detects disconnect
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(ev)
}
