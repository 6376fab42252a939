package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/session"
)

//nolint:stylecheck // capitalised: returned verbatim to API clients
var errMissingSession = errors.New("Missing session")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades to WebSocket and streams a session's normalized
// messages to the client, starting with its backlog.
func (s *Server) handleWebSocket(c *gin.Context) {
	id := c.Query("session")
	if id == "" {
		errorJSON(c, http.StatusBadRequest, errMissingSession)
		return
	}
	sess, ok := s.opts.Registry.Lookup(id)
	if !ok {
		errorJSON(c, http.StatusNotFound, session.ErrNotFound)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	messages := sess.Hub.Subscribe()
	defer sess.Hub.Unsubscribe(messages)

	// Read pump: detect client disconnect.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Write pump: send messages as JSON.
	for {
		select {
		case <-gone:
			return
		case msg, ok := <-messages:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("websocket write failed", zap.String("session", id), zap.Error(err))
				return
			}
		}
	}
}
