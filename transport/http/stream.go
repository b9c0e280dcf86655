package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// upgrader is shared across connections; CheckOrigin defers to the
// same CORS policy the rest of the server enforces, matching the
// teacher's websocket.go practice of consulting its own CORS config
// rather than gorilla's permissive default.
func (s *Server) newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if !s.cors.Enabled {
				return true
			}
			return isOriginAllowed(r.Header.Get("Origin"), s.cors.AllowedOrigins)
		},
	}
}

// handleStream upgrades to a websocket and relays every Task snapshot
// SubscribeProgress produces, one frame per transition, until a
// terminal snapshot closes the stream. This is server-push only: the
// core never needs a client->server message on this channel, unlike
// the teacher's bidirectional chat protocol.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := mux.Vars(r)["id"]

	snapshots, err := s.engine.SubscribeProgress(ctx, taskID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	upgrader := s.newUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
		return
	}
	defer conn.Close()

	// Drain client frames so the connection's read side stays alive for
	// close/ping control frames; this endpoint never acts on payloads.
	go drainReads(conn)

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(toSnapshotResponse(snap, nil, nil)); err != nil {
				return
			}
			if snap.Status.IsTerminal() {
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func drainReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
