package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"indicator-lab/internal/orchestrator"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The control surface is local-only; the UI connects from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTelemetryStream replays the run's telemetry history and then pushes
// each new snapshot as it is taken. The stream closes when the run reaches a
// terminal state or the client disconnects. For already-terminal runs the
// history is replayed and the socket closed immediately.
func (s *Server) handleTelemetryStream(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	history, err := s.orch.Telemetry(runID, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	updates, cancel, err := s.orch.SubscribeTelemetry(runID)
	if err != nil && !errors.Is(err, orchestrator.ErrRunNotActive) {
		s.writeError(w, err)
		return
	}
	if cancel != nil {
		defer cancel()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("run_id", runID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader goroutine: the client never sends data, but reading is how we
	// notice a disconnect.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, snap := range history {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}

	if updates == nil {
		s.closeStream(conn, runID, clientGone)
		return
	}

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				s.closeStream(conn, runID, clientGone)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

// closeStream sends a normal close frame and waits for the client's reply so
// the close is not lost to the TCP teardown.
func (s *Server) closeStream(conn *websocket.Conn, runID string, clientGone <-chan struct{}) {
	deadline := time.Now().Add(wsWriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.log.Debug().Err(err).Str("run_id", runID).Msg("websocket close failed")
		return
	}
	select {
	case <-clientGone:
	case <-time.After(wsWriteTimeout):
	}
}
