package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/podscript/internal/observe"
	"github.com/MrWong99/podscript/pkg/script"
)

// streamWriteTimeout bounds a single statistics push to a client.
const streamWriteTimeout = 5 * time.Second

// statsMessage is one frame of the statistics stream.
type statsMessage struct {
	Session    string            `json:"session"`
	Statistics script.Statistics `json:"statistics"`
}

// handleStream upgrades to a WebSocket and pushes the session's statistics
// once on connect and again after every change. Bursts of changes collapse
// into the latest value. The stream ends when the client goes away or the
// session is closed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(observe.WithSession(r.Context(), sess.ID())).Warn("stream upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	updates, cancel := sess.Subscribe()
	defer cancel()

	s.metrics.ActiveStreams.Add(r.Context(), 1)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(r.Context()), -1)

	log := observe.Logger(observe.WithSession(r.Context(), sess.ID()))
	log.Debug("stream opened")

	// We never expect messages from the client; CloseRead handles control
	// frames and cancels ctx once the peer disconnects.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			log.Debug("stream closed by client")
			return
		case st, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "session closed")
				log.Debug("stream ended with session")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, statsMessage{Session: sess.ID(), Statistics: st})
			wcancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn("stream write failed", "err", err)
				}
				return
			}
		}
	}
}
