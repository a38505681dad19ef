package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog/log"

	"github.com/chatmrpt/session-service/internal/metrics"
	"github.com/chatmrpt/session-service/internal/notify"
)

// handleWatch upgrades the connection to a WebSocket and streams flag change
// events from the notify bus. The session_id query parameter narrows the
// stream to one session; without it the client gets the firehose. Requires
// the NATS bus — without it there is nothing to stream.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusNotImplemented, "session watch requires the notification bus")
		return
	}

	sid := r.URL.Query().Get("session_id")

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Warn().Err(err).Msg("api: watch upgrade failed")
		return
	}
	defer conn.Close()

	metrics.WatchClients.Inc()
	defer metrics.WatchClients.Dec()
	log.Info().Str("session_id", sid).Msg("api: watch client connected")

	// The NATS callback runs on its own goroutine; serialize frame writes.
	var mu sync.Mutex
	unsubscribe, err := s.bus.SubscribeChanges(sid, func(ch notify.FlagChange) {
		data, err := json.Marshal(ch)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := wsutil.WriteServerMessage(conn, ws.OpText, data); err != nil {
			log.Debug().Err(err).Msg("api: watch write failed")
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("api: watch subscribe failed")
		return
	}
	defer unsubscribe()

	// Block on the read side to detect client close; inbound frames are
	// ignored apart from control handling inside ReadClientData.
	for {
		if _, _, err := wsutil.ReadClientData(conn); err != nil {
			log.Info().Str("session_id", sid).Msg("api: watch client disconnected")
			return
		}
	}
}
