package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatmrpt/session-service/internal/audit"
	"github.com/chatmrpt/session-service/internal/metrics"
	"github.com/chatmrpt/session-service/internal/notify"
	"github.com/chatmrpt/session-service/internal/session"
)

// SessionCookie is the cookie carrying the caller's session id. A request
// without one (and without the X-Session-ID header) gets a fresh id issued.
const SessionCookie = "chatmrpt_session"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// sessionID resolves the caller's session id from the cookie or the
// X-Session-ID header, issuing a new cookie when neither is present.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		return sid
	}

	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

// handleHealthz reports liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": s.store.Backend(),
	})
}

// handleGetState dumps the full flag state of the caller's session.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)

	start := time.Now()
	state, err := s.store.Snapshot(r.Context(), sid)
	metrics.StoreOpDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreOps.WithLabelValues("snapshot", s.store.Backend(), "error").Inc()
		var corrupt *session.CorruptRecordError
		if errors.As(err, &corrupt) {
			log.Error().Err(err).Str("session_id", corrupt.SessionID).Msg("api: corrupt session record")
			writeError(w, http.StatusInternalServerError,
				fmt.Sprintf("corrupt session record: %s", corrupt.SessionID))
			return
		}
		log.Error().Err(err).Str("session_id", sid).Msg("api: snapshot failed")
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	metrics.StoreOps.WithLabelValues("snapshot", s.store.Backend(), "ok").Inc()

	writeJSON(w, http.StatusOK, state)
}

// setFlagRequest is the POST /debug/session-state body. Value accepts a JSON
// bool or string; everything is stored in string form.
type setFlagRequest struct {
	Flag  string `json:"flag"`
	Value any    `json:"value"`
}

// handleSetFlag upserts one flag on the caller's session, records the change
// in the audit trail and announces it on the notify bus.
func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)

	var req setFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Flag == "" {
		writeError(w, http.StatusBadRequest, "flag is required")
		return
	}

	var value string
	switch v := req.Value.(type) {
	case bool:
		value = strconv.FormatBool(v)
	case string:
		value = v
	default:
		writeError(w, http.StatusBadRequest, "value must be a bool or a string")
		return
	}

	start := time.Now()
	err := s.store.Set(r.Context(), sid, req.Flag, value)
	metrics.StoreOpDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreOps.WithLabelValues("set", s.store.Backend(), "error").Inc()
		if errors.Is(err, session.ErrUnknownFlag) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("session_id", sid).Str("flag", req.Flag).Msg("api: set failed")
		writeError(w, http.StatusInternalServerError, "set failed")
		return
	}
	metrics.StoreOps.WithLabelValues("set", s.store.Backend(), "ok").Inc()

	s.recordChange(r, sid, req.Flag, value)

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sid,
		"flag":       req.Flag,
		"value":      value,
	})
}

// recordChange feeds the audit trail and the notify bus after a successful
// write. Both are best-effort: failures are logged and the write stands.
func (s *Server) recordChange(r *http.Request, sid, flag, value string) {
	if s.auditor != nil {
		err := s.auditor.Record(r.Context(), audit.Entry{
			SessionID: sid,
			Flag:      flag,
			Value:     value,
			Source:    "api",
		})
		if err != nil {
			metrics.AuditWrites.WithLabelValues("error").Inc()
			log.Warn().Err(err).Str("session_id", sid).Msg("api: audit write failed")
		} else {
			metrics.AuditWrites.WithLabelValues("ok").Inc()
		}
	}

	if s.bus != nil {
		err := s.bus.PublishChange(notify.FlagChange{
			SessionID: sid,
			Flag:      flag,
			Value:     value,
			Backend:   s.store.Backend(),
			ChangedAt: time.Now().Unix(),
		})
		if err != nil {
			log.Warn().Err(err).Str("session_id", sid).Msg("api: change publish failed")
		}
	}
}

// handleRecent lists stored sessions by recency. Only the file backend can
// enumerate records this way; on Redis the endpoint reports 501.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.store.(session.RecentLister)
	if !ok {
		writeError(w, http.StatusNotImplemented,
			fmt.Sprintf("recent listing is not supported by the %s backend", s.store.Backend()))
		return
	}

	n := 20
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = v
	}
	if n > 100 {
		n = 100
	}

	entries, err := lister.ListRecent(n)
	if err != nil {
		metrics.StoreOps.WithLabelValues("list_recent", s.store.Backend(), "error").Inc()
		log.Error().Err(err).Msg("api: list recent failed")
		writeError(w, http.StatusInternalServerError, "list recent failed")
		return
	}
	metrics.StoreOps.WithLabelValues("list_recent", s.store.Backend(), "ok").Inc()

	writeJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}

// handleRouting dumps the model->provider routing table.
func (s *Server) handleRouting(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.routes)
}
