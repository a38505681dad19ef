// Package api serves the session service's HTTP surface: the debug
// inspection endpoints, the live session-watch WebSocket, Prometheus metrics,
// and health. The debug surface is an operator tool, not a user-facing API;
// it is bearer-token protected when a token is configured and rate limited
// per client IP when Redis is available.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatmrpt/session-service/internal/audit"
	"github.com/chatmrpt/session-service/internal/metrics"
	"github.com/chatmrpt/session-service/internal/notify"
	"github.com/chatmrpt/session-service/internal/ratelimit"
	"github.com/chatmrpt/session-service/internal/routing"
	"github.com/chatmrpt/session-service/internal/session"
)

// Server hosts the HTTP endpoints. Audit, notify and limiter are optional;
// nil disables the corresponding behavior.
type Server struct {
	store   session.Store
	routes  *routing.Table
	auditor *audit.Store
	bus     *notify.Bus
	limiter *ratelimit.Limiter
	token   string

	httpSrv *http.Server
}

// Config holds the HTTP server settings.
type Config struct {
	ListenAddr string
	// DebugToken, when non-empty, is required as a bearer token on /debug/.
	DebugToken string
}

// NewServer wires the endpoints. Pass nil for auditor, bus or limiter to run
// without the audit trail, the watch endpoint or rate limiting.
func NewServer(cfg Config, store session.Store, routes *routing.Table, auditor *audit.Store, bus *notify.Bus, limiter *ratelimit.Limiter) *Server {
	s := &Server{
		store:   store,
		routes:  routes,
		auditor: auditor,
		bus:     bus,
		limiter: limiter,
		token:   cfg.DebugToken,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /debug/session-state", s.debug(s.handleGetState))
	mux.Handle("POST /debug/session-state", s.debug(s.handleSetFlag))
	mux.Handle("GET /debug/sessions/recent", s.debug(s.handleRecent))
	mux.Handle("GET /debug/model-routing", s.debug(s.handleRouting))
	mux.Handle("GET /debug/session-watch", s.debug(s.handleWatch))

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route mux (used by tests).
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpSrv.Addr).Msg("api: listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// debug wraps a /debug/ handler with bearer-token auth and per-IP rate
// limiting.
func (s *Server) debug(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			if r.Header.Get("Authorization") != "Bearer "+s.token {
				writeError(w, http.StatusUnauthorized, "missing or invalid debug token")
				return
			}
		}

		if s.limiter != nil {
			ip := clientIP(r)
			allowed, _ := s.limiter.Allow(r.Context(), ip, ratelimit.RuleDebug)
			if remaining, err := s.limiter.Remaining(r.Context(), ip, ratelimit.RuleDebug); err == nil {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
			if !allowed {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		h(w, r)
	})
}

// clientIP extracts the caller's IP, honoring X-Forwarded-For from the
// reverse proxy in front of the service.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
