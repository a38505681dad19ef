// Command sessiond runs the ChatMRPT session service: the session store with
// its debug inspection HTTP API, metrics, optional audit trail and optional
// change notification bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatmrpt/session-service/internal/api"
	"github.com/chatmrpt/session-service/internal/audit"
	"github.com/chatmrpt/session-service/internal/config"
	"github.com/chatmrpt/session-service/internal/metrics"
	"github.com/chatmrpt/session-service/internal/notify"
	"github.com/chatmrpt/session-service/internal/ratelimit"
	"github.com/chatmrpt/session-service/internal/routing"
	"github.com/chatmrpt/session-service/internal/session"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
	}

	// --- Session store (Redis preferred, file fallback) ---
	store, err := session.Open(session.Options{
		RedisHost: cfg.Redis.Host,
		RedisPort: cfg.Redis.Port,
		RedisDB:   cfg.Redis.DB,
		TTL:       cfg.SessionTTL,
		Dir:       cfg.SessionDir,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("session store init failed")
	}
	metrics.BackendSelected.WithLabelValues(store.Backend()).Set(1)

	// --- Rate limiter (shares the Redis connection when present) ---
	var limiter *ratelimit.Limiter
	if rs, ok := store.(*session.RedisStore); ok {
		limiter = ratelimit.NewLimiter(rs.Client())
	}

	// --- Audit trail (optional) ---
	var auditor *audit.Store
	if cfg.DatabaseURL != "" {
		auditor, err = audit.Open(cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("audit trail unavailable, continuing without it")
		} else if err := auditor.Migrate(); err != nil {
			log.Warn().Err(err).Msg("audit migration failed, continuing without the trail")
			auditor.Close()
			auditor = nil
		}
	}

	// --- Change notification bus (optional) ---
	var bus *notify.Bus
	if cfg.NATSURL != "" {
		bus, err = notify.Connect(cfg.NATSURL, "chatmrpt-sessiond")
		if err != nil {
			log.Warn().Err(err).Msg("notification bus unavailable, continuing without it")
			bus = nil
		}
	}

	// --- Model routing table ---
	routes, err := routing.Load(cfg.RoutingFile)
	if err != nil {
		log.Fatal().Err(err).Msg("routing table error")
	}

	server := api.NewServer(api.Config{
		ListenAddr: cfg.ListenAddr,
		DebugToken: cfg.DebugToken,
	}, store, routes, auditor, bus, limiter)

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("backend", store.Backend()).
		Bool("audit", auditor != nil).
		Bool("notify", bus != nil).
		Bool("debug_auth", cfg.DebugToken != "").
		Msg("sessiond starting")

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
		if bus != nil {
			bus.Close()
		}
		if auditor != nil {
			auditor.Close()
		}
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("store close error")
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
