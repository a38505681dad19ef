// Package config loads service configuration from the environment. A .env
// file in the working directory is applied first when present, so local
// development does not need exported variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full configuration surface of the session service.
type Config struct {
	// ListenAddr is the HTTP listen address of sessiond.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8092"`

	// DebugToken, when set, is required as a bearer token on all /debug/
	// endpoints. Empty leaves the debug surface open (local use only).
	DebugToken string `env:"DEBUG_TOKEN"`

	// LogLevel is a zerolog level name: trace, debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Redis Redis `envPrefix:"REDIS_"`

	// SessionDir is the file backend's session directory.
	SessionDir string `env:"SESSION_DIR" envDefault:"sessions"`

	// SessionTTL is the Redis record expiry; zero disables it. The file
	// backend never evicts.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"1h"`

	// DatabaseURL enables the Postgres audit trail when set.
	DatabaseURL string `env:"DATABASE_URL"`

	// NATSURL enables the change notification bus when set.
	NATSURL string `env:"NATS_URL"`

	// RoutingFile is the model->provider routing table; empty uses the
	// built-in defaults.
	RoutingFile string `env:"ROUTING_FILE"`
}

// Redis holds the cache backend target. An empty Host selects the file
// backend.
type Redis struct {
	Host string `env:"HOST"`
	Port int    `env:"PORT" envDefault:"6379"`
	DB   int    `env:"DB" envDefault:"0"`
}

// Load reads the configuration from the environment. The .env file is
// optional; a missing one is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}
