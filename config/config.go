package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends for groupings.
const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config is the server configuration, read from the environment.
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	GinMode string `env:"GIN_MODE" envDefault:"debug"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"8"`

	GroupStore string `env:"GROUP_STORE" envDefault:"redis"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"groupings.db"`

	// Editing sessions untouched for this long are dropped.
	SessionIdle time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"2h"`

	SeedData bool `env:"SEED_DATA" envDefault:"true"`
}

// Load reads an optional .env file and then parses the environment.
func Load(dotEnvFiles ...string) (*Config, error) {
	if err := godotenv.Load(dotEnvFiles...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
		log.Println("No .env file found, using system environment")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.GroupStore != StoreRedis && cfg.GroupStore != StoreSQLite {
		return nil, fmt.Errorf("GROUP_STORE must be %q or %q, got %q", StoreRedis, StoreSQLite, cfg.GroupStore)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
