// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel      slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	PublicBaseURL string     `env:"PUBLIC_BASE_URL"`

	// StoreBackend selects where session documents live: redis or memory.
	StoreBackend string        `env:"STORE_BACKEND" envDefault:"redis"`
	RedisURL     string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// An empty MONGO_URI serves the built-in question bank.
	MongoURI string `env:"MONGO_URI"`
	MongoDB  string `env:"MONGO_DB" envDefault:"partyquiz"`

	// An empty AMQP_URL disables lifecycle events.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"partyquiz.events"`

	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	RevealWindow      time.Duration `env:"REVEAL_WINDOW" envDefault:"5s"`
	LeaderboardWindow time.Duration `env:"LEADERBOARD_WINDOW" envDefault:"10s"`
	DefaultTimeLimit  int           `env:"DEFAULT_TIME_LIMIT" envDefault:"30"`
	ScoringRule       string        `env:"SCORING_RULE" envDefault:"flat"`
}

// Load reads an optional .env file and then the environment. Variables
// already set win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be redis or memory, got %q", c.StoreBackend)
	}
	if c.DefaultTimeLimit <= 0 {
		return fmt.Errorf("DEFAULT_TIME_LIMIT must be positive, got %d", c.DefaultTimeLimit)
	}
	if c.RevealWindow <= 0 || c.LeaderboardWindow <= 0 {
		return errors.New("REVEAL_WINDOW and LEADERBOARD_WINDOW must be positive")
	}
	return nil
}
