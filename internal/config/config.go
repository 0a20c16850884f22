package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// PushOrigins is the comma-separated whitelist of order origins that are
	// broadcast on creation. Orders from any other origin are only visible
	// through the pull-based report endpoints.
	PushOrigins string `env:"PUSH_ORIGINS" default:"storefront"`

	// EnrichDelay is the bounded wait before the enrichment fetch for new
	// orders, covering line-item writes that commit shortly after the
	// notification fires.
	EnrichDelay time.Duration `env:"ENRICH_DELAY" default:"3s"`

	SendTimeout         time.Duration `env:"SEND_TIMEOUT" default:"5s"`
	MaxClientsPerTenant int           `env:"MAX_CLIENTS_PER_TENANT" default:"50"`

	// Kafka mirror is optional; both must be set together.
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC" default:"order-events"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.AllowedOrigins()) == 0 {
		return fmt.Errorf("PUSH_ORIGINS must name at least one origin")
	}

	if cfg.KafkaBrokers != "" && cfg.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// AllowedOrigins parses PushOrigins into the origin whitelist.
func (c *Config) AllowedOrigins() []domain.Origin {
	parts := strings.Split(c.PushOrigins, ",")
	origins := make([]domain.Origin, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, domain.Origin(p))
		}
	}
	return origins
}

// BrokerList splits KafkaBrokers into addresses; empty when unset.
func (c *Config) BrokerList() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
