// Package config reads service configuration from the environment. The
// resulting struct is built once in main and passed down explicitly; nothing
// here is global.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultNotificationTopic = "savings.notifications"
	defaultSchedule          = "0 6 * * *"
)

type Config struct {
	// HTTPAddr is the listen address for the API server.
	HTTPAddr string
	// DatabaseURL selects the Postgres store; empty runs in-memory.
	DatabaseURL string
	// KafkaBrokers selects the Kafka notifier; empty logs notifications
	// instead of publishing them.
	KafkaBrokers      []string
	NotificationTopic string
	// MaterializeSchedule is a standard 5-field cron expression. Validation
	// and fallback happen in the scheduler so an invalid value can never
	// prevent startup.
	MaterializeSchedule string
	MaterializeEnabled  bool
}

// Load reads .env (if present) and the process environment. Malformed values
// are logged and replaced with defaults; Load never fails.
func Load(log zerolog.Logger) Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}

	cfg := Config{
		HTTPAddr:            envOr("HTTP_ADDR", defaultHTTPAddr),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		NotificationTopic:   envOr("NOTIFICATION_TOPIC", defaultNotificationTopic),
		MaterializeSchedule: envOr("MATERIALIZE_SCHEDULE", defaultSchedule),
		MaterializeEnabled:  true,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	if raw := os.Getenv("MATERIALIZE_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			log.Warn().Str("value", raw).Msg("invalid MATERIALIZE_ENABLED, defaulting to true")
			enabled = true
		}
		cfg.MaterializeEnabled = enabled
	}

	return cfg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
