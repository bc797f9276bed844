package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the server binary needs from its environment.
// Empty Postgres/Redis/Kafka settings select the in-process fallbacks, so a
// bare `go run ./cmd/server` works without infrastructure.
type Config struct {
	Addr string

	PostgresDSN string

	RedisURL   string
	QCCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	ShutdownTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("LIMSCORE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	qcTTL := 5 * time.Minute
	if raw := os.Getenv("LIMSCORE_QC_CACHE_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			qcTTL = d
		}
	}

	var brokers []string
	if raw := os.Getenv("LIMSCORE_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	topic := os.Getenv("LIMSCORE_KAFKA_TOPIC")
	if topic == "" {
		topic = "limscore.domain-events"
	}

	return Config{
		Addr:            addr,
		PostgresDSN:     os.Getenv("LIMSCORE_POSTGRES_DSN"),
		RedisURL:        os.Getenv("LIMSCORE_REDIS_URL"),
		QCCacheTTL:      qcTTL,
		KafkaBrokers:    brokers,
		KafkaTopic:      topic,
		ShutdownTimeout: 10 * time.Second,
	}
}
