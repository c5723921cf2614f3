package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the gateway needs from its environment so main
// stays lean. Empty PostgresDSN, RedisURL, or KafkaBrokers select the
// in-memory implementations.
type Config struct {
	Addr          string
	PostgresDSN   string
	RedisURL      string
	KafkaBrokers  []string
	EventTopic    string
	JWTSigningKey string
	AdminRole     string

	HealthInterval time.Duration
	ProbeTimeout   time.Duration

	CacheTTL time.Duration

	RateLimit  int
	RateWindow time.Duration

	ProxyTimeout time.Duration
	MaxRedirects int
}

// FromEnv builds a Config from environment variables, applying the platform
// defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:           envOr("GATEWAY_ADDR", ":8080"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		RedisURL:       os.Getenv("REDIS_URL"),
		EventTopic:     envOr("EVENT_TOPIC", "platform.events"),
		JWTSigningKey:  envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AdminRole:      envOr("ADMIN_ROLE", "platform-admin"),
		HealthInterval: envDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		ProbeTimeout:   envDuration("HEALTH_PROBE_TIMEOUT", 5*time.Second),
		CacheTTL:       envDuration("SERVICE_CACHE_TTL", 300*time.Second),
		RateLimit:      envInt("RATE_LIMIT", 100),
		RateWindow:     envDuration("RATE_WINDOW", 60*time.Second),
		ProxyTimeout:   envDuration("PROXY_TIMEOUT", 30*time.Second),
		MaxRedirects:   envInt("PROXY_MAX_REDIRECTS", 5),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
