// Package config builds process configuration from environment variables so
// main stays lean. Missing variables fall back to development defaults;
// malformed values fall back the same way rather than aborting startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevJWTSigningKey is the development fallback signing key. main warns when
// it is in effect; production deployments must override JWT_SIGNING_KEY.
const DevJWTSigningKey = "dev-secret-key-change-in-production"

// Config captures everything the gateway process needs at startup.
type Config struct {
	Addr          string
	UpstreamURL   string
	JWTSigningKey string
	LogLevel      string
	InstanceID    string

	// AuthzRules overrides the built-in rule table when set, as
	// "prefix=ROLE|ROLE;prefix=" entries in priority order.
	AuthzRules string

	// AdminKeyHash guards the admin endpoints. Empty leaves them unmounted.
	AdminKeyHash string

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
}

// RedisConfig tunes the shared counter store connection. An empty URL means
// Redis is not configured and the in-memory store is used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimitConfig carries the quota tiers and the store-outage policy.
type RateLimitConfig struct {
	Window   time.Duration
	Grace    time.Duration
	Admin    int64
	Standard int64
	Default  int64
	Endpoint int64
	Global   int64
	FailOpen bool
}

// AuditConfig wires the optional audit sinks. Empty broker list and empty
// database URL disable the respective sink; the log sink is always on.
type AuditConfig struct {
	KafkaBrokers []string
	Topic        string
	DatabaseURL  string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:          getenv("GATEWAY_ADDR", ":8080"),
		UpstreamURL:   getenv("UPSTREAM_URL", "http://localhost:9090"),
		JWTSigningKey: getenv("JWT_SIGNING_KEY", DevJWTSigningKey),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		InstanceID:    getenv("INSTANCE_ID", uuid.NewString()),
		AuthzRules:    os.Getenv("AUTHZ_RULES"),
		AdminKeyHash:  os.Getenv("ADMIN_KEY_HASH"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getenvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getenvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			Window:   getenvDuration("RATE_LIMIT_WINDOW", time.Minute),
			Grace:    getenvDuration("RATE_LIMIT_GRACE", 10*time.Second),
			Admin:    getenvInt64("RATE_LIMIT_ADMIN", 1000),
			Standard: getenvInt64("RATE_LIMIT_STANDARD", 100),
			Default:  getenvInt64("RATE_LIMIT_DEFAULT", 30),
			Endpoint: getenvInt64("RATE_LIMIT_ENDPOINT", 500),
			Global:   getenvInt64("RATE_LIMIT_GLOBAL", 5000),
			FailOpen: getenvBool("RATE_LIMIT_FAIL_OPEN", true),
		},
		Audit: AuditConfig{
			KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:        getenv("AUDIT_TOPIC", "perimeter.audit.v1"),
			DatabaseURL:  os.Getenv("AUDIT_DATABASE_URL"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getenvInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getenvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
