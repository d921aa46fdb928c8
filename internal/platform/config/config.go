package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	JWTSigningKey  string
	AdminTokenHash string

	// DatabaseURL selects the Postgres-backed stores when set; the in-memory
	// stores are used otherwise.
	DatabaseURL string

	Redis RedisConfig

	// KafkaBrokers enables the Kafka notification dispatcher when non-empty.
	KafkaBrokers []string
	NotifyTopic  string

	VaultWallet string
	FeeWallet   string
	FeePercent  decimal.Decimal

	SweepSchedule   string
	SwapRetryBudget int
}

// RedisConfig holds connection tuning for the deposit observation store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("PAYLINK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("PAYLINK_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("PAYLINK_NOTIFY_TOPIC")
	if topic == "" {
		topic = "paylink.notifications"
	}

	vault := os.Getenv("PAYLINK_VAULT_WALLET")
	if vault == "" {
		vault = "paylink-vault"
	}

	schedule := os.Getenv("PAYLINK_SWEEP_SCHEDULE")
	if schedule == "" {
		schedule = "@every 5m"
	}

	return Server{
		Addr:            addr,
		JWTSigningKey:   jwtSigningKey,
		AdminTokenHash:  os.Getenv("PAYLINK_ADMIN_TOKEN_HASH"),
		DatabaseURL:     os.Getenv("PAYLINK_DATABASE_URL"),
		Redis:           redisFromEnv(),
		KafkaBrokers:    splitList(os.Getenv("PAYLINK_KAFKA_BROKERS")),
		NotifyTopic:     topic,
		VaultWallet:     vault,
		FeeWallet:       os.Getenv("PAYLINK_FEE_WALLET"),
		FeePercent:      decimalEnv("PAYLINK_FEE_PERCENT", decimal.Zero),
		SweepSchedule:   schedule,
		SwapRetryBudget: intEnv("PAYLINK_SWAP_RETRY_BUDGET", 2),
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("PAYLINK_REDIS_URL"),
		PoolSize:     intEnv("PAYLINK_REDIS_POOL_SIZE", 10),
		MinIdleConns: intEnv("PAYLINK_REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  durationEnv("PAYLINK_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  durationEnv("PAYLINK_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: durationEnv("PAYLINK_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func decimalEnv(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return fallback
	}
	return d
}
