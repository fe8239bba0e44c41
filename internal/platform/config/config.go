package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean.
type Config struct {
	Addr          string
	DatabaseDSN   string
	JWTSigningKey string

	Redis    RedisConfig
	Minio    MinioConfig
	Kafka    KafkaConfig
	Pricing  PricingConfig
	Issuance IssuanceConfig

	// RegistryURL is the base URL of the external professional registry.
	RegistryURL string
	// RendererURL is the base URL of the card/invoice rendering service.
	RendererURL string
}

// RedisConfig holds connection settings for the optional Redis counter
// backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MinioConfig holds object storage settings for proof-of-payment uploads.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// KafkaConfig holds the optional audit relay settings.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// PricingConfig carries the two base rates of the tier step function, in IDR.
// The two-bucket shape is fixed; only the amounts are configurable.
type PricingConfig struct {
	LowTierRate  int64 // tiers 1-6
	HighTierRate int64 // tiers 7-9
}

// IssuanceConfig bounds the card issuance fan-out.
type IssuanceConfig struct {
	Concurrency   int
	RenderTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:          envOr("KTA_ADDR", ":8080"),
		DatabaseDSN:   os.Getenv("KTA_DATABASE_DSN"),
		JWTSigningKey: envOr("KTA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("KTA_REDIS_URL"),
			PoolSize:     envInt("KTA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("KTA_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("KTA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("KTA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("KTA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("KTA_MINIO_ENDPOINT"),
			AccessKey: os.Getenv("KTA_MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("KTA_MINIO_SECRET_KEY"),
			Bucket:    envOr("KTA_MINIO_BUCKET", "kta-artifacts"),
			UseSSL:    os.Getenv("KTA_MINIO_USE_SSL") == "true",
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KTA_KAFKA_BROKERS")),
			AuditTopic: envOr("KTA_KAFKA_AUDIT_TOPIC", "kta.audit"),
		},
		Pricing: PricingConfig{
			LowTierRate:  envInt64("KTA_PRICE_LOW_TIER", 100_000),
			HighTierRate: envInt64("KTA_PRICE_HIGH_TIER", 300_000),
		},
		Issuance: IssuanceConfig{
			Concurrency:   envInt("KTA_ISSUANCE_CONCURRENCY", 4),
			RenderTimeout: envDuration("KTA_RENDER_TIMEOUT", 15*time.Second),
		},
		RegistryURL: os.Getenv("KTA_REGISTRY_URL"),
		RendererURL: os.Getenv("KTA_RENDERER_URL"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
