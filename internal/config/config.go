package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RetentionKeep leaves source orders untouched after checkout, RetentionFlag
// stamps settled_at on them, RetentionDelete removes them.
const (
	RetentionKeep   = "keep"
	RetentionFlag   = "flag"
	RetentionDelete = "delete"
)

type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	JWTSecret          string
	JWTExpirySeconds   int64
	CronSecret         string
	RabbitMQURL        string
	RabbitMQWorkerMode string
	CorsAllowedOrigins []string

	SessionTTL            time.Duration
	SweepInterval         time.Duration
	AllocationMaxAttempts int
	CheckoutRetention     string

	WSHeartbeatInterval time.Duration

	ObjectStoreEndpoint        string
	ObjectStoreRegion          string
	ObjectStoreAccessKeyID     string
	ObjectStoreSecretAccessKey string
	ObjectStoreBucket          string
	ObjectStorePublicBaseURL   string
	ObjectStoreStorageClass    string
}

func Load() Config {
	cfg := Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8087"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTExpirySeconds:   getEnvInt64("JWT_EXPIRY", 3600),
		CronSecret:         getEnv("CRON_SECRET", ""),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQWorkerMode: getEnv("RABBITMQ_WORKER_MODE", "daemon"),
		CorsAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		SessionTTL:            getEnvDuration("SESSION_TTL", 6*time.Hour),
		SweepInterval:         getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		AllocationMaxAttempts: int(getEnvInt64("ALLOCATION_MAX_ATTEMPTS", 5)),
		CheckoutRetention:     getEnv("CHECKOUT_RETENTION", RetentionKeep),

		WSHeartbeatInterval: getEnvDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second),

		ObjectStoreEndpoint:        getEnv("OBJECT_STORE_ENDPOINT", ""),
		ObjectStoreRegion:          getEnv("OBJECT_STORE_REGION", "auto"),
		ObjectStoreAccessKeyID:     getEnv("OBJECT_STORE_ACCESS_KEY_ID", ""),
		ObjectStoreSecretAccessKey: getEnv("OBJECT_STORE_SECRET_ACCESS_KEY", ""),
		ObjectStoreBucket:          getEnv("OBJECT_STORE_BUCKET", ""),
		ObjectStorePublicBaseURL:   getEnv("OBJECT_STORE_PUBLIC_BASE_URL", ""),
		ObjectStoreStorageClass:    getEnv("OBJECT_STORE_STORAGE_CLASS", "STANDARD"),
	}

	switch cfg.CheckoutRetention {
	case RetentionKeep, RetentionFlag, RetentionDelete:
	default:
		cfg.CheckoutRetention = RetentionKeep
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 6 * time.Hour
	}
	if cfg.AllocationMaxAttempts <= 0 {
		cfg.AllocationMaxAttempts = 5
	}

	return cfg
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
