package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int
	JWTSecret   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GeoIPDBPath   string
	DefaultLocale string
	StoragePath   string

	WorkerID           string
	WorkerCount        int
	WorkerPollInterval time.Duration
	LeaseTTL           time.Duration
	RetryBackoffBase   time.Duration
	RetryBackoffMax    time.Duration
	StepCallMinTimeout time.Duration
	StepCallMaxTimeout time.Duration

	QuotaResetSpec string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:  getEnvInt("DB_MIN_CONNS", 1),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		StoragePath:   getEnv("STORAGE_PATH", "./storage"),

		WorkerID:           getEnv("WORKER_ID", hostnameOr("worker-1")),
		WorkerCount:        getEnvInt("WORKER_COUNT", 2),
		WorkerPollInterval: envDurationMS("WORKER_POLL_INTERVAL_MS", 1500*time.Millisecond),
		LeaseTTL:           envDurationMS("JOB_LEASE_TTL_MS", 2*time.Minute),
		RetryBackoffBase:   envDurationMS("RETRY_BACKOFF_BASE_MS", 2*time.Second),
		RetryBackoffMax:    envDurationMS("RETRY_BACKOFF_MAX_MS", 5*time.Minute),
		StepCallMinTimeout: envDurationMS("STEP_CALL_MIN_TIMEOUT_MS", 30*time.Second),
		StepCallMaxTimeout: envDurationMS("STEP_CALL_MAX_TIMEOUT_MS", 10*time.Minute),

		QuotaResetSpec: getEnv("QUOTA_RESET_CRON", "17 * * * *"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitEnv("ALLOWED_ORIGINS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDurationMS(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func splitEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
