package config

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	// Signed token settings
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration

	// 64 hex chars (32 bytes) for AES-256-GCM field encryption
	EncryptionKey string

	// External prediction service
	AIBaseURL     string
	AITimeout     time.Duration
	AIMaxAttempts int
	AIRetryDelay  time.Duration

	// Optional shared cache backend; empty means in-process cache
	RedisAddr     string
	RedisPassword string

	AllowedOrigins []string

	CacheTTL        time.Duration
	CacheMaxEntries int

	OTLPEndpoint string
}

func Load() Config {
	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "nutriscan-api"),
		JWTAudience: getEnv("JWT_AUDIENCE", "nutriscan-app"),
		AccessTTL:   getEnvDuration("ACCESS_TOKEN_TTL", 7*24*time.Hour),
		RefreshTTL:  getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		AIBaseURL:     getEnv("AI_SERVICE_URL", "http://127.0.0.1:8000"),
		AITimeout:     getEnvDuration("AI_TIMEOUT", 30*time.Second),
		AIMaxAttempts: getEnvInt("AI_MAX_ATTEMPTS", 3),
		AIRetryDelay:  getEnvDuration("AI_RETRY_DELAY", 2*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		CacheTTL:        getEnvDuration("RESPONSE_CACHE_TTL", 30*time.Second),
		CacheMaxEntries: getEnvInt("RESPONSE_CACHE_MAX_ENTRIES", 1000),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
	}
}

// Validate reports secret misconfiguration. In prod a missing or malformed
// secret is fatal at startup; in dev the caller falls back to random keys,
// which makes prior ciphertext and sessions unusable across restarts.
func (c Config) Validate() error {
	var problems []string

	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is not set")
	}

	if c.EncryptionKey == "" {
		problems = append(problems, "ENCRYPTION_KEY is not set")
	} else if _, err := DecodeEncryptionKey(c.EncryptionKey); err != nil {
		problems = append(problems, "ENCRYPTION_KEY is invalid: "+err.Error())
	}

	if len(problems) == 0 {
		return nil
	}

	return errors.New(strings.Join(problems, "; "))
}

// DecodeEncryptionKey parses the 64-hex-char field encryption key.
func DecodeEncryptionKey(s string) ([]byte, error) {
	if len(s) != 64 {
		return nil, fmt.Errorf("want 64 hex chars, got %d", len(s))
	}

	return hex.DecodeString(s)
}

func buildDBURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "nutriscan")
	pass := getEnv("DB_PASSWORD", "nutriscan")
	name := getEnv("DB_NAME", "nutriscan")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			return fallback
		}

		return d
	}
	return fallback
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)

		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
