package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	JWTSecret  string
	ServerPort string
	LogMode    string

	// Empty RedisAddr keeps the domain tree cache in process memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TreeCacheTTL  time.Duration

	GCSBucket        string
	GCSEmulatorHost  string
	GCSPublicBaseURL string

	DefaultInstrumentKey string
	CORSOrigins          string
	SubmitRateLimit      int

	// Accounts registered with one of these emails get the admin role.
	AdminEmails []string

	// EnvFileLoaded is false when no .env file was found and only the
	// process environment was used.
	EnvFileLoaded bool
}

func LoadConfig() (*Config, error) {
	loaded := godotenv.Load() == nil

	cfg := &Config{
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "postgres"),
		DBPassword:           getEnv("DB_PASSWORD", "postgres"),
		DBName:               getEnv("DB_NAME", "evalsurvey"),
		DBSSLMode:            getEnv("DB_SSLMODE", "disable"),
		JWTSecret:            getEnv("JWT_SECRET", "secret"),
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		LogMode:              getEnv("LOG_MODE", "dev"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		GCSBucket:            getEnv("GCS_BUCKET", "multimedia"),
		GCSEmulatorHost:      getEnv("GCS_EMULATOR_HOST", ""),
		GCSPublicBaseURL:     getEnv("GCS_PUBLIC_BASE_URL", ""),
		DefaultInstrumentKey: getEnv("DEFAULT_INSTRUMENT_KEY", "centro-sim-qa"),
		CORSOrigins:          getEnv("CORS_ORIGINS", "*"),
		AdminEmails:          splitList(getEnv("ADMIN_EMAILS", "")),
		EnvFileLoaded:        loaded,
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.TreeCacheTTL, err = time.ParseDuration(getEnv("TREE_CACHE_TTL", "10m")); err != nil {
		return nil, fmt.Errorf("invalid TREE_CACHE_TTL: %w", err)
	}
	if cfg.SubmitRateLimit, err = strconv.Atoi(getEnv("SUBMIT_RATE_LIMIT", "20")); err != nil {
		return nil, fmt.Errorf("invalid SUBMIT_RATE_LIMIT: %w", err)
	}
	return cfg, nil
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// IsAdminEmail matches case-insensitively.
func (c *Config) IsAdminEmail(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(e, strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
