package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	UpstreamBaseURL string
	UpstreamToken   string
	UpstreamTimeout time.Duration
	SourceBackend   string
	SourcesFile     string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	PageSize       int
	MaxPages       int
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int

	DefaultCountryCode string
	DisplayTimezone    string
	ExportTimeLayout   string
	ExportDir          string

	HTTPAddr  string
	LogLevel  string
	ChromeBin string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "http://localhost:3000/api"),
		UpstreamToken:   getEnv("UPSTREAM_TOKEN", ""),
		UpstreamTimeout: time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SEC", 15)) * time.Second,
		SourceBackend:   getEnv("SOURCE_BACKEND", "http"),
		SourcesFile:     getEnv("SOURCES_FILE", ""),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "leadboard"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "leadboard"),
		PostgresDB:       getEnv("POSTGRES_DB", "leadboard"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		PageSize:       clampInt(getEnvInt("PAGE_SIZE", 100), 1, 1000),
		MaxPages:       clampInt(getEnvInt("MAX_PAGES", 10), 1, 1000),
		MaxConcurrency: clampInt(getEnvInt("MAX_CONCURRENCY", 1), 1, 32),
		RateLimitMs:    clampInt(getEnvInt("RATE_LIMIT_MS", 0), 0, 60000),
		MaxRetries:     clampInt(getEnvInt("MAX_RETRIES", 3), 1, 10),

		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", ""),
		DisplayTimezone:    getEnv("DISPLAY_TIMEZONE", "UTC"),
		ExportTimeLayout:   getEnv("EXPORT_TIME_LAYOUT", "2006-01-02 15:04:05"),
		ExportDir:          getEnv("EXPORT_DIR", "./output"),

		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		ChromeBin: getEnv("CHROME_BIN", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Location resolves DisplayTimezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		log.Printf("[config] Unknown DISPLAY_TIMEZONE %q, using UTC", c.DisplayTimezone)
		return time.UTC
	}
	return loc
}

// RateLimit is the minimum spacing between upstream page requests.
func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.RateLimitMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
