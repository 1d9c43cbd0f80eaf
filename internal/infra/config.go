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
	JWTSecret   string
	AutoMigrate bool

	StoreBackend  string
	LedgerBackend string
	RedisURL      string

	PlanCatalogPath string
	DefaultPlan     string

	ChatProvider  string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAIOrg     string
	OllamaURL     string
	OllamaModel   string

	HistoryTurns       int
	BackendTimeout     time.Duration
	StreamDrainTimeout time.Duration
	StreamKeepalive    time.Duration
	StreamAutoFallback bool

	StoragePath    string
	StorageBaseURL string
	GeoIPDBPath    string
	DefaultLocale  string
	CORSOrigins    []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	SentryDSN  string
	OTelStdout bool

	SessionIdleTTL time.Duration
	SweepSchedule  string
}

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", false),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", BackendPostgres)),
		RedisURL:      os.Getenv("REDIS_URL"),

		PlanCatalogPath: os.Getenv("PLAN_CATALOG_PATH"),
		DefaultPlan:     getEnv("DEFAULT_PLAN", "free"),

		ChatProvider:  strings.ToLower(getEnv("CHAT_PROVIDER", "openai")),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:     os.Getenv("OPENAI_ORG"),
		OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3.1"),

		HistoryTurns:       getEnvInt("HISTORY_TURNS", 10),
		BackendTimeout:     getEnvDuration("BACKEND_TIMEOUT", 90*time.Second),
		StreamDrainTimeout: getEnvDuration("STREAM_DRAIN_TIMEOUT", 30*time.Second),
		StreamKeepalive:    getEnvDuration("STREAM_KEEPALIVE", 15*time.Second),
		StreamAutoFallback: getEnvBool("STREAM_AUTO_FALLBACK", false),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:  getEnv("DEFAULT_LOCALE", "en"),
		CORSOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		SentryDSN:  os.Getenv("SENTRY_DSN"),
		OTelStdout: getEnvBool("OTEL_STDOUT", false),

		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 24*time.Hour),
		SweepSchedule:  getEnv("SWEEP_SCHEDULE", "@every 15m"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if err := cfg.validateBackends(); err != nil {
		return nil, err
	}
	if cfg.HistoryTurns < 0 {
		return nil, fmt.Errorf("HISTORY_TURNS must not be negative")
	}

	return cfg, nil
}

func (c *Config) validateBackends() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND %q is not supported", c.StoreBackend)
	}
	switch c.LedgerBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("LEDGER_BACKEND %q is not supported", c.LedgerBackend)
	}
	if c.NeedsDatabase() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.LedgerBackend == BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when LEDGER_BACKEND=redis")
	}
	switch c.ChatProvider {
	case "openai", "ollama", "static":
	default:
		return fmt.Errorf("CHAT_PROVIDER %q is not supported", c.ChatProvider)
	}
	return nil
}

// NeedsDatabase reports whether any configured backend uses PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.StoreBackend == BackendPostgres || c.LedgerBackend == BackendPostgres
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

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
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
