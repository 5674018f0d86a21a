// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderConfig holds the credentials and model selection for one LLM
// provider. OpenRouter-style providers may carry additional keys and
// fallback models that are rotated through on failure.
type ProviderConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	ExtraKeys      []string // additional keys rotated on failure
	FallbackModels []string // ordered fallback models
}

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Object storage (S3-compatible)
	StorageEnabled   bool
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string

	// AI provider selection
	AIProvider string // "openai", "anthropic", "openrouter"
	Providers  map[string]ProviderConfig

	// Browser rendering service
	RendererURL     string
	BrowserTimeout  time.Duration // default navigation timeout
	MaxContentChars int

	// Fallback proxy for blocked pages
	ProxyFallbackEnabled bool
	ProxyFallbackURL     string
	ProxyFallbackSecret  string
	ProxyAllowlist       []string // API key ids allowed to use the proxy (empty = all)
	ProxyForce           bool     // always use the proxy, skip the renderer

	// CORS
	CORSOrigin string

	// Rate limiting
	RateLimitEnabled     bool
	RateLimitAnonymous   int // requests per window, anonymous tier
	RateLimitedKeyed     int // requests per window, authenticated tier
	RateLimitWindow      time.Duration
	RateLimitDistributed bool // use the tabular-store limiter

	// Request limits
	MaxRequestSizeMB int
	MaxBatchSize     int

	// Cache
	CacheEnabled bool
	CacheTTL     time.Duration

	// Anonymous mode: when true, requests without an API key are admitted
	AllowAnonymous bool

	// Webhooks
	WebhookDefaultSecret string

	// Queue
	RedisURL string

	// Scheduler
	SchedulerInterval  time.Duration
	SchedulerBatchSize int

	// Retention janitor
	JanitorEnabled  bool
	JanitorInterval time.Duration
	LogRetention    time.Duration

	// Worker
	WorkerPollInterval time.Duration
	WorkerBatchSize    int

	// Idle shutdown for scale-to-zero platforms (0 = disabled)
	IdleTimeout time.Duration

	// Secrets-at-rest encryption key material
	MasterSecret string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:robot.db?_journal=WAL&_timeout=5000"),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnv("STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		AIProvider: getEnv("AI_PROVIDER", "openai"),

		RendererURL:     getEnv("RENDERER_URL", ""),
		BrowserTimeout:  getEnvDuration("BROWSER_TIMEOUT", 15*time.Second),
		MaxContentChars: getEnvInt("MAX_CONTENT_CHARS", 20000),

		ProxyFallbackEnabled: getEnvBool("PROXY_FALLBACK_ENABLED", false),
		ProxyFallbackURL:     getEnv("PROXY_FALLBACK_URL", ""),
		ProxyFallbackSecret:  getEnv("PROXY_FALLBACK_SECRET", ""),
		ProxyAllowlist:       getEnvSlice("PROXY_ALLOWLIST", nil),
		ProxyForce:           getEnvBool("PROXY_FORCE", false),

		CORSOrigin: getEnv("CORS_ORIGIN", ""),

		RateLimitEnabled:     getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitAnonymous:   getEnvInt("RATE_LIMIT_ANONYMOUS", 60),
		RateLimitedKeyed:     getEnvInt("RATE_LIMIT_AUTHENTICATED", 1000),
		RateLimitWindow:      getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitDistributed: getEnvBool("RATE_LIMIT_DISTRIBUTED", false),

		MaxRequestSizeMB: getEnvInt("MAX_REQUEST_SIZE_MB", 1),
		MaxBatchSize:     getEnvInt("MAX_BATCH_SIZE", 10),

		CacheEnabled: getEnvBool("CACHE_ENABLED", true),
		CacheTTL:     getEnvDuration("CACHE_TTL", 15*time.Minute),

		AllowAnonymous: getEnvBool("ALLOW_ANONYMOUS", false),

		WebhookDefaultSecret: getEnv("WEBHOOK_DEFAULT_SECRET", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		SchedulerInterval:  getEnvDuration("SCHEDULER_INTERVAL", time.Minute),
		SchedulerBatchSize: getEnvInt("SCHEDULER_BATCH_SIZE", 25),

		JanitorEnabled:  getEnvBool("JANITOR_ENABLED", true),
		JanitorInterval: getEnvDuration("JANITOR_INTERVAL", time.Hour),
		LogRetention:    getEnvDuration("LOG_RETENTION", 30*24*time.Hour),

		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
		WorkerBatchSize:    getEnvInt("WORKER_BATCH_SIZE", 5),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),

		MasterSecret: getEnv("MASTER_SECRET", ""),
	}

	// Enable storage if bucket and endpoint are configured
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	cfg.Providers = map[string]ProviderConfig{
		"openai": {
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		"anthropic": {
			APIKey: getEnv("ANTHROPIC_API_KEY", ""),
			Model:  getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		},
		"openrouter": {
			APIKey:         getEnv("OPENROUTER_API_KEY", ""),
			Model:          getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
			BaseURL:        getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			ExtraKeys:      getEnvSlice("OPENROUTER_EXTRA_KEYS", nil),
			FallbackModels: getEnvSlice("OPENROUTER_FALLBACK_MODELS", nil),
		},
	}

	if _, ok := cfg.Providers[cfg.AIProvider]; !ok {
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.AIProvider)
	}
	if cfg.BrowserTimeout < time.Second || cfg.BrowserTimeout > 60*time.Second {
		return nil, fmt.Errorf("BROWSER_TIMEOUT must be between 1s and 60s")
	}

	return cfg, nil
}

// Provider returns the active provider configuration.
func (c *Config) Provider() ProviderConfig {
	return c.Providers[c.AIProvider]
}

// ProxyAllowed reports whether the fallback proxy may be used for the given
// API key id.
func (c *Config) ProxyAllowed(apiKeyID string) bool {
	if !c.ProxyFallbackEnabled || c.ProxyFallbackURL == "" {
		return false
	}
	if len(c.ProxyAllowlist) == 0 {
		return true
	}
	for _, id := range c.ProxyAllowlist {
		if id == apiKeyID {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
