package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string

	APIBaseURL        string
	APIRequestTimeout time.Duration
	APIMaxAttempts    int

	AuthToken        string
	AuthTokenURL     string
	AuthClientID     string
	AuthClientSecret string
	AuthAudience     string
	AuthTokenSkew    time.Duration

	NotifyWebhookURL    string
	NotifyWebhookSecret string

	QueryStaleTime time.Duration
	RedisURL       string
	QueryCacheTTL  time.Duration

	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	TracingEnabled   bool
	OTLPEndpoint     string
	TracingSampling  float64

	MockAPIPort               string
	MockAPIJWTSecret          string
	MockAPIIssuer             string
	MockAPIAudience           string
	MockAPICORSAllowedOrigins []string
	MockAPIRateLimit          string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, errors.New("API_BASE_URL is required")
	}
	return cfg, nil
}

// LoadServer reads configuration for the development backend, which does not
// need API_BASE_URL but does need a signing secret.
func LoadServer() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.MockAPIJWTSecret) == "" {
		return nil, errors.New("MOCKAPI_JWT_SECRET is required")
	}
	return cfg, nil
}

func load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:            valueOrDefault(k.String("APP_ENV"), "development"),
		APIBaseURL:        strings.TrimRight(strings.TrimSpace(k.String("API_BASE_URL")), "/"),
		APIRequestTimeout: parseDuration(k.String("API_REQUEST_TIMEOUT"), "0s"),
		APIMaxAttempts:    parseInt(k.String("API_MAX_ATTEMPTS"), 1),

		AuthToken:        strings.TrimSpace(k.String("AUTH_TOKEN")),
		AuthTokenURL:     strings.TrimSpace(k.String("AUTH_TOKEN_URL")),
		AuthClientID:     strings.TrimSpace(k.String("AUTH_CLIENT_ID")),
		AuthClientSecret: k.String("AUTH_CLIENT_SECRET"),
		AuthAudience:     strings.TrimSpace(k.String("AUTH_AUDIENCE")),
		AuthTokenSkew:    parseDuration(k.String("AUTH_TOKEN_SKEW"), "30s"),

		NotifyWebhookURL:    strings.TrimSpace(k.String("NOTIFY_WEBHOOK_URL")),
		NotifyWebhookSecret: k.String("NOTIFY_WEBHOOK_SECRET"),

		QueryStaleTime: parseDuration(k.String("QUERY_STALE_TIME"), "0s"),
		RedisURL:       strings.TrimSpace(k.String("REDIS_URL")),
		QueryCacheTTL:  parseDuration(k.String("QUERY_CACHE_TTL"), "5m"),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "console"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "restaurant_admin"),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),

		MockAPIPort:               valueOrDefault(k.String("MOCKAPI_PORT"), "7000"),
		MockAPIJWTSecret:          k.String("MOCKAPI_JWT_SECRET"),
		MockAPIIssuer:             valueOrDefault(k.String("MOCKAPI_ISSUER"), "restaurant-admin-dev"),
		MockAPIAudience:           valueOrDefault(k.String("MOCKAPI_AUDIENCE"), "restaurant-api"),
		MockAPICORSAllowedOrigins: splitAndTrim(k.String("MOCKAPI_CORS_ALLOWED_ORIGINS")),
		MockAPIRateLimit:          valueOrDefault(k.String("MOCKAPI_RATE_LIMIT"), "120-M"),
	}
	if cfg.APIMaxAttempts < 1 {
		cfg.APIMaxAttempts = 1
	}
	return cfg, nil
}

// MockAPIAddr returns the address the development backend should bind to.
func (c *Config) MockAPIAddr() string {
	port := strings.TrimSpace(c.MockAPIPort)
	if port == "" {
		port = "7000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// UsesClientCredentials reports whether tokens should be fetched from the
// identity provider instead of using a fixed AUTH_TOKEN.
func (c *Config) UsesClientCredentials() bool {
	return c.AuthTokenURL != "" && c.AuthClientID != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	return withEnv(env, Load)
}

// LoadServerForTests is LoadForTests for LoadServer.
func LoadServerForTests(env map[string]string) (*Config, error) {
	return withEnv(env, LoadServer)
}

func withEnv(env map[string]string, fn func() (*Config, error)) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := fn()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
