// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// AuthConfig holds authentication and identity provider configuration.
type AuthConfig struct {
	IssuerURL      string        // OIDC issuer URL for external identity providers
	JWKSURL        string        // Override JWKS URL (if no .well-known discovery)
	JWTSecret      string        // HS256 shared secret for local/dev JWT auth
	Audience       string        // Required JWT audience claim
	AllowedIssuers []string      // Accepted issuers (defaults to [IssuerURL])
	JWKSCacheTTL   time.Duration // JWKS cache duration (default: 1h)
	RoleClaim      string        // JWT claim carrying the principal role (default "role")
	TokenExpiry    time.Duration // lifetime of locally minted dev tokens (default 24h)
}

// OIDCEnabled returns true when an external identity provider is configured.
func (a *AuthConfig) OIDCEnabled() bool {
	return a.IssuerURL != "" || a.JWKSURL != ""
}

// Config holds the configuration for the query gateway.
type Config struct {
	DatabasePath string // path to the SQLite data file
	ListenAddr   string // HTTP listen address (default ":8080")
	LogLevel     string // log level: debug, info, warn, error (default "info")
	Env          string // environment: "development" (default) or "production"

	// Query constraints
	MaxLimit           int           // row ceiling injected into unbounded SELECTs (default 1000)
	StatementTimeout   time.Duration // per-statement execution deadline (default 5s)
	SchemaCacheTTL     time.Duration // schema cache time-to-live (default 1h)
	ResultCacheTTL     time.Duration // result cache time-to-live (default 1h)
	ResultCacheEntries int           // result cache capacity (default 1000)
	AuditCapacity      int           // audit ring buffer capacity (default 10000)

	// LLM
	OpenAIAPIKey   string        // API key for the SQL-generation collaborator
	OpenAIModel    string        // chat model id (default "gpt-4o-mini")
	LLMTimeout     time.Duration // generation request deadline (default 10s)
	LLMTemperature float64       // sampling temperature (default 0.2)
	DevFallback    bool          // skip the LLM entirely and use rule-based generation

	// Rate limiting. The query endpoint gets its own tighter budget since
	// each request can reach the model provider.
	RateLimitRPS        float64 // sustained requests per second, whole surface (default 10)
	RateLimitBurst      int     // burst capacity, whole surface (default 20)
	QueryRateLimitRPM   int     // query endpoint requests per minute (default 20)
	QueryRateLimitBurst int     // query endpoint burst capacity (default 5)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// RolesFile optionally points at a YAML file overriding the built-in
	// role -> table mapping.
	RolesFile string

	// Auth holds identity provider and authentication configuration.
	Auth AuthConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
// The LLM key is optional — without it the gateway runs in rule-based
// fallback mode.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DatabasePath: os.Getenv("DATABASE_PATH"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),
		RolesFile:    os.Getenv("ROLES_FILE"),
		DevFallback:  parseBoolEnv("DEV_FALLBACK_MODE"),
	}

	if v := os.Getenv("MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxLimit = n
		}
	}
	if v := os.Getenv("RESULT_CACHE_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ResultCacheEntries = n
		}
	}
	if v := os.Getenv("AUDIT_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AuditCapacity = n
		}
	}

	cfg.StatementTimeout = parseDurationEnv("STATEMENT_TIMEOUT", 5*time.Second)
	cfg.SchemaCacheTTL = parseDurationEnv("SCHEMA_CACHE_TTL", time.Hour)
	cfg.ResultCacheTTL = parseDurationEnv("RESULT_CACHE_TTL", time.Hour)
	cfg.LLMTimeout = parseDurationEnv("LLM_TIMEOUT", 10*time.Second)

	cfg.LLMTemperature = 0.2
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLMTemperature = f
		}
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("QUERY_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueryRateLimitRPM = n
		}
	}
	if v := os.Getenv("QUERY_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueryRateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Auth config
	cfg.Auth = AuthConfig{
		IssuerURL: os.Getenv("AUTH_ISSUER_URL"),
		JWKSURL:   os.Getenv("AUTH_JWKS_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		Audience:  os.Getenv("AUTH_AUDIENCE"),
		RoleClaim: os.Getenv("AUTH_ROLE_CLAIM"),
	}
	if v := os.Getenv("AUTH_ALLOWED_ISSUERS"); v != "" {
		cfg.Auth.AllowedIssuers = strings.Split(v, ",")
	}
	cfg.Auth.JWKSCacheTTL = parseDurationEnv("AUTH_JWKS_CACHE_TTL", time.Hour)
	cfg.Auth.TokenExpiry = parseDurationEnv("AUTH_TOKEN_EXPIRY", 24*time.Hour)
	if cfg.Auth.RoleClaim == "" {
		cfg.Auth.RoleClaim = "role"
	}

	// Defaults
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "talkdata.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = 1000
	}
	if cfg.ResultCacheEntries == 0 {
		cfg.ResultCacheEntries = 1000
	}
	if cfg.AuditCapacity == 0 {
		cfg.AuditCapacity = 10000
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.QueryRateLimitRPM == 0 {
		cfg.QueryRateLimitRPM = 20
	}
	if cfg.QueryRateLimitBurst == 0 {
		cfg.QueryRateLimitBurst = 5
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-secret-change-in-production"
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set — using insecure default. Set JWT_SECRET in production!")
	}
	if cfg.OpenAIAPIKey == "" && !cfg.DevFallback {
		cfg.Warnings = append(cfg.Warnings, "OPENAI_API_KEY not set — SQL generation will use the rule-based fallback")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.Auth.JWTSecret == "dev-secret-change-in-production" && !cfg.Auth.OIDCEnabled() {
			return nil, fmt.Errorf("JWT_SECRET or an OIDC issuer must be configured in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func parseBoolEnv(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}
