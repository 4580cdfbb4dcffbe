package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// minStateSecretLen is the shortest acceptable HMAC key for state signing.
const minStateSecretLen = 32

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Provider      ProviderConfig
	Session       SessionConfig
	Permission    PermissionConfig
	Legacy        LegacyConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// PublicURL is the externally visible base URL, used to build the
	// callback redirect URI and to mark cookies Secure.
	PublicURL string
}

// ProviderConfig holds the identity provider client registration.
type ProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// StateSecret signs the state and flow ticket blobs.
	StateSecret string
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	RedisURL       string
	TTL            time.Duration
	RefreshWindow  time.Duration
	CookieName     string
	VerifierCookie string
	VerifierTTL    time.Duration
}

// PermissionConfig holds the permission backend client settings.
type PermissionConfig struct {
	BaseURL   string
	AppID     string
	CacheTTL  time.Duration
	CacheSize int
}

// LegacyConfig holds the legacy credential database settings. The legacy
// path is optional and disabled when PostgresURL is empty.
type LegacyConfig struct {
	PostgresURL string
	CookieName  string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Provider:      loadProviderConfig(),
		Session:       loadSessionConfig(),
		Permission:    loadPermissionConfig(),
		Legacy:        loadLegacyConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("AUTHD_HOST", "0.0.0.0"),
		Port:            getEnv("AUTHD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("AUTHD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("AUTHD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("AUTHD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("AUTHD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("AUTHD_HEALTH_PORT", "9090"),
		PublicURL:       getEnv("AUTHD_PUBLIC_URL", "http://localhost:8080"),
	}
}

func loadProviderConfig() ProviderConfig {
	scopes := strings.Fields(getEnv("AUTHD_OIDC_SCOPES", "openid profile email offline_access"))
	return ProviderConfig{
		IssuerURL:    getEnv("AUTHD_OIDC_ISSUER_URL", ""),
		ClientID:     getEnv("AUTHD_OIDC_CLIENT_ID", ""),
		ClientSecret: getEnv("AUTHD_OIDC_CLIENT_SECRET", ""),
		RedirectURL:  getEnv("AUTHD_OIDC_REDIRECT_URL", ""),
		Scopes:       scopes,
		StateSecret:  getEnv("AUTHD_STATE_SECRET", ""),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		RedisURL:       getEnv("AUTHD_REDIS_URL", ""),
		TTL:            getEnvDuration("AUTHD_SESSION_TTL", 30*24*time.Hour),
		RefreshWindow:  getEnvDuration("AUTHD_REFRESH_WINDOW", 2*time.Minute),
		CookieName:     getEnv("AUTHD_SESSION_COOKIE", "sso_session"),
		VerifierCookie: getEnv("AUTHD_VERIFIER_COOKIE", "sso_flow"),
		VerifierTTL:    getEnvDuration("AUTHD_VERIFIER_TTL", 10*time.Minute),
	}
}

func loadPermissionConfig() PermissionConfig {
	return PermissionConfig{
		BaseURL:   getEnv("AUTHD_PERMISSION_BASE_URL", ""),
		AppID:     getEnv("AUTHD_PERMISSION_APP_ID", ""),
		CacheTTL:  getEnvDuration("AUTHD_PERMISSION_CACHE_TTL", 30*time.Second),
		CacheSize: getEnvInt("AUTHD_PERMISSION_CACHE_SIZE", 4096),
	}
}

func loadLegacyConfig() LegacyConfig {
	return LegacyConfig{
		PostgresURL: getEnv("AUTHD_LEGACY_POSTGRES_URL", ""),
		CookieName:  getEnv("AUTHD_LEGACY_COOKIE", "legacy_token"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("AUTHD_LOG_LEVEL", "info"),
		LogFormat:          getEnv("AUTHD_LOG_FORMAT", "json"),
		MetricsEnabled:     getEnvBool("AUTHD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("AUTHD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("AUTHD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("AUTHD_OTEL_SERVICE_NAME", "authd"),
		OTelServiceVersion: getEnv("AUTHD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("AUTHD_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if _, err := url.Parse(c.Server.PublicURL); err != nil {
		return fmt.Errorf("invalid public URL: %w", err)
	}

	if c.Provider.IssuerURL == "" {
		return fmt.Errorf("OIDC issuer URL is required")
	}
	if c.Provider.ClientID == "" || c.Provider.ClientSecret == "" {
		return fmt.Errorf("OIDC client credentials are required")
	}
	if c.Provider.RedirectURL == "" {
		return fmt.Errorf("OIDC redirect URL is required")
	}
	if len(c.Provider.StateSecret) < minStateSecretLen {
		return fmt.Errorf("state secret must be at least %d bytes", minStateSecretLen)
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.VerifierTTL <= 0 {
		return fmt.Errorf("verifier TTL must be positive")
	}

	if c.Permission.BaseURL == "" {
		return fmt.Errorf("permission backend base URL is required")
	}
	if c.Permission.AppID == "" {
		return fmt.Errorf("permission app ID is required")
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OTel endpoint is required when OTel is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
