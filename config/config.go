package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Provider      ProviderConfig
	Gateway       GatewayConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProviderConfig holds identity-provider configuration
type ProviderConfig struct {
	Issuer       string
	Audience     string
	AdminBaseURL string
	AdminAPIKey  string
	CacheTTL     time.Duration
	HTTPTimeout  time.Duration
}

// GatewayConfig holds authorization-gateway configuration
type GatewayConfig struct {
	// Enabled gates the whole verification pipeline. When false every
	// protected route rejects with AUTH_SERVICE_ERROR.
	Enabled bool

	// Sliding-window defaults for authenticated requests.
	AuthRateLimitMax    int
	AuthRateLimitWindow time.Duration

	// Sliding-window defaults for anonymous (optional-auth) requests.
	AnonRateLimitMax    int
	AnonRateLimitWindow time.Duration

	// RuntimeTTL is how long dynamic gateway settings are cached before
	// re-reading the configuration source.
	RuntimeTTL time.Duration
}

// RedisConfig holds the optional Redis configuration for the distributed
// rate limiter. When Addr is empty the in-process limiter is used.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
	MetricsPort    int
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Provider: ProviderConfig{
			Issuer:       getEnv("PROVIDER_ISSUER", ""),
			Audience:     getEnv("PROVIDER_AUDIENCE", ""),
			AdminBaseURL: getEnv("PROVIDER_ADMIN_BASE_URL", ""),
			AdminAPIKey:  getEnv("PROVIDER_ADMIN_API_KEY", ""),
			CacheTTL:     getEnvAsDuration("PROVIDER_JWKS_CACHE_TTL", time.Hour),
			HTTPTimeout:  getEnvAsDuration("PROVIDER_HTTP_TIMEOUT", 10*time.Second),
		},
		Gateway: GatewayConfig{
			Enabled:             getEnvAsBool("GATEWAY_ENABLED", true),
			AuthRateLimitMax:    getEnvAsInt("GATEWAY_AUTH_RATE_LIMIT_MAX", 120),
			AuthRateLimitWindow: getEnvAsDuration("GATEWAY_AUTH_RATE_LIMIT_WINDOW", time.Minute),
			AnonRateLimitMax:    getEnvAsInt("GATEWAY_ANON_RATE_LIMIT_MAX", 30),
			AnonRateLimitWindow: getEnvAsDuration("GATEWAY_ANON_RATE_LIMIT_WINDOW", time.Minute),
			RuntimeTTL:          getEnvAsDuration("GATEWAY_RUNTIME_CONFIG_TTL", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Provider validation (required in production)
	if c.IsProduction() {
		if c.Provider.Issuer == "" {
			return fmt.Errorf("provider issuer is required in production")
		}
		if c.Provider.Audience == "" {
			return fmt.Errorf("provider audience is required in production")
		}
	}

	if c.Gateway.AuthRateLimitMax <= 0 || c.Gateway.AnonRateLimitMax <= 0 {
		return fmt.Errorf("rate limit maximums must be positive")
	}
	if c.Gateway.AuthRateLimitWindow <= 0 || c.Gateway.AnonRateLimitWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "gateway"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "identity_gateway"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getEnv returns the value of an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns an environment variable as an integer or a default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvAsBool returns an environment variable as a boolean or a default
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration returns an environment variable as a duration or a default
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
