package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Transport kinds
const (
	TransportWebSocket = "websocket"
	TransportSocketIO  = "socketio"
)

// Config holds all application configuration
type Config struct {
	// Realtime push connection
	Realtime RealtimeConfig

	// Paginated ticket API
	API APIConfig

	// Credential sources
	Auth AuthConfig

	// Read-state persistence
	Store StoreConfig

	// Local view API
	HTTP HTTPConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// RealtimeConfig holds the push connection configuration
type RealtimeConfig struct {
	URL                  string        `validate:"required,url"`
	Transport            string        `validate:"oneof=websocket socketio"`
	Path                 string        `validate:"omitempty,startswith=/"`
	HandshakeTimeout     time.Duration `validate:"gt=0"`
	BaseDelay            time.Duration `validate:"gt=0"`
	MaxDelay             time.Duration `validate:"gtefield=BaseDelay"`
	MaxReconnectAttempts int           `validate:"gte=-1"`
	PingInterval         time.Duration `validate:"gt=0"`
	PongWait             time.Duration `validate:"gtfield=PingInterval"`
}

// APIConfig holds the ticket API client configuration
type APIConfig struct {
	BaseURL        string        `validate:"omitempty,url"`
	PageSize       int           `validate:"gte=1,lte=100"`
	RequestTimeout time.Duration `validate:"gt=0"`
	RateLimitRPS   float64       `validate:"gt=0"`
	RateLimitBurst int           `validate:"gte=1"`
}

// AuthConfig holds the credential configuration. Exactly one source is
// used, in order: Token, TokenFile, SigningSecret.
type AuthConfig struct {
	Token         string
	TokenFile     string `validate:"omitempty,file"`
	SigningSecret string
	UserID        string
	OrgID         string        `validate:"omitempty,uuid"`
	TokenTTL      time.Duration `validate:"gt=0"`
	RefreshLeeway time.Duration `validate:"gte=0"`
}

// StoreConfig holds read-state persistence configuration
type StoreConfig struct {
	DatabaseURL    string
	MigrationsPath string
	MaxConns       int32 `validate:"gte=1"`
}

// HTTPConfig holds the local view API server configuration
type HTTPConfig struct {
	Addr            string `validate:"required"`
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimit       bool
	RateLimitRPS    float64
	RateLimitBurst  int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json text"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string `validate:"oneof=development staging production test"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv reads the configuration from the environment without validating it
func FromEnv() *Config {
	return &Config{
		Realtime: RealtimeConfig{
			URL:                  os.Getenv("REALTIME_URL"),
			Transport:            getEnvOrDefault("REALTIME_TRANSPORT", TransportWebSocket),
			Path:                 os.Getenv("REALTIME_PATH"),
			HandshakeTimeout:     getDurationOrDefault("REALTIME_HANDSHAKE_TIMEOUT", 20*time.Second),
			BaseDelay:            getDurationOrDefault("REALTIME_BASE_DELAY", 1*time.Second),
			MaxDelay:             getDurationOrDefault("REALTIME_MAX_DELAY", 5*time.Second),
			MaxReconnectAttempts: getIntOrDefault("REALTIME_MAX_RECONNECT_ATTEMPTS", 5),
			PingInterval:         getDurationOrDefault("REALTIME_PING_INTERVAL", 54*time.Second),
			PongWait:             getDurationOrDefault("REALTIME_PONG_WAIT", 60*time.Second),
		},
		API: APIConfig{
			BaseURL:        os.Getenv("API_BASE_URL"),
			PageSize:       getIntOrDefault("API_PAGE_SIZE", 20),
			RequestTimeout: getDurationOrDefault("API_REQUEST_TIMEOUT", 10*time.Second),
			RateLimitRPS:   getFloatOrDefault("API_RATE_LIMIT_RPS", 5),
			RateLimitBurst: getIntOrDefault("API_RATE_LIMIT_BURST", 10),
		},
		Auth: AuthConfig{
			Token:         os.Getenv("AUTH_TOKEN"),
			TokenFile:     os.Getenv("AUTH_TOKEN_FILE"),
			SigningSecret: os.Getenv("AUTH_SIGNING_SECRET"),
			UserID:        os.Getenv("AUTH_USER_ID"),
			OrgID:         os.Getenv("AUTH_ORG_ID"),
			TokenTTL:      getDurationOrDefault("AUTH_TOKEN_TTL", 1*time.Hour),
			RefreshLeeway: getDurationOrDefault("AUTH_REFRESH_LEEWAY", 30*time.Second),
		},
		Store: StoreConfig{
			DatabaseURL:    os.Getenv("DATABASE_URL"),
			MigrationsPath: getEnvOrDefault("DB_MIGRATIONS_PATH", "file://migrations"),
			MaxConns:       int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		HTTP: HTTPConfig{
			Addr:            getEnvOrDefault("HTTP_ADDR", ":8081"),
			AllowedOrigins:  getStringSliceOrDefault("HTTP_ALLOWED_ORIGINS", []string{}),
			ReadTimeout:     getDurationOrDefault("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimit:       getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    getFloatOrDefault("RATE_LIMIT_RPS", 10),
			RateLimitBurst:  getIntOrDefault("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "ticketsync"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	var verrs validator.ValidationErrors
	if err := validator.New().Struct(c); err != nil {
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	// Credential source
	if c.Auth.Token == "" && c.Auth.TokenFile == "" && c.Auth.SigningSecret == "" {
		errs = append(errs, "one of AUTH_TOKEN, AUTH_TOKEN_FILE or AUTH_SIGNING_SECRET is required")
	}
	if c.Auth.SigningSecret != "" && c.Auth.Token == "" && c.Auth.TokenFile == "" && c.Auth.UserID == "" {
		errs = append(errs, "AUTH_USER_ID is required to sign tokens locally")
	}

	// Security validations
	if c.App.Environment == "production" {
		if c.Auth.SigningSecret != "" {
			errs = append(errs, "AUTH_SIGNING_SECRET must not be used in production")
		}

		if len(c.HTTP.AllowedOrigins) == 0 {
			errs = append(errs, "HTTP_ALLOWED_ORIGINS must be set in production")
		}
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Realtime: %s (%s), API: %s, Auth: [REDACTED], DB: %s, HTTP: %s, Environment: %s}",
		c.Realtime.URL,
		c.Realtime.Transport,
		c.API.BaseURL,
		redactURL(c.Store.DatabaseURL),
		c.HTTP.Addr,
		c.App.Environment,
	)
}

// redactURL redacts sensitive parts of a database URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
