package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Database drivers accepted in DB_DRIVER
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Telegram      TelegramConfig
	Completion    CompletionConfig
	News          NewsConfig
	Budget        BudgetConfig
	Session       SessionConfig
	Access        AccessConfig
	Aliases       AliasConfig
	Auth          AuthConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string
}

// DatabaseConfig selects and configures the storage backend.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	Driver           string
	ConnectionString string
	SQLitePath       string
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

// TelegramConfig holds the chat transport configuration
type TelegramConfig struct {
	Enabled     bool
	Token       string
	BaseURL     string
	PollTimeout time.Duration
	QueueSize   int
	// SendRate caps outbound messages per second; zero disables pacing
	SendRate float64
}

// CompletionConfig holds the Azure OpenAI / OpenAI completion configuration
type CompletionConfig struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// NewsConfig holds the Alpha Vantage news configuration
type NewsConfig struct {
	APIKey   string
	BaseURL  string
	MaxItems int
	Timeout  time.Duration
}

// BudgetConfig holds the per-user cost ceilings
type BudgetConfig struct {
	DailyLimit     float64
	MaxRequestCost float64
	Timezone       string
}

// SessionConfig holds pending analysis settings.
// A zero PendingTTL keeps pending analyses until the user replies.
type SessionConfig struct {
	PendingTTL      time.Duration
	MaxPendingUsers int
	CleanupInterval time.Duration
}

// AccessConfig seeds the allow-list
type AccessConfig struct {
	AllowedUsers []string
	AdminUsers   []string
}

// AliasConfig locates the alias table file
type AliasConfig struct {
	File  string
	Watch bool
}

// AuthConfig holds HTTP API authentication settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// AuditConfig holds audit worker settings
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	LogFile        string
	LogMaxSizeMB   int
	LogMaxBackups  int
	LogMaxAgeDays  int
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	cfg := Load()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads the environment (and .env when present) without validating
func Load() *Config {
	_ = godotenv.Load(".env")

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Enabled:         getEnvAsBool("HTTP_ENABLED", true),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 75*time.Second),
			MaxBodyBytes:    int64(getEnvAsInt("SERVER_MAX_BODY_BYTES", 64<<10)),
			AllowedOrigins:  getEnvAsListOr("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Database: loadDatabaseConfig(),
		Telegram: TelegramConfig{
			Enabled:     getEnvAsBool("TELEGRAM_ENABLED", true),
			Token:       getEnv("TELEGRAM_TOKEN", ""),
			BaseURL:     getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
			PollTimeout: getEnvAsDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
			QueueSize:   getEnvAsInt("TELEGRAM_QUEUE_SIZE", 16),
			SendRate:    getEnvAsFloat("TELEGRAM_SEND_RATE", 25),
		},
		Completion: CompletionConfig{
			APIKey:     getEnv("AZURE_API_KEY", ""),
			Endpoint:   getEnv("AZURE_ENDPOINT", "https://stockybot.openai.azure.com"),
			Deployment: getEnv("AZURE_DEPLOYMENT", "gpt-4"),
			APIVersion: getEnv("AZURE_API_VERSION", "2024-02-15-preview"),
			Model:      getEnv("COMPLETION_MODEL", "gpt-4"),
			Timeout:    getEnvAsDuration("COMPLETION_TIMEOUT", 60*time.Second),
			MaxRetries: getEnvAsInt("COMPLETION_MAX_RETRIES", 0),
		},
		News: NewsConfig{
			APIKey:   getEnv("ALPHA_VANTAGE_KEY", ""),
			BaseURL:  getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co"),
			MaxItems: getEnvAsInt("NEWS_MAX_ITEMS", 5),
			Timeout:  getEnvAsDuration("NEWS_TIMEOUT", 15*time.Second),
		},
		Budget: BudgetConfig{
			DailyLimit:     getEnvAsFloat("DAILY_COST_LIMIT", 1.0),
			MaxRequestCost: getEnvAsFloat("MAX_REQUEST_COST", 0.1),
			Timezone:       getEnv("BUDGET_TIMEZONE", "UTC"),
		},
		Session: SessionConfig{
			PendingTTL:      getEnvAsDuration("PENDING_TTL", 0),
			MaxPendingUsers: getEnvAsInt("PENDING_MAX_USERS", 0),
			CleanupInterval: getEnvAsDuration("PENDING_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Access: AccessConfig{
			AllowedUsers: getEnvAsList("ALLOWED_USERS"),
			AdminUsers:   getEnvAsList("ADMIN_USERS"),
		},
		Aliases: AliasConfig{
			File:  getEnv("ALIASES_FILE", "settings/stocks.yaml"),
			Watch: getEnvAsBool("ALIASES_WATCH", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "stockbot"),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			LogFile:        getEnv("LOG_FILE", ""),
			LogMaxSizeMB:   getEnvAsInt("LOG_MAX_SIZE_MB", 50),
			LogMaxBackups:  getEnvAsInt("LOG_MAX_BACKUPS", 5),
			LogMaxAgeDays:  getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Completion.APIKey == "" {
		return fmt.Errorf("AZURE_API_KEY is required")
	}
	if c.News.APIKey == "" {
		return fmt.Errorf("ALPHA_VANTAGE_KEY is required")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required when the Telegram bot is enabled")
	}
	if c.Telegram.SendRate < 0 {
		return fmt.Errorf("TELEGRAM_SEND_RATE cannot be negative")
	}
	if !c.Telegram.Enabled && !c.Server.Enabled {
		return fmt.Errorf("at least one of the Telegram bot or the HTTP API must be enabled")
	}

	if c.Budget.DailyLimit <= 0 {
		return fmt.Errorf("DAILY_COST_LIMIT must be positive")
	}
	if c.Budget.MaxRequestCost <= 0 {
		return fmt.Errorf("MAX_REQUEST_COST must be positive")
	}
	if _, err := c.Budget.Location(); err != nil {
		return fmt.Errorf("invalid BUDGET_TIMEZONE: %w", err)
	}
	if c.Session.PendingTTL < 0 {
		return fmt.Errorf("PENDING_TTL cannot be negative")
	}
	if c.Session.MaxPendingUsers < 0 {
		return fmt.Errorf("PENDING_MAX_USERS cannot be negative")
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}

	if c.Server.Enabled && c.Auth.JWTSecret == "" && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET is required in production when the HTTP API is enabled")
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

// Location resolves the timezone that defines the ledger's calendar day
func (c *BudgetConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
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
	switch c.Driver {
	case DriverMemory:
		return "driver=memory"
	case DriverSQLite:
		return "driver=sqlite path=" + c.SQLitePath
	}
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

// loadDatabaseConfig loads database config from DB_DRIVER plus DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		SQLitePath:      getEnv("SQLITE_PATH", "data/stockbot.db"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}

	cfg.Host = getEnv("DB_HOST", "")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "stockbot")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "stockbot")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsListOr(key string, defaultValue []string) []string {
	if list := getEnvAsList(key); len(list) > 0 {
		return list
	}
	return defaultValue
}
