package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// DBConfig holds primary (PostgreSQL) backend configuration
type DBConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
	ConnectTimeout  time.Duration
}

// SQLiteConfig holds secondary (embedded) backend configuration
type SQLiteConfig struct {
	Path           string
	AcquireTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Env  string
	// WebDir is an optional directory of static storefront files
	WebDir string
}

// JWTConfig holds bearer token configuration
type JWTConfig struct {
	Secret    string
	AccessTTL time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// KafkaConfig holds analytics event stream configuration
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	GroupID    string
	OrderTopic string
}

// SMTPConfig holds the outgoing mail relay used for order confirmations
type SMTPConfig struct {
	Host string
	Port string
	From string
}

// AdminConfig describes the administrative account seeded at startup
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

// Config holds all configuration
type Config struct {
	ServiceName string
	DB          DBConfig
	SQLite      SQLiteConfig
	Server      ServerConfig
	JWT         JWTConfig
	Log         LogConfig
	Kafka       KafkaConfig
	SMTP        SMTPConfig
	Admin       AdminConfig
}

// Load reads configuration from the environment, after loading .env if present
func Load(serviceName string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", ""),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "storefront"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AcquireTimeout:  getEnvAsDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second),
			ConnectTimeout:  getEnvAsDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
		},
		SQLite: SQLiteConfig{
			Path:           getEnv("SQLITE_PATH", "data/storefront.db"),
			AcquireTimeout: getEnvAsDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			Port:   getEnv("SERVER_PORT", "8080"),
			Env:    getEnv("APP_ENV", "development"),
			WebDir: getEnv("WEB_DIR", ""),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", ""),
			AccessTTL: getEnvAsDuration("JWT_ACCESS_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "storefront-analytics"),
			GroupID: getEnv("KAFKA_GROUP_ID", "analytics-worker"),

			OrderTopic: getEnv("KAFKA_ORDER_TOPIC", "storefront-orders"),
		},
		SMTP: SMTPConfig{
			Host: getEnv("SMTP_HOST", "localhost"),
			Port: getEnv("SMTP_PORT", "1025"),
			From: getEnv("SMTP_FROM", "noreply@example.com"),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Email:    getEnv("ADMIN_EMAIL", "admin@storefront.local"),
			Password: getEnv("ADMIN_PASSWORD", "admin123"),
		},
	}

	if cfg.DB.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", cfg.DB.MaxOpenConns)
	}
	if cfg.SQLite.Path == "" {
		return nil, fmt.Errorf("SQLITE_PATH must not be empty")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with production TLS requirements
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// PrimaryConfigured reports whether any primary backend setting was supplied.
// An unconfigured primary is still attempted and fails, triggering fallback.
func (c *Config) PrimaryConfigured() bool {
	return c.DB.URL != "" || c.DB.Host != ""
}

// PrimaryDSN returns the PostgreSQL connection string. A full DATABASE_URL
// wins over the individual fields.
func (c *Config) PrimaryDSN() string {
	if c.DB.URL != "" {
		return c.DB.URL
	}
	if c.DB.Host == "" {
		return ""
	}

	sslMode := "disable"
	if c.IsProduction() {
		sslMode = "require"
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DB.User, c.DB.Password),
		Host:   c.DB.Host + ":" + c.DB.Port,
		Path:   "/" + c.DB.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(c.DB.ConnectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

// SelectorConfig maps the database settings onto the backend selector.
// The admin seed and statement observer are left to the caller.
func (c *Config) SelectorConfig() store.SelectorConfig {
	return store.SelectorConfig{
		Primary: store.PostgresConfig{
			DSN:             c.PrimaryDSN(),
			MaxOpenConns:    c.DB.MaxOpenConns,
			MaxIdleConns:    c.DB.MaxIdleConns,
			ConnMaxLifetime: c.DB.ConnMaxLifetime,
			AcquireTimeout:  c.DB.AcquireTimeout,
			ConnectTimeout:  c.DB.ConnectTimeout,
		},
		Secondary: store.SQLiteConfig{
			Path:           c.SQLite.Path,
			AcquireTimeout: c.SQLite.AcquireTimeout,
		},
	}
}

// LogFields returns the non-secret configuration as zap fields
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.Bool("primary_configured", c.PrimaryConfigured()),
		zap.String("db_host", c.DB.Host),
		zap.String("db_name", c.DB.DBName),
		zap.String("sqlite_path", c.SQLite.Path),
		zap.String("server_port", c.Server.Port),
		zap.Strings("kafka_brokers", c.Kafka.Brokers),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
