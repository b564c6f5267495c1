package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Paystack  PaystackConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Kafka     KafkaConfig
	Reconcile ReconcileConfig
	Resend    ResendConfig
	Auth      AuthConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
	// Checkout attempts allowed per user inside CheckoutWindow.
	CheckoutLimit  int
	CheckoutWindow time.Duration
	// Browser origins allowed to call the API with credentials.
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string // Full database URL
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PaystackConfig struct {
	SecretKey   string
	BaseURL     string
	CallbackURL string
	Timeout     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type QueueConfig struct {
	Concurrency      int
	EmailQueue       string
	MaintenanceQueue string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ReconcileConfig drives the stale payment sweep.
type ReconcileConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
	ClaimLease time.Duration
	LockTTL    time.Duration
	// RestoreInventory returns reserved stock when a stale order is cancelled.
	RestoreInventory bool
}

type ResendConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
}

type AuthConfig struct {
	JWTSecret     string
	SessionSecret string
}

type LogConfig struct {
	Level  string
	Format string // "json" or "console"
}

// LoadEnv reads .env files into the environment if they exist. Variables
// already set win.
func LoadEnv() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}

// LoadDatabase returns only the database settings, for tools that do not
// talk to the gateway.
func LoadDatabase() DatabaseConfig {
	LoadEnv()
	return parseDatabaseConfig()
}

func Load() (*Config, error) {
	LoadEnv()

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Host:           getEnv("HOST", "localhost"),
			Env:            getEnv("ENV", "development"),
			CheckoutLimit:  getEnvAsInt("CHECKOUT_RATE_LIMIT", 5),
			CheckoutWindow: getEnvAsDuration("CHECKOUT_RATE_WINDOW", time.Minute),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Database: parseDatabaseConfig(),
		Paystack: PaystackConfig{
			SecretKey:   getEnv("PAYSTACK_SECRET_KEY", ""),
			BaseURL:     getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			CallbackURL: getEnv("PAYSTACK_CALLBACK_URL", "http://localhost:8080/payment/callback"),
			Timeout:     getEnvAsDuration("PAYSTACK_TIMEOUT", 15*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Concurrency:      getEnvAsInt("QUEUE_CONCURRENCY", 10),
			EmailQueue:       getEnv("QUEUE_EMAIL", "email"),
			MaintenanceQueue: getEnv("QUEUE_MAINTENANCE", "maintenance"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_ORDER_TOPIC", "orders.lifecycle"),
		},
		Reconcile: ReconcileConfig{
			Interval:         getEnvAsDuration("RECONCILE_INTERVAL", 30*time.Minute),
			StaleAfter:       getEnvAsDuration("RECONCILE_STALE_AFTER", time.Hour),
			BatchSize:        getEnvAsInt("RECONCILE_BATCH_SIZE", 100),
			ClaimLease:       getEnvAsDuration("RECONCILE_CLAIM_LEASE", 10*time.Minute),
			LockTTL:          getEnvAsDuration("RECONCILE_LOCK_TTL", 25*time.Minute),
			RestoreInventory: getEnvAsBool("RECONCILE_RESTORE_INVENTORY", false),
		},
		Resend: ResendConfig{
			APIKey:    getEnv("RESEND_API_KEY", ""),
			BaseURL:   getEnv("RESEND_BASE_URL", "https://api.resend.com"),
			FromEmail: getEnv("RESEND_FROM_EMAIL", "noreply@eventtickets.com"),
			FromName:  getEnv("RESEND_FROM_NAME", "Event Checkout"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			SessionSecret: getEnv("SESSION_SECRET", "your-secret-key-change-in-production"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports settings the services cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Paystack.SecretKey == "" {
		errs = append(errs, errors.New("PAYSTACK_SECRET_KEY is required"))
	}
	if c.Paystack.Timeout <= 0 {
		errs = append(errs, errors.New("PAYSTACK_TIMEOUT must be positive"))
	}
	if c.Reconcile.Interval <= 0 || c.Reconcile.StaleAfter <= 0 || c.Reconcile.ClaimLease <= 0 {
		errs = append(errs, errors.New("reconcile durations must be positive"))
	}
	if c.Reconcile.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_BATCH_SIZE must be positive, got %d", c.Reconcile.BatchSize))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func parseDatabaseConfig() DatabaseConfig {
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL != "" {
		return parseDatabaseURL(databaseURL)
	}

	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		DBName:   getEnv("DB_NAME", "event_checkout"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func parseDatabaseURL(databaseURL string) DatabaseConfig {
	config := DatabaseConfig{
		URL: databaseURL,
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return config
	}

	config.Host = u.Hostname()
	config.Port = 5432
	if u.Port() != "" {
		config.Port, _ = strconv.Atoi(u.Port())
	}

	if u.User != nil {
		config.User = u.User.Username()
		config.Password, _ = u.User.Password()
	}

	config.DBName = strings.TrimPrefix(u.Path, "/")

	config.SSLMode = u.Query().Get("sslmode")
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
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
