package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Redis configuration (strict fraud gate)
	Redis RedisConfig `env:",prefix=REDIS_"`

	// Kafka configuration (analytics stream)
	Kafka KafkaConfig `env:",prefix=KAFKA_"`

	// Auth configuration
	Auth AuthConfig `env:",prefix=AUTH_"`

	// Play engine policy
	Play PlayConfig `env:",prefix=PLAY_"`

	// Per-IP request throttling
	RateLimit RateLimitConfig `env:",prefix=RATE_LIMIT_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=playengine"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
	Migrate  bool   `env:"MIGRATE,default=true"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string `env:"ADDR,default=localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB,default=0"`
	PoolSize int    `env:"POOL_SIZE,default=10"`
}

// KafkaConfig holds Kafka configuration. An empty broker list disables the sink.
type KafkaConfig struct {
	Brokers   []string `env:"BROKERS"`
	Topic     string   `env:"TOPIC,default=play.analytics"`
	WorkerNum int      `env:"WORKER_NUM,default=4"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET,default=dev-secret-change-me"`
	Issuer    string `env:"ISSUER"`
}

// PlayConfig holds play engine policy
type PlayConfig struct {
	FraudWindow          time.Duration `env:"FRAUD_WINDOW,default=24h"`
	FraudStrict          bool          `env:"FRAUD_STRICT,default=false"`
	FraudBypassNetworks  []string      `env:"FRAUD_BYPASS_NETWORKS,default=127.0.0.0/8,::1/128,192.168.0.0/16"`
	OperatorIDs          []string      `env:"OPERATOR_IDS"`
	CouponTTL            time.Duration `env:"COUPON_TTL,default=10m"`
	CouponCodeAttempts   int           `env:"COUPON_CODE_ATTEMPTS,default=8"`
	MaxFeedbackLength    int           `env:"MAX_FEEDBACK_LENGTH,default=2000"`
	PositiveRatingCutoff int           `env:"POSITIVE_RATING_CUTOFF,default=4"`
}

// RateLimitConfig holds per-IP token bucket settings
type RateLimitConfig struct {
	Enabled        bool     `env:"ENABLED,default=true"`
	RPS            float64  `env:"RPS,default=5"`
	Burst          int      `env:"BURST,default=10"`
	TrustedProxies []string `env:"TRUSTED_PROXIES"` // peers whose X-Forwarded-For is believed
	MaxVisitors    int      `env:"MAX_VISITORS,default=100000"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=json"`
	Storage     string `env:"STORAGE,default=postgres"` // postgres or memory
	Debug       bool   `env:"DEBUG,default=false"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration from the given lookuper
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Play.FraudWindow <= 0 {
		return fmt.Errorf("PLAY_FRAUD_WINDOW must be positive, got %s", c.Play.FraudWindow)
	}
	if c.Play.CouponTTL <= 0 {
		return fmt.Errorf("PLAY_COUPON_TTL must be positive, got %s", c.Play.CouponTTL)
	}
	if c.Play.CouponCodeAttempts < 1 {
		return fmt.Errorf("PLAY_COUPON_CODE_ATTEMPTS must be at least 1")
	}
	if c.Play.MaxFeedbackLength < 1 {
		return fmt.Errorf("PLAY_MAX_FEEDBACK_LENGTH must be at least 1, got %d", c.Play.MaxFeedbackLength)
	}
	if c.Play.PositiveRatingCutoff < 1 || c.Play.PositiveRatingCutoff > 5 {
		return fmt.Errorf("PLAY_POSITIVE_RATING_CUTOFF must be between 1 and 5, got %d", c.Play.PositiveRatingCutoff)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
			return fmt.Errorf("RATE_LIMIT_RPS must be positive and RATE_LIMIT_BURST at least 1")
		}
		if c.RateLimit.MaxVisitors < 1 {
			return fmt.Errorf("RATE_LIMIT_MAX_VISITORS must be at least 1, got %d", c.RateLimit.MaxVisitors)
		}
	}
	switch c.App.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("APP_STORAGE must be postgres or memory, got %q", c.App.Storage)
	}
	if c.App.IsProduction() && c.Auth.JWTSecret == "dev-secret-change-me" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set in production")
	}
	return nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// KafkaEnabled reports whether an analytics stream is configured
func (c *KafkaConfig) KafkaEnabled() bool {
	return len(c.Brokers) > 0
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
