package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Claim     ClaimConfig
	Captcha   CaptchaConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
	TxTimeout   time.Duration
}

// RedisConfig holds the fast store connection settings.
// Read/write timeouts bound every queue and lock command.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ClaimConfig holds claim arbitration settings
type ClaimConfig struct {
	LockTTL        time.Duration
	LockWait       time.Duration
	CreatorBypass  bool
	ThrottleLimit  int64
	ThrottleWindow time.Duration
	SweepInterval  time.Duration
	StatsInterval  time.Duration
}

// CaptchaConfig toggles the human verification gate
type CaptchaConfig struct {
	Enabled bool
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "vcd"),
			User:        getEnv("POSTGRES_USER", "vcd"),
			Password:    getEnv("POSTGRES_PASSWORD", "vcd"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
			TxTimeout:   getEnvDuration("POSTGRES_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 100),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		Claim: ClaimConfig{
			LockTTL:        getEnvDuration("CLAIM_LOCK_TTL", 60*time.Second),
			LockWait:       getEnvDuration("CLAIM_LOCK_WAIT", 3*time.Second),
			CreatorBypass:  getEnvBool("CLAIM_CREATOR_BYPASS", false),
			ThrottleLimit:  int64(getEnvInt("CLAIM_THROTTLE_LIMIT", 10)),
			ThrottleWindow: getEnvDuration("CLAIM_THROTTLE_WINDOW", 60*time.Second),
			SweepInterval:  getEnvDuration("SWEEP_INTERVAL", 1*time.Minute),
			StatsInterval:  getEnvDuration("STATS_INTERVAL", 5*time.Minute),
		},
		Captcha: CaptchaConfig{
			Enabled: getEnvBool("CAPTCHA_ENABLED", false),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", false),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Database.TxTimeout <= 0 {
		return fmt.Errorf("database tx timeout must be positive")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if c.Redis.ReadTimeout <= 0 || c.Redis.WriteTimeout <= 0 {
		return fmt.Errorf("redis read/write timeouts must be positive")
	}

	if c.Claim.LockTTL <= 0 {
		return fmt.Errorf("claim lock ttl must be positive")
	}

	if c.Claim.ThrottleWindow < time.Second {
		return fmt.Errorf("claim throttle window must be at least 1s")
	}

	if c.Claim.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	if c.Claim.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be positive")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the host:port of the fast store
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
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
