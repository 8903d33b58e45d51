package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduling SchedulingConfig
	Sweeps     SweepsConfig
	Cascade    CascadeConfig
	RateLimit  RateLimitConfig
	Metrics    MetricsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulingConfig governs the availability and booking rules.
type SchedulingConfig struct {
	Timezone            string
	MinDurationMinutes  int
	EnforceAvailability bool
	CacheEnabled        bool
	CacheTTL            time.Duration
}

// Location resolves the configured clinic timezone, falling back to UTC.
func (s SchedulingConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SweepsConfig configures the periodic completion and reminder sweeps.
type SweepsConfig struct {
	CompletionInterval time.Duration
	ReminderInterval   time.Duration
	ReminderLead       time.Duration
}

// CascadeConfig configures the worker pool that retries failed block cancellations.
type CascadeConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
}

// RateLimitConfig throttles booking attempts per user.
type RateLimitConfig struct {
	BookingsPerMinute int
	Burst             int
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	minDuration := v.GetInt("SCHEDULING_MIN_DURATION_MINUTES")
	if minDuration <= 0 {
		minDuration = 30
	}
	cfg.Scheduling = SchedulingConfig{
		Timezone:            v.GetString("SCHEDULING_TIMEZONE"),
		MinDurationMinutes:  minDuration,
		EnforceAvailability: v.GetBool("SCHEDULING_ENFORCE_AVAILABILITY"),
		CacheEnabled:        v.GetBool("ENABLE_AVAILABILITY_CACHE"),
		CacheTTL:            parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Sweeps = SweepsConfig{
		CompletionInterval: parseDuration(v.GetString("SWEEP_COMPLETION_INTERVAL"), 5*time.Minute),
		ReminderInterval:   parseDuration(v.GetString("SWEEP_REMINDER_INTERVAL"), 15*time.Minute),
		ReminderLead:       parseDuration(v.GetString("SWEEP_REMINDER_LEAD"), 24*time.Hour),
	}

	cfg.Cascade = CascadeConfig{
		WorkerConcurrency: v.GetInt("CASCADE_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("CASCADE_WORKER_RETRIES"),
		RetryDelay:        parseDuration(v.GetString("CASCADE_RETRY_DELAY"), 2*time.Second),
	}

	cfg.RateLimit = RateLimitConfig{
		BookingsPerMinute: v.GetInt("RATE_LIMIT_BOOKINGS_PER_MINUTE"),
		Burst:             v.GetInt("RATE_LIMIT_BOOKINGS_BURST"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "clinic_booking")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULING_TIMEZONE", "UTC")
	v.SetDefault("SCHEDULING_MIN_DURATION_MINUTES", 30)
	v.SetDefault("SCHEDULING_ENFORCE_AVAILABILITY", true)
	v.SetDefault("ENABLE_AVAILABILITY_CACHE", true)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "5m")

	v.SetDefault("SWEEP_COMPLETION_INTERVAL", "5m")
	v.SetDefault("SWEEP_REMINDER_INTERVAL", "15m")
	v.SetDefault("SWEEP_REMINDER_LEAD", "24h")

	v.SetDefault("CASCADE_WORKER_CONCURRENCY", 2)
	v.SetDefault("CASCADE_WORKER_RETRIES", 5)
	v.SetDefault("CASCADE_RETRY_DELAY", "2s")

	v.SetDefault("RATE_LIMIT_BOOKINGS_PER_MINUTE", 30)
	v.SetDefault("RATE_LIMIT_BOOKINGS_BURST", 5)

	v.SetDefault("ENABLE_METRICS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
