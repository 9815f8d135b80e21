package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Snapshot policies for the entity store.
const (
	SnapshotSync  = "sync"
	SnapshotAsync = "async"
	SnapshotOff   = "off"
)

// Alert cooldown backends for the delay monitor.
const (
	AlertBackendMemory = "memory"
	AlertBackendRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Store     StoreConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Monitor   MonitorConfig
	OTP       OTPConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// StoreConfig controls where and how the entity store is snapshotted.
type StoreConfig struct {
	DataDir        string
	SnapshotPolicy string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MonitorConfig drives the delay/auto-approval sweep.
type MonitorConfig struct {
	Enabled           bool
	Schedule          string
	DelayThreshold    time.Duration
	AutoApproveAfter  time.Duration
	DelayCooldown     time.Duration
	AlertBackend      string
	AlertKeyNamespace string
}

// OTPConfig governs one-time code issuance and delivery workers.
type OTPConfig struct {
	TTL               time.Duration
	ExposeInResponse  bool
	DeliveryWorkers   int
	DeliveryRetries   int
	DeliveryRetryWait time.Duration
}

// NotifyConfig carries delivery channel credentials. Empty values fall back to logging.
type NotifyConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	FromEmail    string
	SMSEndpoint  string
	SMSAccountID string
	SMSAuthToken string
	SMSFrom      string
	Timeout      time.Duration
}

// RateLimitConfig bounds OTP-issuing endpoints per client.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration
}

// CacheConfig governs the admin statistics cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return FromViper(v), nil
}

// FromViper materialises a Config from an already-populated viper instance.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Store = StoreConfig{
		DataDir:        v.GetString("STORE_DATA_DIR"),
		SnapshotPolicy: normalizeChoice(v.GetString("STORE_SNAPSHOT_POLICY"), SnapshotSync, SnapshotSync, SnapshotAsync, SnapshotOff),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 7*24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Monitor = MonitorConfig{
		Enabled:           v.GetBool("MONITOR_ENABLED"),
		Schedule:          v.GetString("MONITOR_SCHEDULE"),
		DelayThreshold:    parseDuration(v.GetString("MONITOR_DELAY_THRESHOLD"), 7*24*time.Hour),
		AutoApproveAfter:  parseDuration(v.GetString("MONITOR_AUTO_APPROVE_AFTER"), 30*24*time.Hour),
		DelayCooldown:     parseDuration(v.GetString("MONITOR_DELAY_COOLDOWN"), 24*time.Hour),
		AlertBackend:      normalizeChoice(v.GetString("MONITOR_ALERT_BACKEND"), AlertBackendMemory, AlertBackendMemory, AlertBackendRedis),
		AlertKeyNamespace: v.GetString("MONITOR_ALERT_NAMESPACE"),
	}

	cfg.OTP = OTPConfig{
		TTL:               parseDuration(v.GetString("OTP_TTL"), 10*time.Minute),
		ExposeInResponse:  v.GetBool("OTP_EXPOSE_IN_RESPONSE"),
		DeliveryWorkers:   v.GetInt("OTP_DELIVERY_WORKERS"),
		DeliveryRetries:   v.GetInt("OTP_DELIVERY_RETRIES"),
		DeliveryRetryWait: parseDuration(v.GetString("OTP_DELIVERY_RETRY_WAIT"), 2*time.Second),
	}
	if cfg.Env != EnvProduction && !v.IsSet("OTP_EXPOSE_IN_RESPONSE") {
		cfg.OTP.ExposeInResponse = true
	}

	cfg.Notify = NotifyConfig{
		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUser:     v.GetString("SMTP_USER"),
		SMTPPass:     v.GetString("SMTP_PASS"),
		FromEmail:    v.GetString("FROM_EMAIL"),
		SMSEndpoint:  v.GetString("SMS_ENDPOINT"),
		SMSAccountID: v.GetString("SMS_ACCOUNT_SID"),
		SMSAuthToken: v.GetString("SMS_AUTH_TOKEN"),
		SMSFrom:      v.GetString("SMS_FROM"),
		Timeout:      parseDuration(v.GetString("NOTIFY_TIMEOUT"), 10*time.Second),
	}

	cfg.RateLimit = RateLimitConfig{
		RequestsPerSecond: v.GetFloat64("OTP_RATE_LIMIT_RPS"),
		Burst:             v.GetInt("OTP_RATE_LIMIT_BURST"),
		CleanupInterval:   parseDuration(v.GetString("OTP_RATE_LIMIT_CLEANUP"), 10*time.Minute),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_STATS_CACHE"),
		TTL:     parseDuration(v.GetString("STATS_CACHE_TTL"), time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("STORE_DATA_DIR", ".data")
	v.SetDefault("STORE_SNAPSHOT_POLICY", SnapshotSync)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev-secret-key")
	v.SetDefault("JWT_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "civic-tracker-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MONITOR_ENABLED", true)
	v.SetDefault("MONITOR_SCHEDULE", "@every 1h")
	v.SetDefault("MONITOR_DELAY_THRESHOLD", "168h")
	v.SetDefault("MONITOR_AUTO_APPROVE_AFTER", "720h")
	v.SetDefault("MONITOR_DELAY_COOLDOWN", "24h")
	v.SetDefault("MONITOR_ALERT_BACKEND", AlertBackendMemory)
	v.SetDefault("MONITOR_ALERT_NAMESPACE", "tracker:delay-alert")

	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_DELIVERY_WORKERS", 2)
	v.SetDefault("OTP_DELIVERY_RETRIES", 3)
	v.SetDefault("OTP_DELIVERY_RETRY_WAIT", "2s")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("FROM_EMAIL", "no-reply@example.com")
	v.SetDefault("SMS_ENDPOINT", "")
	v.SetDefault("SMS_ACCOUNT_SID", "")
	v.SetDefault("SMS_AUTH_TOKEN", "")
	v.SetDefault("SMS_FROM", "")
	v.SetDefault("NOTIFY_TIMEOUT", "10s")

	v.SetDefault("OTP_RATE_LIMIT_RPS", 1)
	v.SetDefault("OTP_RATE_LIMIT_BURST", 5)
	v.SetDefault("OTP_RATE_LIMIT_CLEANUP", "10m")

	v.SetDefault("ENABLE_STATS_CACHE", false)
	v.SetDefault("STATS_CACHE_TTL", "1m")
}

// NewViper returns a viper instance primed with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
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

func normalizeChoice(raw, fallback string, allowed ...string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allowed {
		if value == candidate {
			return value
		}
	}
	return fallback
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}
