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

// Storage drivers understood by the document store.
const (
	StorageDriverLocal = "local"
	StorageDriverMinIO = "minio"
)

type Config struct {
	Env          string
	Port         int
	APIPrefix    string
	PublicOrigin string
	PublicAPIURL string

	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	JWT       JWTConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Log       LogConfig
	Storage   StorageConfig
	Documents DocumentsConfig
	Shares    SharesConfig
	Workers   WorkersConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig tunes the share lookup cache. When Redis is disabled the
// in-process LRU is used instead.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	LRUSize int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AuthConfig gates account management endpoints.
type AuthConfig struct {
	AllowRegistration bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects and configures the blob backend.
type StorageConfig struct {
	Driver         string
	LocalDir       string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIORegion    string
	MinIOUseSSL    bool
}

// DocumentsConfig controls upload validation and preview links.
type DocumentsConfig struct {
	MaxFileSizeBytes int64
	PreviewURLTTL    time.Duration
	SigningSecret    string
}

// SharesConfig controls public share access.
type SharesConfig struct {
	RateLimitWindow  time.Duration
	RateLimitBurst   int
	SweepSchedule    string
	ExpiredRetention time.Duration
}

// WorkersConfig sizes background queues.
type WorkersConfig struct {
	CounterWorkers int
	CounterRetries int
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

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = "/" + strings.Trim(v.GetString("API_PREFIX"), "/")
	cfg.PublicOrigin = strings.TrimRight(v.GetString("PUBLIC_ORIGIN"), "/")
	cfg.PublicAPIURL = strings.TrimRight(v.GetString("PUBLIC_API_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), time.Minute),
		LRUSize: v.GetInt("CACHE_LRU_SIZE"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.Auth = AuthConfig{AllowRegistration: v.GetBool("ALLOW_REGISTRATION")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Driver:         strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:       v.GetString("STORAGE_DIR"),
		MinIOEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinIOAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinIOSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinIOBucket:    v.GetString("MINIO_BUCKET"),
		MinIORegion:    v.GetString("MINIO_REGION"),
		MinIOUseSSL:    v.GetBool("MINIO_USE_SSL"),
	}

	maxSize := v.GetInt64("MAX_UPLOAD_SIZE")
	if maxSize <= 0 {
		maxSize = 100 * 1024 * 1024
	}
	cfg.Documents = DocumentsConfig{
		MaxFileSizeBytes: maxSize,
		PreviewURLTTL:    parseDuration(v.GetString("PREVIEW_URL_TTL"), 10*time.Minute),
		SigningSecret:    v.GetString("PREVIEW_SIGNING_SECRET"),
	}

	cfg.Shares = SharesConfig{
		RateLimitWindow:  parseDuration(v.GetString("SHARE_RATE_LIMIT_WINDOW"), time.Minute),
		RateLimitBurst:   v.GetInt("SHARE_RATE_LIMIT_BURST"),
		SweepSchedule:    v.GetString("SHARE_SWEEP_SCHEDULE"),
		ExpiredRetention: parseDuration(v.GetString("SHARE_EXPIRED_RETENTION"), 30*24*time.Hour),
	}

	cfg.Workers = WorkersConfig{
		CounterWorkers: v.GetInt("COUNTER_WORKERS"),
		CounterRetries: v.GetInt("COUNTER_RETRIES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8000)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("PUBLIC_ORIGIN", "http://localhost:3000")
	v.SetDefault("PUBLIC_API_URL", "http://localhost:8000")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "docshare")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", "1m")
	v.SetDefault("CACHE_LRU_SIZE", 4096)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "30m")
	v.SetDefault("JWT_ISSUER", "docshare-api")

	v.SetDefault("ALLOW_REGISTRATION", true)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_DIR", "./data/documents")
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET", "documents")
	v.SetDefault("MINIO_REGION", "us-east-1")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("MAX_UPLOAD_SIZE", 100*1024*1024)
	v.SetDefault("PREVIEW_URL_TTL", "10m")
	v.SetDefault("PREVIEW_SIGNING_SECRET", "dev_preview_secret")

	v.SetDefault("SHARE_RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("SHARE_RATE_LIMIT_BURST", 10)
	v.SetDefault("SHARE_SWEEP_SCHEDULE", "17 3 * * *")
	v.SetDefault("SHARE_EXPIRED_RETENTION", "720h")

	v.SetDefault("COUNTER_WORKERS", 2)
	v.SetDefault("COUNTER_RETRIES", 3)
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
