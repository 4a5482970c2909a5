package main

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/23skdu/field/internal/limiter"
	"github.com/23skdu/field/internal/logging"
)

// EnvPrefix prefixes every environment variable of the daemon.
const EnvPrefix = "FIELD"

// Config is the daemon configuration, read from the environment and an
// optional .env file.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:8080"`
	Version    string `envconfig:"VERSION" default:"dev"`

	// KV selects the field store: "memory" or "redis".
	KV            string `envconfig:"KV" default:"memory"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"0"`

	// Blobs selects the blob store: "memory" (served under /blobs) or "s3".
	Blobs              string        `envconfig:"BLOBS" default:"memory"`
	S3Endpoint         string        `envconfig:"S3_ENDPOINT"`
	S3Bucket           string        `envconfig:"S3_BUCKET"`
	S3Prefix           string        `envconfig:"S3_PREFIX"`
	S3AccessKeyID      string        `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey  string        `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Region           string        `envconfig:"S3_REGION" default:"us-east-1"`
	S3UsePathStyle     bool          `envconfig:"S3_USE_PATH_STYLE" default:"false"`
	S3CacheControl     string        `envconfig:"S3_CACHE_CONTROL" default:"public, max-age=31536000, immutable"`
	UploadBreakerAfter uint32        `envconfig:"UPLOAD_BREAKER_AFTER" default:"5"`
	UploadBreakerOpen  time.Duration `envconfig:"UPLOAD_BREAKER_OPEN" default:"10s"`

	// Publisher disables the publication tick on replicas when false.
	Publisher          bool          `envconfig:"PUBLISHER" default:"true"`
	PublishInterval    time.Duration `envconfig:"PUBLISH_INTERVAL" default:"1s"`
	PublishParallelism int           `envconfig:"PUBLISH_PARALLELISM" default:"4"`
	RoundCacheEntries  int64         `envconfig:"ROUND_CACHE_ENTRIES" default:"1024"`
	RoundCacheTTL      time.Duration `envconfig:"ROUND_CACHE_TTL" default:"5s"`
	LeaderboardTTL     time.Duration `envconfig:"LEADERBOARD_TTL" default:"2s"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"2s"`

	Log logging.Config `envconfig:"LOG"`
	limiter.Config
}

// Config validation errors
var (
	ErrInvalidListenAddr      = errors.New("listen_addr cannot be empty")
	ErrInvalidKV              = errors.New("kv must be 'memory' or 'redis'")
	ErrInvalidRedisAddr       = errors.New("redis_addr cannot be empty")
	ErrInvalidBlobs           = errors.New("blobs must be 'memory' or 's3'")
	ErrInvalidS3Bucket        = errors.New("s3_bucket cannot be empty")
	ErrInvalidUploadBreaker   = errors.New("upload_breaker_after must be positive")
	ErrInvalidPublishInterval = errors.New("publish_interval must be positive")
	ErrInvalidParallelism     = errors.New("publish_parallelism must be positive")
	ErrInvalidLogFormat       = errors.New("log_format must be 'json' or 'text'")
	ErrInvalidLogLevel        = errors.New("log_level must be debug, info, warn, or error")
)

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// A missing file is fine; the environment alone is a valid source.
		_ = godotenv.Load(f)
	}
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, ValidateConfig(&cfg)
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	switch cfg.KV {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return ErrInvalidRedisAddr
		}
	default:
		return ErrInvalidKV
	}
	switch cfg.Blobs {
	case "memory":
	case "s3":
		if cfg.S3Bucket == "" {
			return ErrInvalidS3Bucket
		}
	default:
		return ErrInvalidBlobs
	}
	if cfg.UploadBreakerAfter == 0 {
		return ErrInvalidUploadBreaker
	}
	if cfg.PublishInterval <= 0 {
		return ErrInvalidPublishInterval
	}
	if cfg.PublishParallelism <= 0 {
		return ErrInvalidParallelism
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return ErrInvalidLogFormat
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		ListenAddr:         "0.0.0.0:8080",
		Version:            "dev",
		KV:                 "memory",
		RedisAddr:          "127.0.0.1:6379",
		Blobs:              "memory",
		S3Region:           "us-east-1",
		S3CacheControl:     "public, max-age=31536000, immutable",
		UploadBreakerAfter: 5,
		UploadBreakerOpen:  10 * time.Second,
		Publisher:          true,
		PublishInterval:    time.Second,
		PublishParallelism: 4,
		RoundCacheEntries:  1024,
		RoundCacheTTL:      5 * time.Second,
		LeaderboardTTL:     2 * time.Second,
		HealthCheckTimeout: 2 * time.Second,
		Log:                logging.DefaultConfig(),
	}
}
