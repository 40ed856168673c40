package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	StorageSQLite    = "sqlite"
	StorageFirestore = "firestore"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
	TTLSeconds      int
	Urgency         string
}

type StorageConfig struct {
	Driver    string
	SQLiteDSN string
}

type DispatchConfig struct {
	// MaxConcurrency bounds deliveries per send; 0 means unbounded.
	MaxConcurrency   int
	RequestTimeout   time.Duration
	TransportTimeout time.Duration
}

// PubsubConfig enables queue-driven sends when SubscriptionID is set.
type PubsubConfig struct {
	TopicID        string
	SubscriptionID string
	DLQTopicID     string
	NumWorkers     int
	ConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// Enabled reports whether the Pub/Sub ingestion pipeline should run.
func (p PubsubConfig) Enabled() bool {
	return p.SubscriptionID != ""
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID  string
	ListenAddr string

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Vapid      VapidConfig
	Storage    StorageConfig
	Dispatch   DispatchConfig
	Pubsub     PubsubConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}

	// Storage Overrides
	if val := os.Getenv("STORAGE_DRIVER"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE_DRIVER", "source", "env")
		cfg.Storage.Driver = strings.ToLower(val)
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "DATABASE_URL", "source", "env")
		cfg.Storage.SQLiteDSN = val
	}

	// Pub/Sub Overrides
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.Pubsub.SubscriptionID = val
		cfg.Pubsub.ConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.Pubsub.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.Pubsub.DLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.Pubsub.NumWorkers = workers
		}
	}

	// Dispatch Overrides
	if val := os.Getenv("DISPATCH_MAX_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			logger.Debug("Overriding config value", "key", "DISPATCH_MAX_CONCURRENCY", "source", "env")
			cfg.Dispatch.MaxConcurrency = n
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// VAPID Overrides
	if val := os.Getenv("VAPID_PUBLIC_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PUBLIC_KEY", "source", "env")
		cfg.Vapid.PublicKey = val
	}
	if val := os.Getenv("VAPID_PRIVATE_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PRIVATE_KEY", "source", "env")
		cfg.Vapid.PrivateKey = val
	}
	if val := os.Getenv("VAPID_SUB_EMAIL"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_SUB_EMAIL", "source", "env")
		cfg.Vapid.SubscriberEmail = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageSQLite
	}
	if cfg.Storage.SQLiteDSN == "" {
		cfg.Storage.SQLiteDSN = "webpush.db"
	}
	if cfg.Vapid.TTLSeconds <= 0 {
		cfg.Vapid.TTLSeconds = 60
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}
	if cfg.Dispatch.RequestTimeout <= 0 {
		cfg.Dispatch.RequestTimeout = 30 * time.Second
	}
	if cfg.Dispatch.TransportTimeout <= 0 {
		cfg.Dispatch.TransportTimeout = 10 * time.Second
	}
	if cfg.Pubsub.NumWorkers <= 0 {
		cfg.Pubsub.NumWorkers = 1
	}

	// 3. Final Validation
	switch cfg.Storage.Driver {
	case StorageSQLite:
	case StorageFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("project_id is required for the firestore storage driver (set via YAML or PROJECT_ID env var)")
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q (want %q or %q)", cfg.Storage.Driver, StorageSQLite, StorageFirestore)
	}

	if cfg.Pubsub.Enabled() {
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("project_id is required when subscription_id is set (set via YAML or PROJECT_ID env var)")
		}
		if cfg.Pubsub.TopicID == "" {
			return nil, fmt.Errorf("topic_id is required when subscription_id is set (set via YAML or TOPIC_ID env var)")
		}
		if cfg.Pubsub.ConsumerConfig == nil {
			cfg.Pubsub.ConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.Pubsub.SubscriptionID)
		}
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
