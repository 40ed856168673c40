package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Enabled  bool          `yaml:"enabled"`
	TTL      time.Duration `yaml:"ttl"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
	TTLSeconds      int    `yaml:"ttl_seconds"`
	Urgency         string `yaml:"urgency"`
}

type YamlStorageConfig struct {
	Driver    string `yaml:"driver"`
	SQLiteDSN string `yaml:"sqlite_dsn"`
}

type YamlDispatchConfig struct {
	MaxConcurrency   int           `yaml:"max_concurrency"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	TransportTimeout time.Duration `yaml:"transport_timeout"`
}

type YamlPubsubConfig struct {
	TopicID        string `yaml:"topic_id"`
	SubscriptionID string `yaml:"subscription_id"`
	DLQTopicID     string `yaml:"dlq_topic_id"`
	NumWorkers     int    `yaml:"num_workers"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID      string             `yaml:"project_id"`
	ListenAddr     string             `yaml:"listen_addr"`
	CorsConfig     YamlCorsConfig     `yaml:"cors"`
	RedisConfig    YamlRedisConfig    `yaml:"redis"`
	VapidConfig    YamlVapidConfig    `yaml:"vapid"`
	StorageConfig  YamlStorageConfig  `yaml:"storage"`
	DispatchConfig YamlDispatchConfig `yaml:"dispatch"`
	PubsubConfig   YamlPubsubConfig   `yaml:"pubsub"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:  baseCfg.ProjectID,
		ListenAddr: baseCfg.ListenAddr,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      baseCfg.RedisConfig.TTL,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
			TTLSeconds:      baseCfg.VapidConfig.TTLSeconds,
			Urgency:         baseCfg.VapidConfig.Urgency,
		},
		Storage: StorageConfig{
			Driver:    baseCfg.StorageConfig.Driver,
			SQLiteDSN: baseCfg.StorageConfig.SQLiteDSN,
		},
		Dispatch: DispatchConfig{
			MaxConcurrency:   baseCfg.DispatchConfig.MaxConcurrency,
			RequestTimeout:   baseCfg.DispatchConfig.RequestTimeout,
			TransportTimeout: baseCfg.DispatchConfig.TransportTimeout,
		},
		Pubsub: PubsubConfig{
			TopicID:        baseCfg.PubsubConfig.TopicID,
			SubscriptionID: baseCfg.PubsubConfig.SubscriptionID,
			DLQTopicID:     baseCfg.PubsubConfig.DLQTopicID,
			NumWorkers:     baseCfg.PubsubConfig.NumWorkers,
		},
	}

	if cfg.Pubsub.SubscriptionID != "" {
		cfg.Pubsub.ConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.Pubsub.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"storage_driver", cfg.Storage.Driver,
		"subscription_id", cfg.Pubsub.SubscriptionID,
	)

	return cfg, nil
}
