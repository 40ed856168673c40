package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-webpush-service/internal/dispatch"
	"github.com/tinywideclouds/go-webpush-service/internal/platform/web"
	"github.com/tinywideclouds/go-webpush-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-webpush-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-webpush-service/internal/storage/sqlstore"
	"github.com/tinywideclouds/go-webpush-service/notificationservice"
	"github.com/tinywideclouds/go-webpush-service/notificationservice/config"
	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

//go:embed local.yaml
var configFile []byte

const shutdownTimeout = 15 * time.Second

type closableStore interface {
	push.Store
	Close() error
}

func serve(ctx context.Context, configPath string, logger *slog.Logger) error {
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}

	// --- Subscription Store (optionally decorated) ---
	baseStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer baseStore.Close()

	var store push.Store = baseStore
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		store = cache.NewCachedStore(store, redisClient, cfg.Redis.TTL, logger)
		logger.Info("Store upgraded", "type", "redis_cached_"+cfg.Storage.Driver)
	}

	// --- Transport & Dispatcher ---
	if cfg.Vapid.PrivateKey == "" || cfg.Vapid.PublicKey == "" {
		logger.Warn("VAPID keys missing in configuration. Web Push will fail.")
	} else {
		logger.Info("Web transport enabled", "public_key", cfg.Vapid.PublicKey)
	}
	transport := web.NewTransport(cfg.Vapid, cfg.Dispatch.TransportTimeout, logger)
	dispatcher := dispatch.New(store, transport, logger, dispatch.WithMaxConcurrency(cfg.Dispatch.MaxConcurrency))

	// --- Optional Pub/Sub ingestion ---
	var consumer messagepipeline.MessageConsumer
	if cfg.Pubsub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client failed: %w", err)
		}
		defer psClient.Close()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			return err
		}
	}

	service, err := notificationservice.New(cfg, store, dispatcher, consumer, logger)
	if err != nil {
		return fmt.Errorf("service creation failed: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...", "addr", cfg.ListenAddr)
		errCh <- service.Start(runCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("service stopped with error: %w", err)
		}
		return nil
	case <-runCtx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return service.Shutdown(shutdownCtx)
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	raw := configFile
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(raw, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml config: %w", err)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return config.UpdateConfigWithEnvOverrides(baseCfg, logger)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (closableStore, error) {
	switch cfg.Storage.Driver {
	case config.StorageFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore client failed: %w", err)
		}
		logger.Info("Store initialized", "type", "firestore")
		return fsStore.NewStore(fsClient, logger), nil
	default:
		store, err := sqlstore.Open(ctx, cfg.Storage.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("Store initialized", "type", "sqlite", "dsn", cfg.Storage.SQLiteDSN)
		return store, nil
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.Pubsub.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.Pubsub.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
	}
	if cfg.Pubsub.DLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.Pubsub.DLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	consumerCfg := *cfg.Pubsub.ConsumerConfig
	consumerCfg.SubscriptionID = subConfig.Name
	return messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}

func printVAPIDKeys(w io.Writer) error {
	privateKey, publicKey, err := web.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	_, err = fmt.Fprintf(w, "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", publicKey, privateKey)
	return err
}
