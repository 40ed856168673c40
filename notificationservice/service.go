package notificationservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-webpush-service/internal/api"
	"github.com/tinywideclouds/go-webpush-service/internal/pipeline"
	"github.com/tinywideclouds/go-webpush-service/notificationservice/config"
	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

type Wrapper struct {
	*microservice.BaseServer
	// nil when no Pub/Sub subscription is configured.
	pipelineService *messagepipeline.StreamingService[pipeline.SendRequest]
	logger          *slog.Logger
}

// New assembles the service. A nil consumer leaves the HTTP surface as the only
// way to send.
func New(
	cfg *config.Config,
	store push.Store,
	sender api.Sender,
	consumer messagepipeline.MessageConsumer,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Optional queue-driven sends
	var streamingService *messagepipeline.StreamingService[pipeline.SendRequest]
	if consumer != nil {
		workers := cfg.Pubsub.NumWorkers
		if workers < 1 {
			workers = 1
		}
		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: workers},
			consumer,
			pipeline.SendRequestTransformer,
			pipeline.NewProcessor(sender, logger),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. API
	subscriptionAPI := api.NewSubscriptionAPI(store, sender, cfg.Vapid.PublicKey, cfg.Dispatch.RequestTimeout, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(handlerFunc))
	}
	preflight := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	handle("POST /subscribe", subscriptionAPI.Subscribe)
	handle("POST /send-notification", subscriptionAPI.SendNotification)
	handle("GET /vapid-public-key", subscriptionAPI.VapidPublicKey)
	handle("GET /{$}", subscriptionAPI.Root)

	// CORS preflight
	for _, path := range []string{"/subscribe", "/send-notification", "/vapid-public-key"} {
		mux.Handle("OPTIONS "+path, corsMiddleware(preflight))
	}

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Core processing pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
