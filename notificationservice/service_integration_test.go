//go:build integration

package notificationservice_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-webpush-service/internal/dispatch"
	"github.com/tinywideclouds/go-webpush-service/internal/pipeline"
	"github.com/tinywideclouds/go-webpush-service/internal/storage/sqlstore"
	"github.com/tinywideclouds/go-webpush-service/notificationservice"
	"github.com/tinywideclouds/go-webpush-service/notificationservice/config"
	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

func TestNotificationService_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	logger := newTestLogger()
	projectID := "test-project-integ"

	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { psClient.Close() })

	store, err := sqlstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	t.Run("Queued request reaches every subscription", func(t *testing.T) {
		topicID := "push-success-" + uuid.NewString()
		subID := topicID + "-sub"
		createPubsubResources(t, ctx, psClient, projectID, topicID, subID)

		require.NoError(t, store.Register(ctx, push.Subscription{
			UserID: "integ-user", Endpoint: "https://push.example/integ", Keys: push.Keys{P256dh: "k", Auth: "a"},
		}))

		transport := &recordingTransport{}
		dispatcher := dispatch.New(store, transport, logger)

		consumer, err := messagepipeline.NewGooglePubsubConsumer(
			messagepipeline.NewGooglePubsubConsumerDefaults(subID), psClient, logger,
		)
		require.NoError(t, err)

		cfg := &config.Config{ListenAddr: ":0", Pubsub: config.PubsubConfig{NumWorkers: 2}}
		svc, err := notificationservice.New(cfg, store, dispatcher, consumer, logger)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		// A poison message must not block the good one behind it.
		psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: []byte("not-json")})

		payload, err := json.Marshal(pipeline.SendRequest{UserID: "integ-user", Title: "Hello", Message: "World"})
		require.NoError(t, err)
		_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(transport.Endpoints()) == 1
		}, 10*time.Second, 100*time.Millisecond)

		assert.Equal(t, []string{"https://push.example/integ"}, transport.Endpoints())
	})
}

func createPubsubResources(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})

	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	sub := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}
