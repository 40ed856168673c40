package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-webpush-service/internal/dispatch"
	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

// Sender is the dispatcher operation the processor drives.
type Sender interface {
	Send(ctx context.Context, userID string, n push.Notification) (dispatch.Report, error)
}

// NewProcessor hands each decoded request to the dispatcher.
// Only storage failures are returned, so the message is redelivered; everything
// else is acked since retrying would not change the outcome.
func NewProcessor(sender Sender, logger *slog.Logger) messagepipeline.StreamProcessor[SendRequest] {
	return func(ctx context.Context, original messagepipeline.Message, request *SendRequest) error {
		procLogger := logger.With(
			"user", request.UserID,
			"pubsub_msg_id", original.ID,
		)

		report, err := sender.Send(ctx, request.UserID, push.Notification{
			Title:   request.Title,
			Message: request.Message,
		})
		if err != nil {
			var sErr *push.StorageError
			if errors.As(err, &sErr) {
				procLogger.Error("Failed to read subscriptions", "err", err)
				return err
			}
			procLogger.Warn("Dropping unsendable request", "err", err)
			return nil
		}

		if report.Status == dispatch.StatusNotSubscribed {
			procLogger.Info("No subscriptions for user; dropping notification.")
			return nil
		}

		procLogger.Info("Web Dispatched", "receipt", report.Receipt(), "purged", report.Purged)
		return nil
	}
}
