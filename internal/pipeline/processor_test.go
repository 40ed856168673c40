package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-webpush-service/internal/dispatch"
	"github.com/tinywideclouds/go-webpush-service/internal/pipeline"
	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, userID string, n push.Notification) (dispatch.Report, error) {
	args := m.Called(ctx, userID, n)
	return args.Get(0).(dispatch.Report), args.Error(1)
}

func TestProcessor(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	request := &pipeline.SendRequest{UserID: "u1", Title: "Hello", Message: "World"}
	note := push.Notification{Title: "Hello", Message: "World"}
	msg := messagepipeline.Message{MessageData: messagepipeline.MessageData{ID: "msg-1"}}

	t.Run("Dispatches to sender", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.Anything, "u1", note).
			Return(dispatch.Report{Status: dispatch.StatusSent, DeviceCount: 2, Delivered: 1, Gone: 1, Purged: 1}, nil)

		err := pipeline.NewProcessor(sender, logger)(ctx, msg, request)

		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("Not subscribed is acked", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.Anything, "u1", note).Return(dispatch.Report{Status: dispatch.StatusNotSubscribed}, nil)

		err := pipeline.NewProcessor(sender, logger)(ctx, msg, request)

		assert.NoError(t, err)
	})

	t.Run("Storage failure is returned for redelivery", func(t *testing.T) {
		sender := new(mockSender)
		storeErr := &push.StorageError{Op: "list", Err: errors.New("down")}
		sender.On("Send", mock.Anything, "u1", note).Return(dispatch.Report{}, storeErr)

		err := pipeline.NewProcessor(sender, logger)(ctx, msg, request)

		require.Error(t, err)
		var sErr *push.StorageError
		assert.ErrorAs(t, err, &sErr)
	})

	t.Run("Validation failure is acked", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.Anything, "u1", note).
			Return(dispatch.Report{}, &push.ValidationError{Field: "userId", Reason: "is required"})

		err := pipeline.NewProcessor(sender, logger)(ctx, msg, request)

		assert.NoError(t, err)
	})
}
