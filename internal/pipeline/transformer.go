// Package pipeline adapts queued send requests onto the dispatcher.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
)

// SendRequest is the queued equivalent of a POST /send-notification body.
type SendRequest struct {
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// SendRequestTransformer unmarshals a raw message payload into a SendRequest.
// Undecodable payloads and requests without a userId are skipped, never retried.
func SendRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*SendRequest, bool, error) {
	var req SendRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal send request from message %s: %w", msg.ID, err)
	}
	if req.UserID == "" {
		return nil, true, fmt.Errorf("send request in message %s has no userId", msg.ID)
	}
	return &req, false, nil
}
