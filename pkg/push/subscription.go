package push

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Keys is the key material the browser issues with a subscription.
// Both values are the base64url strings exactly as the browser sent them.
type Keys struct {
	P256dh string `json:"p256dh" firestore:"p256dh"`
	Auth   string `json:"auth" firestore:"auth"`
}

// Subscription is one browser/device registration for push delivery.
type Subscription struct {
	ID       string `json:"id" firestore:"-"`
	UserID   string `json:"userId" firestore:"user_id"`
	Endpoint string `json:"endpoint" firestore:"endpoint"`
	Keys     Keys   `json:"keys" firestore:"keys"`
}

// Validate reports the first missing field as a *ValidationError.
func (s Subscription) Validate() error {
	switch {
	case strings.TrimSpace(s.UserID) == "":
		return &ValidationError{Field: "userId", Reason: "is required"}
	case strings.TrimSpace(s.Endpoint) == "":
		return &ValidationError{Field: "subscription.endpoint", Reason: "is required"}
	case s.Keys.P256dh == "":
		return &ValidationError{Field: "subscription.keys.p256dh", Reason: "is required"}
	case s.Keys.Auth == "":
		return &ValidationError{Field: "subscription.keys.auth", Reason: "is required"}
	}
	return nil
}

// Notification is the user-facing content of a push message.
type Notification struct {
	Title   string
	Message string
}

// wirePayload is what the service worker receives and parses.
type wirePayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// EncodeNotification serializes n into the {title, body} JSON payload.
func EncodeNotification(n Notification) ([]byte, error) {
	b, err := json.Marshal(wirePayload{Title: n.Title, Body: n.Message})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return b, nil
}
