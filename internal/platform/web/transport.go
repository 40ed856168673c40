// Package web delivers payloads to browser push services using VAPID.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-webpush-service/notificationservice/config"
	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

// maxErrorBody bounds how much of a rejection body is kept for logs.
const maxErrorBody = 512

// HTTPClient is the subset of *http.Client used by webpush-go.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport implements push.Transport with webpush-go, which takes care of
// VAPID signing and the aes128gcm payload encryption.
type Transport struct {
	subscriber string
	privateKey string
	publicKey  string
	ttl        int
	urgency    webpush.Urgency
	httpClient HTTPClient
	logger     *slog.Logger
}

// NewTransport builds a Transport from the VAPID configuration. timeout
// bounds each delivery; zero means no client-side timeout.
func NewTransport(cfg config.VapidConfig, timeout time.Duration, logger *slog.Logger) *Transport {
	return &Transport{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		ttl:        cfg.TTLSeconds,
		urgency:    webpush.Urgency(cfg.Urgency),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "WebPushTransport"),
	}
}

// WithHTTPClient replaces the client used to reach push services.
func (t *Transport) WithHTTPClient(c HTTPClient) *Transport {
	t.httpClient = c
	return t
}

// Send performs exactly one delivery attempt.
func (t *Transport) Send(ctx context.Context, sub push.Subscription, payload []byte) error {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, s, &webpush.Options{
		Subscriber:      t.subscriber,
		VAPIDPublicKey:  t.publicKey,
		VAPIDPrivateKey: t.privateKey,
		TTL:             t.ttl,
		Urgency:         t.urgency,
		HTTPClient:      t.httpClient,
	})
	if err != nil {
		// Transport error (DNS, timeout, bad key material) - never delete
		return push.Transient(0, fmt.Errorf("sending to push service: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	t.logger.Debug("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint, "body", string(body))
	rejection := fmt.Errorf("push service returned %d: %s", resp.StatusCode, string(body))
	if Classify(resp.StatusCode) == push.KindGone {
		return push.Gone(resp.StatusCode, rejection)
	}
	return push.Transient(resp.StatusCode, rejection)
}

// Classify maps a push service status code to a delivery kind.
// 404 Not Found and 410 Gone mean the subscription is dead; every other
// failure (429, 5xx, unexpected 4xx) is retryable.
func Classify(status int) push.Kind {
	switch {
	case status >= 200 && status < 300:
		return push.KindDelivered
	case status == http.StatusNotFound, status == http.StatusGone:
		return push.KindGone
	default:
		return push.KindTransient
	}
}

// GenerateVAPIDKeys returns a fresh base64url encoded key pair.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generating VAPID keys: %w", err)
	}
	if privateKey == "" || publicKey == "" {
		return "", "", errors.New("generating VAPID keys: empty key")
	}
	return privateKey, publicKey, nil
}
