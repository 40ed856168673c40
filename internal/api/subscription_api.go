package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-webpush-service/internal/dispatch"
	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

// maxBodyBytes caps request bodies; subscriptions are a few hundred bytes.
const maxBodyBytes = 64 << 10

// Sender is the part of the Dispatcher the API needs.
type Sender interface {
	Send(ctx context.Context, userID string, n push.Notification) (dispatch.Report, error)
}

type SubscriptionAPI struct {
	Store          push.Store
	Sender         Sender
	PublicKey      string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

func NewSubscriptionAPI(store push.Store, sender Sender, publicKey string, timeout time.Duration, logger *slog.Logger) *SubscriptionAPI {
	return &SubscriptionAPI{
		Store:          store,
		Sender:         sender,
		PublicKey:      publicKey,
		RequestTimeout: timeout,
		Logger:         logger.With("component", "SubscriptionAPI"),
	}
}

// --- POST /subscribe ---

type SubscribeRequest struct {
	UserID       string            `json:"userId"`
	Subscription *SubscriptionBody `json:"subscription"`
}

// SubscriptionBody mirrors the browser's PushSubscription.toJSON().
type SubscriptionBody struct {
	Endpoint string     `json:"endpoint"`
	Keys     *push.Keys `json:"keys"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (api *SubscriptionAPI) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.Logger.Warn("Subscribe: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if req.Subscription == nil || req.Subscription.Endpoint == "" || req.UserID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "Invalid subscription object")
		return
	}

	sub := push.Subscription{
		UserID:   req.UserID,
		Endpoint: req.Subscription.Endpoint,
	}
	if req.Subscription.Keys != nil {
		sub.Keys = *req.Subscription.Keys
	}
	// Reject before touching the store.
	if err := sub.Validate(); err != nil {
		api.Logger.Warn("Subscribe: validation failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	if err := api.Store.Register(ctx, sub); err != nil {
		var vErr *push.ValidationError
		if errors.As(err, &vErr) {
			response.WriteJSONError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		api.Logger.Error("Subscribe: storage failed", "user", sub.UserID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "Database error")
		return
	}
	api.Logger.Info("Subscribe: subscription saved", "user", sub.UserID, "endpoint", sub.Endpoint)

	response.WriteJSON(w, http.StatusCreated, MessageResponse{Message: "Subscription saved"})
}

// --- POST /send-notification ---

type SendNotificationRequest struct {
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type SendNotificationResponse struct {
	Success     bool `json:"success"`
	DeviceCount int  `json:"deviceCount"`
}

func (api *SubscriptionAPI) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req SendNotificationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.Logger.Warn("SendNotification: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	report, err := api.Sender.Send(ctx, req.UserID, push.Notification{Title: req.Title, Message: req.Message})
	if err != nil {
		api.Logger.Error("SendNotification: dispatch failed", "user", req.UserID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "Database error")
		return
	}

	if report.Status == dispatch.StatusNotSubscribed {
		response.WriteJSON(w, http.StatusNotFound, MessageResponse{Message: "User not subscribed"})
		return
	}

	response.WriteJSON(w, http.StatusOK, SendNotificationResponse{Success: true, DeviceCount: report.DeviceCount})
}

// --- GET /vapid-public-key ---

type VapidPublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (api *SubscriptionAPI) VapidPublicKey(w http.ResponseWriter, _ *http.Request) {
	if api.PublicKey == "" {
		response.WriteJSONError(w, http.StatusServiceUnavailable, "web push is not configured")
		return
	}
	response.WriteJSON(w, http.StatusOK, VapidPublicKeyResponse{PublicKey: api.PublicKey})
}

// Root answers GET / so the browser client can probe reachability.
func (api *SubscriptionAPI) Root(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, "This is get")
}

// --- Helpers ---

func (api *SubscriptionAPI) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if api.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), api.RequestTimeout)
}
