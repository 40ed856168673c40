package notificationservice_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-webpush-service/internal/dispatch"
	"github.com/tinywideclouds/go-webpush-service/internal/storage/sqlstore"
	"github.com/tinywideclouds/go-webpush-service/notificationservice"
	"github.com/tinywideclouds/go-webpush-service/notificationservice/config"
	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

const allowedOrigin = "http://localhost:4200"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingTransport accepts every delivery and remembers the endpoints.
type recordingTransport struct {
	mu        sync.Mutex
	endpoints []string
	gone      map[string]bool
}

func (r *recordingTransport) Send(_ context.Context, sub push.Subscription, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = append(r.endpoints, sub.Endpoint)
	if r.gone[sub.Endpoint] {
		return push.Gone(http.StatusGone, nil)
	}
	return nil
}

func (r *recordingTransport) Endpoints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.endpoints...)
}

func newTestService(t *testing.T, transport push.Transport) (*notificationservice.Wrapper, *sqlstore.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg, err := config.UpdateConfigWithEnvOverrides(&config.Config{
		ListenAddr: ":0",
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: []string{allowedOrigin},
			Role:           middleware.CorsRoleEditor,
		},
		Vapid: config.VapidConfig{PublicKey: "BTestPublicKey"},
	}, newTestLogger())
	require.NoError(t, err)

	dispatcher := dispatch.New(store, transport, newTestLogger())
	svc, err := notificationservice.New(cfg, store, dispatcher, nil, newTestLogger())
	require.NoError(t, err)
	return svc, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestService_Routes(t *testing.T) {
	transport := &recordingTransport{gone: map[string]bool{"https://push.example/B": true}}
	svc, store := newTestService(t, transport)
	mux := svc.Mux()

	t.Run("Subscribe twice then send", func(t *testing.T) {
		subA := `{"userId":"u1","subscription":{"endpoint":"https://push.example/A","keys":{"p256dh":"k","auth":"a"}}}`
		subB := `{"userId":"u1","subscription":{"endpoint":"https://push.example/B","keys":{"p256dh":"k","auth":"a"}}}`

		for _, body := range []string{subA, subA, subB} {
			w := do(t, mux, http.MethodPost, "/subscribe", body)
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		}

		w := do(t, mux, http.MethodPost, "/send-notification", `{"userId":"u1","title":"Hi","message":"There"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"deviceCount":2}`, w.Body.String())
		assert.ElementsMatch(t, []string{"https://push.example/A", "https://push.example/B"}, transport.Endpoints())

		// B answered 410 and must be gone.
		subs, err := store.ListByUser(context.Background(), "u1")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "https://push.example/A", subs[0].Endpoint)
	})

	t.Run("Unknown user is 404", func(t *testing.T) {
		w := do(t, mux, http.MethodPost, "/send-notification", `{"userId":"nobody","title":"Hi","message":"There"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Empty user is 404", func(t *testing.T) {
		w := do(t, mux, http.MethodPost, "/send-notification", `{"title":"Hi","message":"There"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"message":"User not subscribed"}`, w.Body.String())
	})

	t.Run("CORS preflight", func(t *testing.T) {
		for _, path := range []string{"/subscribe", "/send-notification", "/vapid-public-key"} {
			req := httptest.NewRequest(http.MethodOptions, path, nil)
			req.Header.Set("Origin", allowedOrigin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code, path)
			assert.Equal(t, allowedOrigin, w.Header().Get("Access-Control-Allow-Origin"), path)
		}
	})

	t.Run("Invalid subscription is 400", func(t *testing.T) {
		w := do(t, mux, http.MethodPost, "/subscribe", `{"userId":"u1"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("VAPID public key", func(t *testing.T) {
		w := do(t, mux, http.MethodGet, "/vapid-public-key", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"publicKey":"BTestPublicKey"}`, w.Body.String())
	})

	t.Run("Root probe", func(t *testing.T) {
		w := do(t, mux, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `"This is get"`, w.Body.String())
	})
}

func TestService_ShutdownWithoutPipeline(t *testing.T) {
	svc, _ := newTestService(t, &recordingTransport{})
	assert.NotPanics(t, func() { _ = svc.Shutdown(context.Background()) })
}
