package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/config"
	"github.com/MorseWayne/cart_shop/internal/service"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:   config.AppConfig{Env: "test", Version: "test", RequestTimeout: 5 * time.Second, ShutdownTimeout: time.Second},
		Store: config.StoreConfig{Driver: "memory"},
		Cache: config.CacheConfig{Enabled: true, Type: "memory", TTL: time.Minute},
		JWT:   config.JWTConfig{Secret: "main-test", AccessTokenTTL: time.Hour, RefreshTokenTTL: time.Hour},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "Idempotency-Key"},
		},
		Idempotency: config.IdempotencyConfig{TTL: time.Minute},
	}
}

func newTestHandler(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	app, err := newApplication(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background(), zap.NewNop()) })
	return buildHandler(cfg, app.deps, zap.NewNop())
}

func TestHealthz_OK(t *testing.T) {
	h := newTestHandler(t, memoryConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	assert.NotEmpty(t, rw.Header().Get("X-Request-ID"))

	var body struct {
		Success   bool   `json:"success"`
		Code      int    `json:"code"`
		RequestID string `json:"request_id"`
		Data      struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "ok", body.Data.Status)
	assert.Equal(t, "test", body.Data.Version)
	assert.Equal(t, rw.Header().Get("X-Request-ID"), body.RequestID)
}

func TestMiddlewareChain_Preflight(t *testing.T) {
	h := newTestHandler(t, memoryConfig())

	req := httptest.NewRequest(http.MethodOptions, "/orders/checkout", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusNoContent, rw.Code)
	assert.Contains(t, rw.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}

func TestGuestAddThroughFullChain(t *testing.T) {
	cfg := memoryConfig()
	cfg.Cache.Enabled = false
	h := newTestHandler(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/cart/add", strings.NewReader(`{"product_id": 1}`))
	req.Header.Set("Content-Type", "application/json")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	// 空库中商品不存在
	assert.Equal(t, http.StatusNotFound, rw.Code)
	assert.Contains(t, rw.Header().Get("Content-Type"), "application/json")
}

func TestInitEventPublishers_NoDownstreams(t *testing.T) {
	app := &application{}
	pub, pinger := initEventPublishers(context.Background(), memoryConfig(), app, zap.NewNop())
	assert.IsType(t, service.NopPublisher{}, pub)
	assert.Nil(t, pinger)
	assert.Empty(t, app.closers)
}

func TestInitLimiter_RequiresRedis(t *testing.T) {
	cfg := memoryConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Rate: 10, Burst: 10, Window: time.Second}
	assert.Nil(t, initLimiter(cfg, nil, zap.NewNop()))
}
