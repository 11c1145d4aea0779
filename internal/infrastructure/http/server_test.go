package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	handlers "github.com/wekeepgrowing/semo-course-billing/internal/adapter/handler/http"
	"github.com/wekeepgrowing/semo-course-billing/internal/config"
	"go.uber.org/zap"
)

func newTestServer() *Server {
	cfg := &config.Config{
		Service: config.ServiceConfig{Name: "payment", ClientURL: "https://learn.example.com"},
		JWT:     config.JWTConfig{Secret: "test-secret"},
	}
	logger := zap.NewNop()
	return NewServer(cfg, logger, Handlers{
		Payment:      handlers.NewPaymentHandler(nil, cfg.Service.ClientURL, logger),
		Subscription: handlers.NewSubscriptionHandler(nil, logger),
		Webhook:      handlers.NewWebhookHandler(nil, nil, logger),
	})
}

func token(t *testing.T, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  uuid.New().String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	assert.NoError(t, err)
	return signed
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		expected int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"payment needs token", http.MethodPost, "/api/v1/orders/1/payment", "", http.StatusUnauthorized},
		{"refund needs admin", http.MethodPost, "/api/v1/orders/1/refund", token(t, "student"), http.StatusForbidden},
		{"capture needs admin", http.MethodPost, "/api/v1/payments/pi_1/capture", token(t, "student"), http.StatusForbidden},
		{"cancel needs token", http.MethodDelete, "/api/v1/subscriptions/1", "", http.StatusUnauthorized},
		{"confirm is public", http.MethodGet, "/api/v1/payments/confirm", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()

			s.Echo().ServeHTTP(rec, req)

			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}
