package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthProvider(requireAuth bool) *AuthProvider {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewAuthProvider(&Config{
		APIKeys:     []string{"test-key-12345678", "other-key-87654321"},
		JWTSecret:   "test-secret",
		JWTExpiry:   time.Hour,
		RequireAuth: requireAuth,
	}, logger)
}

func TestValidateAPIKey(t *testing.T) {
	provider := newTestAuthProvider(true)

	info, err := provider.ValidateAPIKey(context.Background(), "test-key-12345678")
	require.NoError(t, err)
	assert.Equal(t, "caller_test-key", info.CallerID)
	assert.Contains(t, info.Permissions, "orders:route")
	assert.Contains(t, info.Permissions, "outcomes:record")

	_, err = provider.ValidateAPIKey(context.Background(), "wrong-key")
	assert.Error(t, err)

	_, err = provider.ValidateAPIKey(context.Background(), "")
	assert.Error(t, err)
}

func TestJWTRoundTrip(t *testing.T) {
	provider := newTestAuthProvider(true)

	token, err := provider.GenerateJWT("order-frontend", []string{"orders:route"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := provider.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "order-frontend", claims.CallerID)
	assert.Equal(t, []string{"orders:route"}, claims.Permissions)
	assert.Equal(t, "commerce-router", claims.Issuer)
}

func TestValidateJWTWrongSecret(t *testing.T) {
	provider := newTestAuthProvider(true)
	token, err := provider.GenerateJWT("order-frontend", nil)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	other := NewAuthProvider(&Config{JWTSecret: "different-secret"}, logger)

	_, err = other.ValidateJWT(token)
	assert.Error(t, err)
}

func TestAuthenticateAcceptsBothTokenKinds(t *testing.T) {
	provider := newTestAuthProvider(true)

	info, err := provider.Authenticate(context.Background(), "test-key-12345678")
	require.NoError(t, err)
	assert.NotEmpty(t, info.CallerID)

	jwtToken, err := provider.GenerateJWT("batch-recorder", []string{"outcomes:record"})
	require.NoError(t, err)

	info, err = provider.Authenticate(context.Background(), jwtToken)
	require.NoError(t, err)
	assert.Equal(t, "batch-recorder", info.CallerID)

	_, err = provider.Authenticate(context.Background(), "garbage")
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	provider := newTestAuthProvider(true)

	handler := provider.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := GetAuthInfo(r.Context())
		require.True(t, ok)
		assert.NotEmpty(t, info.CallerID)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		path       string
		authHeader string
		apiKey     string
		wantStatus int
	}{
		{
			name:       "valid bearer key",
			path:       "/v1/orders/route",
			authHeader: "Bearer test-key-12345678",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid X-API-Key header",
			path:       "/v1/orders/route",
			apiKey:     "other-key-87654321",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing token",
			path:       "/v1/orders/route",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			path:       "/v1/orders/route",
			authHeader: "Bearer nope",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAuthMiddlewareSkipsHealth(t *testing.T) {
	provider := newTestAuthProvider(true)

	handler := provider.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	provider := newTestAuthProvider(false)

	handler := provider.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/v1/orders/route", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIPFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "10.1.2.3, 192.168.0.1")
	assert.Equal(t, "10.1.2.3", clientIPFromRequest(req))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Real-IP", "10.9.8.7")
	assert.Equal(t, "10.9.8.7", clientIPFromRequest(req))

	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "172.16.0.5:54321"
	assert.Equal(t, "172.16.0.5", clientIPFromRequest(req))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", maskKey("short"))
	assert.Equal(t, "abcd****", maskKey("abcdefghijkl"))
}
