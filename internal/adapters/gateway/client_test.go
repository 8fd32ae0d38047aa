package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/funding-service/internal/adapters/secrets"
	pkgerrors "github.com/kevin07696/funding-service/pkg/errors"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKeyPath = "providers/test/api_key"

func setupClient(t *testing.T, provider string, handler http.HandlerFunc) *providerClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return newProviderClient(clientConfig{
		Provider:     provider,
		BaseURL:      server.URL,
		APIKeySecret: testAPIKeyPath,
		HTTPClient:   server.Client(),
		Secrets:      secrets.NewStaticStore(map[string]string{testAPIKeyPath: "sk_test_123"}),
		Logger:       zap.NewNop(),
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestProviderClient_SendsHeaders(t *testing.T) {
	client := setupClient(t, "card", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/ping", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])

		writeJSON(t, w, http.StatusOK, map[string]string{"id": "pong"})
	})

	var out struct {
		ID string `json:"id"`
	}
	err := client.do(context.Background(), apiRequest{
		Method:            http.MethodPost,
		Path:              "/v1/ping",
		Body:              map[string]string{"message": "hello"},
		IdempotencyHeader: "Idempotency-Key",
		IdempotencyKey:    "key-1",
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, "pong", out.ID)
}

func TestProviderClient_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		body           interface{}
		wantTransient  bool
		wantCode       string
		wantCategory   pkgerrors.ErrorCategory
		wantGatewayMsg string
	}{
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			body:          map[string]string{"message": "slow down"},
			wantTransient: true,
			wantCode:      CodeRateLimited,
			wantCategory:  pkgerrors.CategoryRateLimited,
		},
		{
			name:          "server error",
			status:        http.StatusBadGateway,
			body:          map[string]string{},
			wantTransient: true,
			wantCode:      CodeServerError,
			wantCategory:  pkgerrors.CategorySystemError,
		},
		{
			name:   "card declined for funds",
			status: http.StatusPaymentRequired,
			body: map[string]interface{}{
				"error": map[string]string{"code": "card_declined", "decline_code": "insufficient_funds", "message": "Your card has insufficient funds."},
			},
			wantCode:       CodeDeclined,
			wantCategory:   pkgerrors.CategoryInsufficientFunds,
			wantGatewayMsg: "Your card has insufficient funds.",
		},
		{
			name:           "validation error",
			status:         http.StatusUnprocessableEntity,
			body:           map[string]string{"name": "UNPROCESSABLE_ENTITY", "message": "currency not supported"},
			wantCode:       CodeInvalidRequest,
			wantCategory:   pkgerrors.CategoryInvalidRequest,
			wantGatewayMsg: "currency not supported",
		},
		{
			name:           "not found",
			status:         http.StatusNotFound,
			body:           map[string]string{"errorCode": "404.001.03", "errorMessage": "Invalid Access Token"},
			wantCode:       CodeNotFound,
			wantCategory:   pkgerrors.CategoryInvalidAccount,
			wantGatewayMsg: "Invalid Access Token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupClient(t, "card", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tt.status, tt.body)
			})

			err := client.do(context.Background(), apiRequest{Method: http.MethodGet, Path: "/"}, nil)
			require.Error(t, err)

			gwErr, ok := pkgerrors.AsGatewayError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantTransient, gwErr.IsRetriable)
			assert.Equal(t, tt.wantCode, gwErr.Code)
			assert.Equal(t, tt.wantCategory, gwErr.Category)
			assert.Equal(t, "card", gwErr.Provider)
			if tt.wantGatewayMsg != "" {
				assert.Equal(t, tt.wantGatewayMsg, gwErr.GatewayMessage)
			}
		})
	}
}

func TestProviderClient_UndecodableSuccessIsTransient(t *testing.T) {
	client := setupClient(t, "wallet", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})

	var out map[string]string
	err := client.do(context.Background(), apiRequest{Method: http.MethodGet, Path: "/"}, &out)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsTransient(err))
	gwErr, _ := pkgerrors.AsGatewayError(err)
	assert.Equal(t, CodeBadResponse, gwErr.Code)
}

func TestProviderClient_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newProviderClient(clientConfig{Provider: "card", BaseURL: url, Logger: zap.NewNop()})
	err := client.do(context.Background(), apiRequest{Method: http.MethodGet, Path: "/"}, nil)

	require.Error(t, err)
	gwErr, ok := pkgerrors.AsGatewayError(err)
	require.True(t, ok)
	assert.True(t, gwErr.IsRetriable)
	assert.Equal(t, CodeNetwork, gwErr.Code)
}

func TestProviderClient_TimeoutIsTransient(t *testing.T) {
	client := setupClient(t, "card", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.do(ctx, apiRequest{Method: http.MethodGet, Path: "/"}, nil)
	require.Error(t, err)
	gwErr, ok := pkgerrors.AsGatewayError(err)
	require.True(t, ok)
	assert.True(t, gwErr.IsRetriable)
	assert.Contains(t, []string{CodeTimeout, CodeRateLimited}, gwErr.Code)
}

func TestProviderClient_CircuitOpensOnTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:         2,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
		IsFailure:           pkgerrors.IsTransient,
	})
	client := newProviderClient(clientConfig{Provider: "card", BaseURL: server.URL, Breaker: breaker, Logger: zap.NewNop()})

	for i := 0; i < 2; i++ {
		err := client.do(context.Background(), apiRequest{Method: http.MethodGet, Path: "/"}, nil)
		require.Error(t, err)
	}

	err := client.do(context.Background(), apiRequest{Method: http.MethodGet, Path: "/"}, nil)
	gwErr, ok := pkgerrors.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, CodeCircuitOpen, gwErr.Code)
	assert.True(t, gwErr.IsRetriable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProviderClient_DeclinesDoNotTripBreaker(t *testing.T) {
	client := setupClient(t, "card", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusPaymentRequired, map[string]interface{}{
			"error": map[string]string{"decline_code": "do_not_honor"},
		})
	})

	for i := 0; i < 10; i++ {
		err := client.do(context.Background(), apiRequest{Method: http.MethodGet, Path: "/"}, nil)
		assert.True(t, pkgerrors.IsPermanent(err))
	}
	assert.Equal(t, resilience.StateClosed, client.breaker.State())
}

func TestParseErrorBody(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want errorDetail
	}{
		{"nested error", `{"error":{"code":"card_declined","message":"declined"}}`, errorDetail{code: "card_declined", message: "declined"}},
		{"decline code wins", `{"error":{"code":"card_declined","decline_code":"lost_card"}}`, errorDetail{code: "lost_card"}},
		{"string error", `{"error":"bad things"}`, errorDetail{message: "bad things"}},
		{"name and message", `{"name":"INVALID_REQUEST","message":"bad field"}`, errorDetail{code: "INVALID_REQUEST", message: "bad field"}},
		{"errorCode", `{"errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`, errorDetail{code: "400.002.02", message: "Bad Request - Invalid Amount"}},
		{"not json", `gateway exploded`, errorDetail{message: "gateway exploded"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseErrorBody([]byte(tt.raw)))
		})
	}
}
