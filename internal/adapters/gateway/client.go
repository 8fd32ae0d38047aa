package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kevin07696/funding-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/funding-service/pkg/errors"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Error codes attached to GatewayError by the provider clients
const (
	CodeNetwork        = "NETWORK_ERROR"
	CodeTimeout        = "TIMEOUT"
	CodeRateLimited    = "RATE_LIMITED"
	CodeServerError    = "GATEWAY_ERROR"
	CodeCircuitOpen    = "CIRCUIT_OPEN"
	CodeBadResponse    = "BAD_RESPONSE"
	CodeCredentials    = "CREDENTIALS_UNAVAILABLE"
	CodeInvalidRequest = "REQUEST_ERROR"
	CodeDeclined       = "DECLINED"
	CodeNotFound       = "NOT_FOUND"
	CodeInFlight       = "IN_FLIGHT"
)

const maxResponseBytes = 1 << 20

// clientConfig wires one provider's transport
type clientConfig struct {
	Provider     string
	BaseURL      string
	APIKeySecret string
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
	Breaker      *resilience.CircuitBreaker
	Secrets      ports.SecretStore
	Logger       *zap.Logger
}

// providerClient sends JSON requests to a provider and classifies failures
// as transient or permanent
type providerClient struct {
	provider     string
	baseURL      string
	apiKeySecret string
	httpClient   *http.Client
	limiter      *rate.Limiter
	breaker      *resilience.CircuitBreaker
	secrets      ports.SecretStore
	logger       *zap.Logger
}

func newProviderClient(cfg clientConfig) *providerClient {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if cfg.Breaker == nil {
		bc := resilience.DefaultCircuitBreakerConfig()
		bc.IsFailure = pkgerrors.IsTransient
		cfg.Breaker = resilience.NewCircuitBreaker(bc)
	}
	return &providerClient{
		provider:     cfg.Provider,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKeySecret: cfg.APIKeySecret,
		httpClient:   cfg.HTTPClient,
		limiter:      cfg.Limiter,
		breaker:      cfg.Breaker,
		secrets:      cfg.Secrets,
		logger:       cfg.Logger,
	}
}

// apiRequest describes one provider call
type apiRequest struct {
	Method string
	Path   string
	Body   interface{}
	// IdempotencyHeader carries IdempotencyKey when the provider supports one
	IdempotencyHeader string
	IdempotencyKey    string
}

// do sends req through the rate limiter and circuit breaker and decodes the
// JSON response into out
func (c *providerClient) do(ctx context.Context, req apiRequest, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return pkgerrors.NewTransientError(c.provider, CodeRateLimited, "outbound rate limit wait aborted", pkgerrors.CategoryRateLimited, err)
	}

	err := c.breaker.Call(func() error {
		return c.send(ctx, req, out)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return pkgerrors.NewTransientError(c.provider, CodeCircuitOpen, "provider circuit open", pkgerrors.CategoryUnavailable, err)
	}
	return err
}

func (c *providerClient) send(ctx context.Context, req apiRequest, out interface{}) error {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return pkgerrors.NewPermanentError(c.provider, CodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err), pkgerrors.CategoryInvalidRequest)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return pkgerrors.NewPermanentError(c.provider, CodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err), pkgerrors.CategoryInvalidRequest)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.IdempotencyHeader != "" && req.IdempotencyKey != "" {
		httpReq.Header.Set(req.IdempotencyHeader, req.IdempotencyKey)
	}
	if c.apiKeySecret != "" && c.secrets != nil {
		secret, err := c.secrets.GetSecret(ctx, c.apiKeySecret)
		if err != nil {
			return pkgerrors.NewTransientError(c.provider, CodeCredentials, "failed to load provider API key", pkgerrors.CategorySystemError, err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+secret.Value)
	}

	c.logger.Debug("Sending provider request",
		zap.String("provider", c.provider),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return pkgerrors.NewTransientError(c.provider, CodeTimeout, "provider request timed out", pkgerrors.CategoryTimeout, err)
		}
		return pkgerrors.NewTransientError(c.provider, CodeNetwork, "failed to connect to provider", pkgerrors.CategoryNetworkError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return pkgerrors.NewTransientError(c.provider, CodeNetwork, "failed to read provider response", pkgerrors.CategoryNetworkError, err)
	}

	if resp.StatusCode >= 400 {
		return c.classifyStatus(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// The provider accepted the call; the outcome is unknown until a retry or webhook settles it.
		return pkgerrors.NewTransientError(c.provider, CodeBadResponse, "failed to decode provider response", pkgerrors.CategorySystemError, err)
	}
	return nil
}

// classifyStatus maps an HTTP failure onto the gateway error taxonomy
func (c *providerClient) classifyStatus(status int, raw []byte) error {
	detail := parseErrorBody(raw)

	var gwErr *pkgerrors.GatewayError
	switch {
	case status == http.StatusTooManyRequests:
		gwErr = pkgerrors.NewTransientError(c.provider, CodeRateLimited, "provider rate limit exceeded", pkgerrors.CategoryRateLimited, nil)
	case status >= 500:
		gwErr = pkgerrors.NewTransientError(c.provider, CodeServerError, fmt.Sprintf("provider returned HTTP %d", status), pkgerrors.CategorySystemError, nil)
	case status == http.StatusPaymentRequired:
		gwErr = pkgerrors.NewPermanentError(c.provider, CodeDeclined, "payment declined", declineCategory(detail.code))
	case status == http.StatusNotFound:
		gwErr = pkgerrors.NewPermanentError(c.provider, CodeNotFound, "provider resource not found", pkgerrors.CategoryInvalidAccount)
	default:
		gwErr = pkgerrors.NewPermanentError(c.provider, CodeInvalidRequest, fmt.Sprintf("provider rejected request with HTTP %d", status), pkgerrors.CategoryInvalidRequest)
	}
	gwErr.GatewayMessage = detail.message
	return gwErr
}

// declineCategory narrows a provider decline code
func declineCategory(code string) pkgerrors.ErrorCategory {
	switch strings.ToLower(code) {
	case "insufficient_funds", "insufficient_balance", "2001":
		return pkgerrors.CategoryInsufficientFunds
	case "invalid_account", "account_closed", "no_account", "invalid_number":
		return pkgerrors.CategoryInvalidAccount
	default:
		return pkgerrors.CategoryDeclined
	}
}

type errorDetail struct {
	code    string
	message string
}

// parseErrorBody reads the error shapes used by the supported providers:
// {"error":{"code","decline_code","message"}}, {"name","message"} and
// {"errorCode","errorMessage"}
func parseErrorBody(raw []byte) errorDetail {
	var body struct {
		Error        json.RawMessage `json:"error"`
		Name         string          `json:"name"`
		Message      string          `json:"message"`
		ErrorCode    string          `json:"errorCode"`
		ErrorMessage string          `json:"errorMessage"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return errorDetail{message: strings.TrimSpace(string(raw))}
	}

	if len(body.Error) > 0 {
		var nested struct {
			Code        string `json:"code"`
			DeclineCode string `json:"decline_code"`
			Message     string `json:"message"`
		}
		if err := json.Unmarshal(body.Error, &nested); err == nil {
			code := nested.DeclineCode
			if code == "" {
				code = nested.Code
			}
			return errorDetail{code: code, message: nested.Message}
		}
		var plain string
		if err := json.Unmarshal(body.Error, &plain); err == nil {
			return errorDetail{message: plain}
		}
	}
	if body.ErrorCode != "" || body.ErrorMessage != "" {
		return errorDetail{code: body.ErrorCode, message: body.ErrorMessage}
	}
	return errorDetail{code: body.Name, message: body.Message}
}

// isNotFound reports whether err is a provider 404
func isNotFound(err error) bool {
	gwErr, ok := pkgerrors.AsGatewayError(err)
	return ok && gwErr.Code == CodeNotFound
}
