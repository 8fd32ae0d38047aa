package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the engine's layers
//
// Timeout Hierarchy (from outermost to innermost):
//
//	Webhook / cron handler (30s)
//	  ↓
//	Gateway call including retries (20s)
//	  ↓
//	Single gateway attempt (5s)
//
// Each layer completes before its parent times out.
type TimeoutConfig struct {
	WebhookHandler time.Duration
	Sweep          time.Duration
	GatewayCall    time.Duration
	GatewayAttempt time.Duration
	Notification   time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		WebhookHandler: 30 * time.Second,
		Sweep:          10 * time.Minute,
		GatewayCall:    20 * time.Second,
		GatewayAttempt: 5 * time.Second,
		Notification:   5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		WebhookHandler: 5 * time.Second,
		Sweep:          10 * time.Second,
		GatewayCall:    2 * time.Second,
		GatewayAttempt: 500 * time.Millisecond,
		Notification:   500 * time.Millisecond,
	}
}

// WebhookContext creates a context with timeout for webhook intake
func (tc *TimeoutConfig) WebhookContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.WebhookHandler)
}

// SweepContext creates a context with timeout for a billing sweep
func (tc *TimeoutConfig) SweepContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Sweep)
}

// GatewayContext creates a context bounding a gateway call and its retries
func (tc *TimeoutConfig) GatewayContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.GatewayCall)
}

// AttemptContext creates a context for a single gateway attempt
func (tc *TimeoutConfig) AttemptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.GatewayAttempt)
}

// NotificationContext creates a context for one notifier delivery
func (tc *TimeoutConfig) NotificationContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Notification)
}
