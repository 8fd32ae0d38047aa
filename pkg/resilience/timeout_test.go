package resilience

import (
	"context"
	"testing"
	"time"
)

func TestTimeoutConfig_Hierarchy(t *testing.T) {
	for name, cfg := range map[string]*TimeoutConfig{
		"default": DefaultTimeoutConfig(),
		"test":    TestTimeoutConfig(),
	} {
		t.Run(name, func(t *testing.T) {
			if cfg.GatewayAttempt >= cfg.GatewayCall {
				t.Errorf("attempt timeout %v must be below call timeout %v", cfg.GatewayAttempt, cfg.GatewayCall)
			}
			if cfg.GatewayCall >= cfg.WebhookHandler {
				t.Errorf("call timeout %v must be below handler timeout %v", cfg.GatewayCall, cfg.WebhookHandler)
			}
		})
	}
}

func TestTimeoutConfig_Contexts(t *testing.T) {
	cfg := TestTimeoutConfig()
	parent := context.Background()

	tests := []struct {
		name     string
		build    func(context.Context) (context.Context, context.CancelFunc)
		expected time.Duration
	}{
		{"webhook", cfg.WebhookContext, cfg.WebhookHandler},
		{"sweep", cfg.SweepContext, cfg.Sweep},
		{"gateway", cfg.GatewayContext, cfg.GatewayCall},
		{"attempt", cfg.AttemptContext, cfg.GatewayAttempt},
		{"notification", cfg.NotificationContext, cfg.Notification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.build(parent)
			defer cancel()

			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatal("expected deadline")
			}
			remaining := time.Until(deadline)
			if remaining > tt.expected || remaining < tt.expected-time.Second {
				t.Errorf("deadline in %v, expected about %v", remaining, tt.expected)
			}
		})
	}
}
