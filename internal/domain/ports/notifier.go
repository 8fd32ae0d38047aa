package ports

import (
	"context"

	"github.com/kevin07696/funding-service/internal/domain"
)

// Notifier delivers terminal-state events to the external notification service
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}
