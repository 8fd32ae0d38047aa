package notifier

import (
	"context"

	"github.com/kevin07696/funding-service/internal/domain"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs n
func (l *LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	l.logger.Info("Notification",
		zap.String("event_type", string(n.Type)),
		zap.String("investment_id", n.InvestmentID.String()),
		zap.String("campaign_id", n.CampaignID.String()),
		zap.String("recipient_id", n.RecipientID),
		zap.Time("occurred_at", n.OccurredAt),
	)
	return nil
}
