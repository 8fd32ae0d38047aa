package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType names the event a recipient is told about
type NotificationType string

const (
	NotificationInvestmentCompleted NotificationType = "investment.completed"
	NotificationInvestmentActivated NotificationType = "investment.activated"
	NotificationInvestmentFailed    NotificationType = "investment.failed"
	NotificationInvestmentCancelled NotificationType = "investment.cancelled"
	NotificationInvestmentDefaulted NotificationType = "investment.defaulted"
	NotificationInvestmentRefunded  NotificationType = "investment.refunded"
	NotificationCampaignFunded      NotificationType = "campaign.funded"
)

// Notification is handed to the external notifier
type Notification struct {
	InvestmentID uuid.UUID        `json:"investment_id"`
	CampaignID   uuid.UUID        `json:"campaign_id"`
	Type         NotificationType `json:"event_type"`
	RecipientID  string           `json:"recipient_id"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// NotificationForStatus maps a ledger status reached by a transition to its notification type
func NotificationForStatus(status InvestmentStatus) (NotificationType, bool) {
	switch status {
	case InvestmentStatusCompleted:
		return NotificationInvestmentCompleted, true
	case InvestmentStatusActive:
		return NotificationInvestmentActivated, true
	case InvestmentStatusFailed:
		return NotificationInvestmentFailed, true
	case InvestmentStatusCancelled:
		return NotificationInvestmentCancelled, true
	case InvestmentStatusDefaulted:
		return NotificationInvestmentDefaulted, true
	case InvestmentStatusRefunded:
		return NotificationInvestmentRefunded, true
	}
	return "", false
}
