package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
)

// InvestmentBuilder provides fluent API for building test investments.
type InvestmentBuilder struct {
	investment *domain.Investment
}

// NewInvestment creates a pending one-time card investment of 100 USD minor units.
func NewInvestment(campaignID uuid.UUID) *InvestmentBuilder {
	now := time.Now().UTC()
	id := uuid.New()
	return &InvestmentBuilder{
		investment: &domain.Investment{
			ID:             id,
			CampaignID:     campaignID,
			InvestorID:     "investor-1",
			PaymentMethod:  "card",
			PayerRef:       "tok_visa",
			ExternalRef:    "ch_" + id.String()[:8],
			IdempotencyKey: "key-" + id.String(),
			Currency:       "USD",
			Type:           domain.InvestmentTypeOneTime,
			Status:         domain.InvestmentStatusPending,
			Amount:         100,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
}

func (b *InvestmentBuilder) WithAmount(amount int64) *InvestmentBuilder {
	b.investment.Amount = amount
	return b
}

func (b *InvestmentBuilder) WithStatus(status domain.InvestmentStatus) *InvestmentBuilder {
	b.investment.Status = status
	return b
}

func (b *InvestmentBuilder) WithExternalRef(ref string) *InvestmentBuilder {
	b.investment.ExternalRef = ref
	return b
}

func (b *InvestmentBuilder) WithInvestor(investorID string) *InvestmentBuilder {
	b.investment.InvestorID = investorID
	return b
}

func (b *InvestmentBuilder) WithPaymentMethod(method string) *InvestmentBuilder {
	b.investment.PaymentMethod = method
	return b
}

func (b *InvestmentBuilder) WithReservation(id uuid.UUID) *InvestmentBuilder {
	b.investment.ReservationID = &id
	return b
}

func (b *InvestmentBuilder) WithCommittedTotal(total int64) *InvestmentBuilder {
	b.investment.CommittedTotal = total
	return b
}

// Recurring turns the investment into an active recurring plan due at next.
func (b *InvestmentBuilder) Recurring(frequency domain.Frequency, next time.Time) *InvestmentBuilder {
	b.investment.Type = domain.InvestmentTypeRecurring
	b.investment.Status = domain.InvestmentStatusActive
	b.investment.Recurring = &domain.RecurringState{
		Frequency:       frequency,
		NextChargeDate:  &next,
		SubscriptionRef: "sub_" + b.investment.ID.String()[:8],
	}
	return b
}

func (b *InvestmentBuilder) WithEndDate(end time.Time) *InvestmentBuilder {
	b.investment.Recurring.EndDate = &end
	return b
}

func (b *InvestmentBuilder) WithFailedAttempts(n int) *InvestmentBuilder {
	b.investment.Recurring.FailedAttempts = n
	return b
}

func (b *InvestmentBuilder) WithUpdatedAt(at time.Time) *InvestmentBuilder {
	b.investment.UpdatedAt = at
	return b
}

func (b *InvestmentBuilder) Build() *domain.Investment {
	return b.investment
}
