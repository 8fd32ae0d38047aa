package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func int64Ptr(v int64) *int64 { return &v }

func activeCampaign(goal int64) *Campaign {
	return &Campaign{
		Currency:          "USD",
		FundingGoal:       goal,
		MinimumInvestment: 1,
		Status:            CampaignStatusActive,
	}
}

// TestCampaign_CanReserve tests capacity and status checks
func TestCampaign_CanReserve(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name      string
		mutate    func(c *Campaign)
		amount    int64
		expectErr error
	}{
		{"fits exactly", func(c *Campaign) { c.CommittedAmount = 400 }, 600, nil},
		{"exceeds by one", func(c *Campaign) { c.CommittedAmount = 401 }, 600, ErrInsufficientCapacity},
		{"draft campaign", func(c *Campaign) { c.Status = CampaignStatusDraft }, 100, ErrCampaignNotActive},
		{"funded campaign", func(c *Campaign) { c.Status = CampaignStatusFunded }, 100, ErrCampaignNotActive},
		{"before start date", func(c *Campaign) { c.StartDate = &future }, 100, ErrCampaignNotActive},
		{"after end date", func(c *Campaign) { c.EndDate = &past }, 100, ErrCampaignNotActive},
		{"zero amount", func(c *Campaign) {}, 0, ErrValidationAmountInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCampaign(1000)
			tt.mutate(c)

			err := c.CanReserve(tt.amount, now)
			if tt.expectErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.expectErr), "got %v", err)
		})
	}
}

// TestCampaign_ValidateAmount tests investment bounds and currency
func TestCampaign_ValidateAmount(t *testing.T) {
	c := activeCampaign(10000)
	c.MinimumInvestment = 100
	c.MaximumInvestment = int64Ptr(5000)

	assert.NoError(t, c.ValidateAmount(100, "USD"))
	assert.NoError(t, c.ValidateAmount(5000, "usd"))
	assert.True(t, IsDomainError(c.ValidateAmount(99, "USD"), ErrorCodeValidationAmountInvalid))
	assert.True(t, IsDomainError(c.ValidateAmount(5001, "USD"), ErrorCodeValidationAmountInvalid))
	assert.True(t, IsDomainError(c.ValidateAmount(500, "EUR"), ErrorCodeValidationCurrency))
}

// TestCampaign_GoalReached tests that open holds do not count as settled capital
func TestCampaign_GoalReached(t *testing.T) {
	c := activeCampaign(1000)
	c.CommittedAmount = 1000
	c.PendingAmount = 100

	assert.False(t, c.GoalReached())
	assert.Equal(t, int64(0), c.RemainingCapacity())

	c.PendingAmount = 0
	assert.True(t, c.GoalReached())
}

// TestCampaign_Validate tests new campaign validation
func TestCampaign_Validate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	tests := []struct {
		name    string
		mutate  func(c *Campaign)
		wantErr bool
	}{
		{"valid", func(c *Campaign) {}, false},
		{"zero goal", func(c *Campaign) { c.FundingGoal = 0 }, true},
		{"bad currency", func(c *Campaign) { c.Currency = "DOLLARS" }, true},
		{"no minimum", func(c *Campaign) { c.MinimumInvestment = 0 }, true},
		{"max below min", func(c *Campaign) { c.MinimumInvestment = 10; c.MaximumInvestment = int64Ptr(5) }, true},
		{"end before start", func(c *Campaign) { c.StartDate = &start; c.EndDate = &end }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCampaign(1000)
			tt.mutate(c)
			err := c.Validate()
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

// TestCampaign_CanMoveTo tests owner lifecycle changes
func TestCampaign_CanMoveTo(t *testing.T) {
	tests := []struct {
		from     CampaignStatus
		to       CampaignStatus
		expected bool
	}{
		{CampaignStatusDraft, CampaignStatusPendingApproval, true},
		{CampaignStatusPendingApproval, CampaignStatusActive, true},
		{CampaignStatusActive, CampaignStatusFunded, false},
		{CampaignStatusActive, CampaignStatusCancelled, true},
		{CampaignStatusFunded, CampaignStatusCancelled, false},
		{CampaignStatusFunded, CampaignStatusCompleted, true},
		{CampaignStatusCompleted, CampaignStatusActive, false},
		{CampaignStatusCancelled, CampaignStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			c := &Campaign{Status: tt.from}
			assert.Equal(t, tt.expected, c.CanMoveTo(tt.to))
		})
	}
}
