package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/kevin07696/funding-service/internal/domain"
	domainports "github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/kevin07696/funding-service/internal/services/ports"
	"github.com/kevin07696/funding-service/internal/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExpireStale_PendingInvestment(t *testing.T) {
	tests := []struct {
		name        string
		chargeErr   error
		chargeRes   *domainports.ChargeResult
		recurring   bool
		wantCancels bool
	}{
		{
			name:      "webhook never arrived",
			chargeRes: &domainports.ChargeResult{ExternalRef: "ch_1", Status: domainports.ChargeStatusPending},
		},
		{
			name:      "transient failure never retried",
			chargeErr: transientErr(),
		},
		{
			name:        "recurring plan whose first charge never settled",
			chargeRes:   &domainports.ChargeResult{ExternalRef: "ch_1", Status: domainports.ChargeStatusPending},
			recurring:   true,
			wantCancels: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			ctx := context.Background()
			c := env.seedCampaign(t, fixtures.NewCampaign().WithGoal(1000).Build())

			req := investRequest(c.ID, 300, "key-1")
			if tt.recurring {
				req.Type = domain.InvestmentTypeRecurring
				req.Frequency = domain.FrequencyMonthly
				env.gw.On("Subscribe", mock.Anything, mock.Anything).
					Return(&domainports.SubscribeResult{SubscriptionRef: "sub_1"}, nil).Once()
				env.gw.On("CancelSubscription", mock.Anything, "sub_1").Return(nil).Once()
			}
			env.gw.On("Charge", mock.Anything, keyIs("key-1")).Return(tt.chargeRes, tt.chargeErr).Once()

			inv, _ := env.svc.Invest(ctx, req)
			if inv == nil {
				found, err := env.store.Investments().GetByIdempotencyKey(ctx, nil, "key-1")
				require.NoError(t, err)
				inv = found
			}
			require.Equal(t, domain.InvestmentStatusPending, inv.Status)
			require.Equal(t, int64(300), env.campaign(t, c.ID).PendingAmount)

			// Nothing changed since the cutoff: still within its hold TTL.
			expired, err := env.svc.ExpireStale(ctx, inv.ID, testNow)
			require.NoError(t, err)
			assert.False(t, expired)

			cutoff := testNow.Add(time.Minute)
			stale, err := env.svc.ListAwaitingSettlement(ctx, cutoff, 10)
			require.NoError(t, err)
			require.Len(t, stale, 1)
			assert.Equal(t, inv.ID, stale[0].ID)

			expired, err = env.svc.ExpireStale(ctx, inv.ID, cutoff)
			require.NoError(t, err)
			assert.True(t, expired)

			stored := env.investment(t, inv.ID)
			assert.Equal(t, domain.InvestmentStatusFailed, stored.Status)
			assert.Equal(t, settlementTimeoutReason, stored.FailureReason)
			campaign := env.campaign(t, c.ID)
			assert.Zero(t, campaign.CommittedAmount)
			assert.Zero(t, campaign.PendingAmount)
			assert.Len(t, env.notifier.SentOfType(domain.NotificationInvestmentFailed), 1)

			expired, err = env.svc.ExpireStale(ctx, inv.ID, cutoff)
			require.NoError(t, err)
			assert.False(t, expired)
		})
	}
}

func TestExpireStale_RecurringChargeAwaitingWebhook(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.seedCampaign(t, fixtures.NewCampaign().Build())
	due := testNow.Add(-time.Hour)
	inv := env.seedInvestment(t, fixtures.NewInvestment(c.ID).Recurring(domain.FrequencyWeekly, due).Build())

	env.gw.On("Charge", mock.Anything, keyIs(inv.ChargeIdempotencyKey(due))).
		Return(&domainports.ChargeResult{ExternalRef: "ws_1", Status: domainports.ChargeStatusPending}, nil).Once()
	outcome, err := env.svc.ProcessDueCharge(ctx, inv.ID, testNow)
	require.NoError(t, err)
	require.Equal(t, ports.ChargeOutcomePending, outcome)

	expired, err := env.svc.ExpireStale(ctx, inv.ID, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, expired)

	stored := env.investment(t, inv.ID)
	assert.Equal(t, domain.InvestmentStatusActive, stored.Status)
	assert.Equal(t, 1, stored.Recurring.FailedAttempts)
	assert.Empty(t, stored.Recurring.PendingChargeRef)
	assert.Zero(t, env.campaign(t, c.ID).PendingAmount)

	// The late webhook no longer matches a charge in flight.
	_, err = env.svc.Apply(ctx, &ports.ApplyEventRequest{
		InvestmentID: inv.ID, Event: domain.EventChargeSucceeded, EventID: "evt_late",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestExpireStale_ReleasesAbandonedClaim(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.seedCampaign(t, fixtures.NewCampaign().Build())
	due := testNow.Add(-time.Hour)

	// A process claimed the charge and died before the provider answered.
	inv := fixtures.NewInvestment(c.ID).Recurring(domain.FrequencyWeekly, due).
		WithUpdatedAt(testNow.Add(-48 * time.Hour)).Build()
	inv.ClaimCharge(inv.ChargeIdempotencyKey(due))
	env.seedInvestment(t, inv)

	outcome, err := env.svc.ProcessDueCharge(ctx, inv.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, ports.ChargeOutcomeSkipped, outcome)

	expired, err := env.svc.ExpireStale(ctx, inv.ID, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, expired)

	stored := env.investment(t, inv.ID)
	assert.Empty(t, stored.Recurring.PendingChargeRef)
	assert.Equal(t, 1, stored.Recurring.TransientFailures)
	assert.Zero(t, stored.Recurring.FailedAttempts)

	// The next sweep retries under the same key, so the provider replays
	// the outcome of the abandoned call instead of charging twice.
	env.gw.On("Charge", mock.Anything, keyIs(inv.ChargeIdempotencyKey(due))).
		Return(&domainports.ChargeResult{ExternalRef: "ch_r1", Status: domainports.ChargeStatusSucceeded}, nil).Once()
	outcome, err = env.svc.ProcessDueCharge(ctx, inv.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, ports.ChargeOutcomeSucceeded, outcome)
	assert.Equal(t, int64(100), env.campaign(t, c.ID).CommittedAmount)
}

func TestExpireStale_SkipsSettledInvestments(t *testing.T) {
	tests := []struct {
		name  string
		build func(c *domain.Campaign) *domain.Investment
	}{
		{
			name: "completed",
			build: func(c *domain.Campaign) *domain.Investment {
				return fixtures.NewInvestment(c.ID).WithStatus(domain.InvestmentStatusCompleted).Build()
			},
		},
		{
			name: "recurring plan between charges",
			build: func(c *domain.Campaign) *domain.Investment {
				return fixtures.NewInvestment(c.ID).Recurring(domain.FrequencyWeekly, testNow).Build()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			c := env.seedCampaign(t, fixtures.NewCampaign().Build())
			inv := tt.build(c)
			inv.UpdatedAt = testNow.Add(-48 * time.Hour)
			env.seedInvestment(t, inv)

			expired, err := env.svc.ExpireStale(context.Background(), inv.ID, testNow)
			require.NoError(t, err)
			assert.False(t, expired)
			assert.Equal(t, inv.Status, env.investment(t, inv.ID).Status)
		})
	}
}
