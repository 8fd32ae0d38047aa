package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	sqlDB := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(ctx, sqlDB, "up"))

	return pool
}

func newTestCampaign(goal int64) *domain.Campaign {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Campaign{
		ID:                uuid.New(),
		OwnerID:           "owner-" + uuid.NewString(),
		Title:             "Solar co-op",
		Currency:          "USD",
		FundingGoal:       goal,
		MinimumInvestment: 1,
		Status:            domain.CampaignStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestCampaignRepository_Integration(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewCampaignRepository(pool)
	txm := NewDBExecutor(pool)

	c := newTestCampaign(1000)
	require.NoError(t, repo.Create(ctx, nil, c))

	err := txm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := repo.GetForUpdate(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		locked.CommittedAmount = 400
		locked.PendingAmount = 400
		return repo.UpdateFunding(ctx, tx, locked)
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), got.CommittedAmount)
	assert.Equal(t, int64(400), got.PendingAmount)
	assert.Equal(t, int64(0), got.SettledAmount())

	_, err = repo.GetByID(ctx, nil, uuid.New())
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

func TestInvestmentRepository_Integration(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	campaigns := NewCampaignRepository(pool)
	investments := NewInvestmentRepository(pool)

	c := newTestCampaign(10000)
	require.NoError(t, campaigns.Create(ctx, nil, c))

	now := time.Now().UTC().Truncate(time.Microsecond)
	next := now.Add(-time.Hour)
	inv := &domain.Investment{
		ID:             uuid.New(),
		CampaignID:     c.ID,
		InvestorID:     "investor-1",
		PaymentMethod:  "card",
		IdempotencyKey: "key-" + uuid.NewString(),
		Currency:       "USD",
		Type:           domain.InvestmentTypeRecurring,
		Status:         domain.InvestmentStatusActive,
		Amount:         250,
		Recurring: &domain.RecurringState{
			Frequency:       domain.FrequencyMonthly,
			NextChargeDate:  &next,
			SubscriptionRef: "sub-" + uuid.NewString(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, investments.Create(ctx, nil, inv))

	dup := *inv
	dup.ID = uuid.New()
	assert.ErrorIs(t, investments.Create(ctx, nil, &dup), domain.ErrDuplicateKey)

	bySub, err := investments.GetByExternalRef(ctx, nil, inv.Recurring.SubscriptionRef)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, bySub.ID)
	require.NotNil(t, bySub.Recurring)
	assert.Equal(t, domain.FrequencyMonthly, bySub.Recurring.Frequency)

	due, err := investments.ListDueRecurring(ctx, nil, now, 100)
	require.NoError(t, err)
	assert.Contains(t, ids(due), inv.ID)

	inv.Recurring.PendingChargeRef = "ch-" + uuid.NewString()
	inv.MarkApplied("evt-1")
	require.NoError(t, investments.Update(ctx, nil, inv))

	due, err = investments.ListDueRecurring(ctx, nil, now, 100)
	require.NoError(t, err)
	assert.NotContains(t, ids(due), inv.ID)

	byCharge, err := investments.GetByExternalRef(ctx, nil, inv.Recurring.PendingChargeRef)
	require.NoError(t, err)
	assert.True(t, byCharge.HasApplied("evt-1"))

	awaiting, err := investments.ListAwaitingSettlement(ctx, nil, now.Add(time.Minute), 100)
	require.NoError(t, err)
	assert.Contains(t, ids(awaiting), inv.ID)

	inv.ExternalRef = "ch-" + uuid.NewString()
	inv.Recurring.AnchorDay = 31
	inv.Recurring.TransientFailures = 2
	require.NoError(t, investments.Update(ctx, nil, inv))
	stored, err := investments.GetByID(ctx, nil, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, stored.Recurring.AnchorDay)
	assert.Equal(t, 2, stored.Recurring.TransientFailures)

	sameRef := *inv
	sameRef.ID = uuid.New()
	sameRef.IdempotencyKey = "key-" + uuid.NewString()
	sameRef.Recurring = nil
	sameRef.Type = domain.InvestmentTypeOneTime
	assert.ErrorIs(t, investments.Create(ctx, nil, &sameRef), domain.ErrDuplicateExternalRef)

	other := sameRef
	other.ExternalRef = ""
	require.NoError(t, investments.Create(ctx, nil, &other))
	other.ExternalRef = inv.ExternalRef
	assert.ErrorIs(t, investments.Update(ctx, nil, &other), domain.ErrDuplicateExternalRef)

	list, err := investments.ListByInvestor(ctx, nil, "investor-1", 10, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}

func TestReservationAndDeadLetterRepositories_Integration(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	campaigns := NewCampaignRepository(pool)
	reservations := NewReservationRepository(pool)
	letters := NewDeadLetterRepository(pool)

	c := newTestCampaign(1000)
	require.NoError(t, campaigns.Create(ctx, nil, c))

	now := time.Now().UTC()
	for _, amount := range []int64{100, 200} {
		require.NoError(t, reservations.Create(ctx, nil, &domain.Reservation{
			ID: uuid.New(), CampaignID: c.ID, Status: domain.ReservationStatusHeld,
			Amount: amount, CreatedAt: now, UpdatedAt: now,
		}))
	}

	sums, err := reservations.SumByStatus(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), sums[domain.ReservationStatusHeld])

	letter := &domain.DeadLetter{
		ID:       uuid.New(),
		Provider: "card",
		Event: domain.WebhookEvent{
			ID: "evt-9", ExternalRef: "missing", Type: domain.WebhookEventCharge,
			Status: domain.WebhookStatusSucceeded, Timestamp: now.Unix(), Signature: "abc",
		},
		Reason:    domain.DeadLetterUnresolvedRef,
		CreatedAt: now,
	}
	require.NoError(t, letters.Create(ctx, nil, letter))

	got, err := letters.GetByID(ctx, nil, letter.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-9", got.Event.ID)

	require.NoError(t, letters.MarkResolved(ctx, nil, letter.ID, now))
	assert.ErrorIs(t, letters.MarkResolved(ctx, nil, letter.ID, now), domain.ErrDeadLetterNotFound)
}

func ids(invs []*domain.Investment) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(invs))
	for _, inv := range invs {
		out = append(out, inv.ID)
	}
	return out
}
