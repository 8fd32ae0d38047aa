package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCampaign() *domain.Campaign {
	now := time.Now().UTC()
	return &domain.Campaign{
		ID:                uuid.New(),
		OwnerID:           "owner-1",
		Currency:          "USD",
		FundingGoal:       1000,
		MinimumInvestment: 1,
		Status:            domain.CampaignStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestStore_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	campaigns := store.Campaigns()

	c := newCampaign()
	require.NoError(t, campaigns.Create(ctx, nil, c))

	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := campaigns.GetForUpdate(ctx, tx, c.ID)
		require.NoError(t, err)
		locked.CommittedAmount = 500
		require.NoError(t, campaigns.UpdateFunding(ctx, tx, locked))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := campaigns.GetByID(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.CommittedAmount)
}

func TestStore_TransactionCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	campaigns := store.Campaigns()

	c := newCampaign()
	require.NoError(t, campaigns.Create(ctx, nil, c))

	err := store.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := campaigns.GetForUpdate(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		locked.CommittedAmount = 300
		locked.PendingAmount = 300
		return campaigns.UpdateFunding(ctx, tx, locked)
	})
	require.NoError(t, err)

	got, err := campaigns.GetByID(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.CommittedAmount)
	assert.Equal(t, int64(300), got.PendingAmount)
}

func TestStore_PanicRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	campaigns := store.Campaigns()

	c := newCampaign()
	require.NoError(t, campaigns.Create(ctx, nil, c))

	assert.Panics(t, func() {
		_ = store.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			require.NoError(t, campaigns.UpdateStatus(ctx, tx, c.ID, domain.CampaignStatusCancelled))
			panic("boom")
		})
	})

	got, err := campaigns.GetByID(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusActive, got.Status)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	campaigns := store.Campaigns()

	c := newCampaign()
	require.NoError(t, campaigns.Create(ctx, nil, c))
	c.CommittedAmount = 999

	got, err := campaigns.GetByID(ctx, nil, c.ID)
	require.NoError(t, err)
	got.Status = domain.CampaignStatusCancelled

	again, err := campaigns.GetByID(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.CommittedAmount)
	assert.Equal(t, domain.CampaignStatusActive, again.Status)
}

func TestInvestmentRepository(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Investments()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	campaignID := uuid.New()

	mk := func(key string, next *time.Time, created time.Time) *domain.Investment {
		return &domain.Investment{
			ID:             uuid.New(),
			CampaignID:     campaignID,
			InvestorID:     "investor-1",
			PaymentMethod:  "card",
			IdempotencyKey: key,
			Currency:       "USD",
			Type:           domain.InvestmentTypeRecurring,
			Status:         domain.InvestmentStatusActive,
			Amount:         100,
			Recurring: &domain.RecurringState{
				Frequency:       domain.FrequencyMonthly,
				NextChargeDate:  next,
				SubscriptionRef: "sub-" + key,
			},
			CreatedAt: created,
		}
	}

	due := mk("a", &past, now.Add(-2*time.Minute))
	notDue := mk("b", &future, now.Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, nil, due))
	require.NoError(t, repo.Create(ctx, nil, notDue))

	t.Run("duplicate idempotency key", func(t *testing.T) {
		dup := mk("a", nil, now)
		assert.ErrorIs(t, repo.Create(ctx, nil, dup), domain.ErrDuplicateKey)
	})

	t.Run("lookup by subscription ref", func(t *testing.T) {
		got, err := repo.GetByExternalRef(ctx, nil, "sub-b")
		require.NoError(t, err)
		assert.Equal(t, notDue.ID, got.ID)
	})

	t.Run("unknown ref", func(t *testing.T) {
		_, err := repo.GetByExternalRef(ctx, nil, "nope")
		assert.ErrorIs(t, err, domain.ErrInvestmentNotFound)
		_, err = repo.GetByExternalRef(ctx, nil, "")
		assert.ErrorIs(t, err, domain.ErrInvestmentNotFound)
	})

	t.Run("due list skips in-flight charges", func(t *testing.T) {
		list, err := repo.ListDueRecurring(ctx, nil, now, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, due.ID, list[0].ID)

		inFlight := cloneInvestment(due)
		inFlight.Recurring.PendingChargeRef = "ch-1"
		require.NoError(t, repo.Update(ctx, nil, inFlight))

		list, err = repo.ListDueRecurring(ctx, nil, now, 10)
		require.NoError(t, err)
		assert.Empty(t, list)

		got, err := repo.GetByExternalRef(ctx, nil, "ch-1")
		require.NoError(t, err)
		assert.Equal(t, due.ID, got.ID)
	})

	t.Run("list by campaign newest first", func(t *testing.T) {
		list, err := repo.ListByCampaign(ctx, nil, campaignID, 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, notDue.ID, list[0].ID)

		list, err = repo.ListByInvestor(ctx, nil, "investor-1", 1, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, due.ID, list[0].ID)
	})
}

func TestInvestmentRepository_ExternalRefUnique(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Investments()

	mk := func(key, ref string) *domain.Investment {
		return &domain.Investment{
			ID:             uuid.New(),
			CampaignID:     uuid.New(),
			InvestorID:     "investor-1",
			PaymentMethod:  "card",
			IdempotencyKey: key,
			ExternalRef:    ref,
			Currency:       "USD",
			Type:           domain.InvestmentTypeOneTime,
			Status:         domain.InvestmentStatusPending,
			Amount:         100,
		}
	}

	first := mk("a", "ch-1")
	require.NoError(t, repo.Create(ctx, nil, first))
	require.NoError(t, repo.Create(ctx, nil, mk("b", "")))
	require.NoError(t, repo.Create(ctx, nil, mk("c", "")))

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"create with taken ref", func() error { return repo.Create(ctx, nil, mk("d", "ch-1")) }, domain.ErrDuplicateExternalRef},
		{"create with fresh ref", func() error { return repo.Create(ctx, nil, mk("e", "ch-2")) }, nil},
		{"update to taken ref", func() error {
			other := mk("f", "")
			require.NoError(t, repo.Create(ctx, nil, other))
			other.ExternalRef = "ch-1"
			return repo.Update(ctx, nil, other)
		}, domain.ErrDuplicateExternalRef},
		{"update keeping own ref", func() error {
			first.Status = domain.InvestmentStatusCompleted
			return repo.Update(ctx, nil, first)
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	got, err := repo.GetByExternalRef(ctx, nil, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestInvestmentRepository_ListAwaitingSettlement(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Investments()

	cutoff := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(key string, status domain.InvestmentStatus, pendingRef string, updated time.Time) *domain.Investment {
		inv := &domain.Investment{
			ID:             uuid.New(),
			CampaignID:     uuid.New(),
			InvestorID:     "investor-1",
			PaymentMethod:  "card",
			IdempotencyKey: key,
			Currency:       "USD",
			Type:           domain.InvestmentTypeRecurring,
			Status:         status,
			Amount:         100,
			Recurring: &domain.RecurringState{
				Frequency:        domain.FrequencyMonthly,
				PendingChargeRef: pendingRef,
			},
			CreatedAt: updated,
			UpdatedAt: updated,
		}
		require.NoError(t, repo.Create(ctx, nil, inv))
		return inv
	}

	stalePending := mk("stale-pending", domain.InvestmentStatusPending, "", cutoff.Add(-2*time.Hour))
	staleCharge := mk("stale-charge", domain.InvestmentStatusActive, "ch-1", cutoff.Add(-time.Hour))
	mk("fresh-pending", domain.InvestmentStatusPending, "", cutoff.Add(time.Minute))
	mk("idle-active", domain.InvestmentStatusActive, "", cutoff.Add(-time.Hour))
	mk("failed", domain.InvestmentStatusFailed, "", cutoff.Add(-time.Hour))

	list, err := repo.ListAwaitingSettlement(ctx, nil, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, stalePending.ID, list[0].ID)
	assert.Equal(t, staleCharge.ID, list[1].ID)

	list, err = repo.ListAwaitingSettlement(ctx, nil, cutoff, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stalePending.ID, list[0].ID)
}

func TestReservationRepository_SumByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Reservations()
	campaignID := uuid.New()

	for _, r := range []struct {
		amount int64
		status domain.ReservationStatus
	}{
		{100, domain.ReservationStatusHeld},
		{200, domain.ReservationStatusHeld},
		{300, domain.ReservationStatusCommitted},
		{50, domain.ReservationStatusReleased},
	} {
		require.NoError(t, repo.Create(ctx, nil, &domain.Reservation{
			ID: uuid.New(), CampaignID: campaignID, Status: r.status, Amount: r.amount,
		}))
	}

	sums, err := repo.SumByStatus(ctx, nil, campaignID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), sums[domain.ReservationStatusHeld])
	assert.Equal(t, int64(300), sums[domain.ReservationStatusCommitted])
	assert.Equal(t, int64(50), sums[domain.ReservationStatusReleased])
}

func TestDeadLetterRepository(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.DeadLetters()

	base := time.Now().UTC()
	first := &domain.DeadLetter{ID: uuid.New(), Provider: "card", Reason: domain.DeadLetterUnresolvedRef, CreatedAt: base}
	second := &domain.DeadLetter{ID: uuid.New(), Provider: "card", Reason: domain.DeadLetterInvalidTransition, CreatedAt: base.Add(time.Second)}
	require.NoError(t, repo.Create(ctx, nil, second))
	require.NoError(t, repo.Create(ctx, nil, first))

	list, err := repo.ListUnresolved(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	require.NoError(t, repo.MarkResolved(ctx, nil, first.ID, base))
	assert.ErrorIs(t, repo.MarkResolved(ctx, nil, first.ID, base), domain.ErrDeadLetterNotFound)

	list, err = repo.ListUnresolved(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
}
