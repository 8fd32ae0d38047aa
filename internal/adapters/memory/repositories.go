package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
)

// CampaignRepository implements ports.CampaignRepository
type CampaignRepository struct{ s *Store }

// InvestmentRepository implements ports.InvestmentRepository
type InvestmentRepository struct{ s *Store }

// ReservationRepository implements ports.ReservationRepository
type ReservationRepository struct{ s *Store }

// DeadLetterRepository implements ports.DeadLetterRepository
type DeadLetterRepository struct{ s *Store }

func (s *Store) Campaigns() *CampaignRepository       { return &CampaignRepository{s: s} }
func (s *Store) Investments() *InvestmentRepository   { return &InvestmentRepository{s: s} }
func (s *Store) Reservations() *ReservationRepository { return &ReservationRepository{s: s} }
func (s *Store) DeadLetters() *DeadLetterRepository   { return &DeadLetterRepository{s: s} }

// Campaigns

func (r *CampaignRepository) Create(_ context.Context, tx ports.DBTX, c *domain.Campaign) error {
	return r.s.write(tx, func() error {
		if _, exists := r.s.campaigns[c.ID]; exists {
			return domain.NewPersistenceError("create campaign", errDuplicateID)
		}
		r.s.campaigns[c.ID] = cloneCampaign(c)
		return nil
	})
}

func (r *CampaignRepository) GetByID(_ context.Context, _ ports.DBTX, id uuid.UUID) (*domain.Campaign, error) {
	var out *domain.Campaign
	err := r.s.read(func() error {
		c, ok := r.s.campaigns[id]
		if !ok {
			return domain.ErrCampaignNotFound
		}
		out = cloneCampaign(c)
		return nil
	})
	return out, err
}

func (r *CampaignRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Campaign, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *CampaignRepository) UpdateFunding(_ context.Context, tx ports.DBTX, c *domain.Campaign) error {
	return r.s.write(tx, func() error {
		stored, ok := r.s.campaigns[c.ID]
		if !ok {
			return domain.ErrCampaignNotFound
		}
		stored.CommittedAmount = c.CommittedAmount
		stored.PendingAmount = c.PendingAmount
		stored.Status = c.Status
		stored.FundedAt = clonePtr(c.FundedAt)
		stored.UpdatedAt = c.UpdatedAt
		return nil
	})
}

func (r *CampaignRepository) UpdateStatus(_ context.Context, tx ports.DBTX, id uuid.UUID, status domain.CampaignStatus) error {
	return r.s.write(tx, func() error {
		stored, ok := r.s.campaigns[id]
		if !ok {
			return domain.ErrCampaignNotFound
		}
		stored.Status = status
		stored.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// Investments

func (r *InvestmentRepository) Create(_ context.Context, tx ports.DBTX, inv *domain.Investment) error {
	return r.s.write(tx, func() error {
		if _, exists := r.s.investments[inv.ID]; exists {
			return domain.NewPersistenceError("create investment", errDuplicateID)
		}
		for _, existing := range r.s.investments {
			if existing.IdempotencyKey == inv.IdempotencyKey {
				return domain.ErrDuplicateKey
			}
		}
		if r.externalRefTaken(inv) {
			return domain.ErrDuplicateExternalRef
		}
		r.s.investments[inv.ID] = cloneInvestment(inv)
		return nil
	})
}

func (r *InvestmentRepository) GetByID(_ context.Context, _ ports.DBTX, id uuid.UUID) (*domain.Investment, error) {
	var out *domain.Investment
	err := r.s.read(func() error {
		inv, ok := r.s.investments[id]
		if !ok {
			return domain.ErrInvestmentNotFound
		}
		out = cloneInvestment(inv)
		return nil
	})
	return out, err
}

func (r *InvestmentRepository) GetForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*domain.Investment, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *InvestmentRepository) GetByExternalRef(_ context.Context, _ ports.DBTX, externalRef string) (*domain.Investment, error) {
	if externalRef == "" {
		return nil, domain.ErrInvestmentNotFound
	}
	return r.findOne(func(inv *domain.Investment) bool {
		if inv.ExternalRef == externalRef {
			return true
		}
		return inv.Recurring != nil &&
			(inv.Recurring.PendingChargeRef == externalRef || inv.Recurring.SubscriptionRef == externalRef)
	})
}

func (r *InvestmentRepository) GetByIdempotencyKey(_ context.Context, _ ports.DBTX, key string) (*domain.Investment, error) {
	return r.findOne(func(inv *domain.Investment) bool { return inv.IdempotencyKey == key })
}

func (r *InvestmentRepository) Update(_ context.Context, tx ports.DBTX, inv *domain.Investment) error {
	return r.s.write(tx, func() error {
		if _, ok := r.s.investments[inv.ID]; !ok {
			return domain.ErrInvestmentNotFound
		}
		if r.externalRefTaken(inv) {
			return domain.ErrDuplicateExternalRef
		}
		r.s.investments[inv.ID] = cloneInvestment(inv)
		return nil
	})
}

func (r *InvestmentRepository) ListByCampaign(_ context.Context, _ ports.DBTX, campaignID uuid.UUID, limit, offset int32) ([]*domain.Investment, error) {
	return r.page(func(inv *domain.Investment) bool { return inv.CampaignID == campaignID }, limit, offset), nil
}

func (r *InvestmentRepository) ListByInvestor(_ context.Context, _ ports.DBTX, investorID string, limit, offset int32) ([]*domain.Investment, error) {
	return r.page(func(inv *domain.Investment) bool { return inv.InvestorID == investorID }, limit, offset), nil
}

func (r *InvestmentRepository) ListDueRecurring(_ context.Context, _ ports.DBTX, asOf time.Time, limit int32) ([]*domain.Investment, error) {
	var due []*domain.Investment
	_ = r.s.read(func() error {
		for _, inv := range r.s.investments {
			if inv.IsRecurring() && inv.Status == domain.InvestmentStatusActive &&
				inv.Recurring.NextChargeDate != nil && !inv.Recurring.NextChargeDate.After(asOf) &&
				inv.Recurring.PendingChargeRef == "" {
				due = append(due, cloneInvestment(inv))
			}
		}
		return nil
	})
	sort.Slice(due, func(i, j int) bool {
		return due[i].Recurring.NextChargeDate.Before(*due[j].Recurring.NextChargeDate)
	})
	if limit > 0 && int(limit) < len(due) {
		due = due[:limit]
	}
	return due, nil
}

func (r *InvestmentRepository) ListAwaitingSettlement(_ context.Context, _ ports.DBTX, before time.Time, limit int32) ([]*domain.Investment, error) {
	var stale []*domain.Investment
	_ = r.s.read(func() error {
		for _, inv := range r.s.investments {
			if inv.AwaitsSettlement() && inv.UpdatedAt.Before(before) {
				stale = append(stale, cloneInvestment(inv))
			}
		}
		return nil
	})
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && int(limit) < len(stale) {
		stale = stale[:limit]
	}
	return stale, nil
}

// externalRefTaken reports whether another investment holds inv's provider
// reference. Callers hold the store lock.
func (r *InvestmentRepository) externalRefTaken(inv *domain.Investment) bool {
	if inv.ExternalRef == "" {
		return false
	}
	for id, existing := range r.s.investments {
		if id != inv.ID && existing.ExternalRef == inv.ExternalRef {
			return true
		}
	}
	return false
}

func (r *InvestmentRepository) findOne(match func(*domain.Investment) bool) (*domain.Investment, error) {
	var out *domain.Investment
	err := r.s.read(func() error {
		for _, inv := range r.s.investments {
			if match(inv) && (out == nil || inv.CreatedAt.Before(out.CreatedAt)) {
				out = inv
			}
		}
		if out == nil {
			return domain.ErrInvestmentNotFound
		}
		out = cloneInvestment(out)
		return nil
	})
	return out, err
}

// page returns matches newest first
func (r *InvestmentRepository) page(match func(*domain.Investment) bool, limit, offset int32) []*domain.Investment {
	var out []*domain.Investment
	_ = r.s.read(func() error {
		for _, inv := range r.s.investments {
			if match(inv) {
				out = append(out, cloneInvestment(inv))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset)
}

// Reservations

func (r *ReservationRepository) Create(_ context.Context, tx ports.DBTX, res *domain.Reservation) error {
	return r.s.write(tx, func() error {
		if _, exists := r.s.reservations[res.ID]; exists {
			return domain.NewPersistenceError("create reservation", errDuplicateID)
		}
		r.s.reservations[res.ID] = cloneReservation(res)
		return nil
	})
}

func (r *ReservationRepository) GetForUpdate(_ context.Context, _ ports.DBTX, id uuid.UUID) (*domain.Reservation, error) {
	var out *domain.Reservation
	err := r.s.read(func() error {
		res, ok := r.s.reservations[id]
		if !ok {
			return domain.ErrReservationNotFound
		}
		out = cloneReservation(res)
		return nil
	})
	return out, err
}

func (r *ReservationRepository) UpdateStatus(_ context.Context, tx ports.DBTX, id uuid.UUID, status domain.ReservationStatus) error {
	return r.s.write(tx, func() error {
		res, ok := r.s.reservations[id]
		if !ok {
			return domain.ErrReservationNotFound
		}
		res.Status = status
		res.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *ReservationRepository) AttachInvestment(_ context.Context, tx ports.DBTX, id uuid.UUID, investmentID uuid.UUID) error {
	return r.s.write(tx, func() error {
		res, ok := r.s.reservations[id]
		if !ok {
			return domain.ErrReservationNotFound
		}
		res.InvestmentID = &investmentID
		res.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *ReservationRepository) SumByStatus(_ context.Context, _ ports.DBTX, campaignID uuid.UUID) (map[domain.ReservationStatus]int64, error) {
	sums := make(map[domain.ReservationStatus]int64)
	_ = r.s.read(func() error {
		for _, res := range r.s.reservations {
			if res.CampaignID == campaignID {
				sums[res.Status] += res.Amount
			}
		}
		return nil
	})
	return sums, nil
}

// Dead letters

func (r *DeadLetterRepository) Create(_ context.Context, db ports.DBTX, letter *domain.DeadLetter) error {
	return r.s.write(db, func() error {
		r.s.deadLetters[letter.ID] = cloneDeadLetter(letter)
		return nil
	})
}

func (r *DeadLetterRepository) GetByID(_ context.Context, _ ports.DBTX, id uuid.UUID) (*domain.DeadLetter, error) {
	var out *domain.DeadLetter
	err := r.s.read(func() error {
		l, ok := r.s.deadLetters[id]
		if !ok {
			return domain.ErrDeadLetterNotFound
		}
		out = cloneDeadLetter(l)
		return nil
	})
	return out, err
}

func (r *DeadLetterRepository) ListUnresolved(_ context.Context, _ ports.DBTX, limit int32) ([]*domain.DeadLetter, error) {
	var out []*domain.DeadLetter
	_ = r.s.read(func() error {
		for _, l := range r.s.deadLetters {
			if l.ResolvedAt == nil {
				out = append(out, cloneDeadLetter(l))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return window(out, limit, 0), nil
}

func (r *DeadLetterRepository) MarkResolved(_ context.Context, db ports.DBTX, id uuid.UUID, resolvedAt time.Time) error {
	return r.s.write(db, func() error {
		l, ok := r.s.deadLetters[id]
		if !ok || l.ResolvedAt != nil {
			return domain.ErrDeadLetterNotFound
		}
		l.ResolvedAt = &resolvedAt
		return nil
	})
}

func window[T any](items []T, limit, offset int32) []T {
	if offset > 0 {
		if int(offset) >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}
