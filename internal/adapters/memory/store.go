// Package memory provides an in-process implementation of the storage ports.
// It backs local development and service tests; production uses postgres.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
)

// Store holds all records in memory.
//
// Write transactions are serialized by txMu, which gives the same isolation a
// row lock gives in postgres. A failed transaction restores the snapshot taken
// when it began. mu guards the maps for readers outside a transaction.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	campaigns    map[uuid.UUID]*domain.Campaign
	investments  map[uuid.UUID]*domain.Investment
	reservations map[uuid.UUID]*domain.Reservation
	deadLetters  map[uuid.UUID]*domain.DeadLetter
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		campaigns:    make(map[uuid.UUID]*domain.Campaign),
		investments:  make(map[uuid.UUID]*domain.Investment),
		reservations: make(map[uuid.UUID]*domain.Reservation),
		deadLetters:  make(map[uuid.UUID]*domain.DeadLetter),
	}
}

// storeTx marks repository calls made inside WithTransaction.
// Its pgx.Tx methods are never called.
type storeTx struct {
	pgx.Tx
}

// WithTransaction runs fn with exclusive write access. Repository writes made
// with the tx handed to fn are undone if fn fails.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(ctx, &storeTx{})
}

// WithReadOnlyTransaction runs fn without taking the write lock
func (s *Store) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &storeTx{})
}

// write applies a mutation. Writes outside a transaction wait for any running
// transaction so a rollback cannot discard them.
func (s *Store) write(tx ports.DBTX, fn func() error) error {
	if tx == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// read runs fn under the read lock
func (s *Store) read(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

// Ping satisfies health checks
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type snapshot struct {
	campaigns    map[uuid.UUID]*domain.Campaign
	investments  map[uuid.UUID]*domain.Investment
	reservations map[uuid.UUID]*domain.Reservation
	deadLetters  map[uuid.UUID]*domain.DeadLetter
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		campaigns:    make(map[uuid.UUID]*domain.Campaign, len(s.campaigns)),
		investments:  make(map[uuid.UUID]*domain.Investment, len(s.investments)),
		reservations: make(map[uuid.UUID]*domain.Reservation, len(s.reservations)),
		deadLetters:  make(map[uuid.UUID]*domain.DeadLetter, len(s.deadLetters)),
	}
	for id, c := range s.campaigns {
		snap.campaigns[id] = cloneCampaign(c)
	}
	for id, inv := range s.investments {
		snap.investments[id] = cloneInvestment(inv)
	}
	for id, r := range s.reservations {
		snap.reservations[id] = cloneReservation(r)
	}
	for id, l := range s.deadLetters {
		snap.deadLetters[id] = cloneDeadLetter(l)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.campaigns = snap.campaigns
	s.investments = snap.investments
	s.reservations = snap.reservations
	s.deadLetters = snap.deadLetters
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneCampaign(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.MaximumInvestment = clonePtr(c.MaximumInvestment)
	cp.StartDate = clonePtr(c.StartDate)
	cp.EndDate = clonePtr(c.EndDate)
	cp.FundedAt = clonePtr(c.FundedAt)
	return &cp
}

func cloneInvestment(inv *domain.Investment) *domain.Investment {
	cp := *inv
	cp.ReservationID = clonePtr(inv.ReservationID)
	if inv.AppliedEventIDs != nil {
		cp.AppliedEventIDs = append([]string(nil), inv.AppliedEventIDs...)
	}
	if inv.Recurring != nil {
		rs := *inv.Recurring
		rs.NextChargeDate = clonePtr(inv.Recurring.NextChargeDate)
		rs.EndDate = clonePtr(inv.Recurring.EndDate)
		rs.LastChargedAt = clonePtr(inv.Recurring.LastChargedAt)
		cp.Recurring = &rs
	}
	return &cp
}

func cloneReservation(r *domain.Reservation) *domain.Reservation {
	cp := *r
	cp.InvestmentID = clonePtr(r.InvestmentID)
	return &cp
}

func cloneDeadLetter(l *domain.DeadLetter) *domain.DeadLetter {
	cp := *l
	cp.ResolvedAt = clonePtr(l.ResolvedAt)
	return &cp
}

var errDuplicateID = errors.New("duplicate primary key")

var (
	_ ports.TransactionManager    = (*Store)(nil)
	_ ports.CampaignRepository    = (*CampaignRepository)(nil)
	_ ports.InvestmentRepository  = (*InvestmentRepository)(nil)
	_ ports.ReservationRepository = (*ReservationRepository)(nil)
	_ ports.DeadLetterRepository  = (*DeadLetterRepository)(nil)
)
