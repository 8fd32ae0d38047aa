// Package scheduler runs periodic sweeps that charge due recurring investments
// and expire payments the provider never settled.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/services/ports"
	"github.com/kevin07696/funding-service/pkg/observability"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"github.com/kevin07696/funding-service/pkg/timeutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSweepInProgress is returned when a sweep is requested while one is running
var ErrSweepInProgress = errors.New("recurring billing sweep already in progress")

// DefaultHoldTTL is how long a payment may await provider settlement before
// its hold is reclaimed
const DefaultHoldTTL = 24 * time.Hour

// Config tunes the scheduler
type Config struct {
	Interval  time.Duration
	Workers   int
	BatchSize int32
	HoldTTL   time.Duration
}

// SweepResult tallies one sweep
type SweepResult struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Pending   int      `json:"pending"`
	Failed    int      `json:"failed"`
	Defaulted int      `json:"defaulted"`
	Cancelled int      `json:"cancelled"`
	Skipped   int      `json:"skipped"`
	Expired   int      `json:"expired"`
	Errors    []string `json:"errors,omitempty"`
}

func (r *SweepResult) record(outcome ports.ChargeOutcome, err error) {
	r.Processed++
	switch outcome {
	case ports.ChargeOutcomeSucceeded:
		r.Succeeded++
	case ports.ChargeOutcomePending:
		r.Pending++
	case ports.ChargeOutcomeFailed:
		r.Failed++
	case ports.ChargeOutcomeDefaulted:
		r.Defaulted++
	case ports.ChargeOutcomeCancelled:
		r.Cancelled++
	case ports.ChargeOutcomeSkipped:
		r.Skipped++
	default:
		if err != nil {
			r.Failed++
		}
	}
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// Scheduler charges due recurring investments through a bounded worker pool.
// Sweeps never overlap: a tick that fires while a sweep is running is skipped.
type Scheduler struct {
	ledger   ports.LedgerService
	cfg      Config
	timeouts *resilience.TimeoutConfig
	clock    timeutil.Clock
	tracer   trace.Tracer
	logger   *zap.Logger

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	start   sync.Once
	halt    sync.Once
}

// New creates a scheduler
func New(ledger ports.LedgerService, cfg Config, timeouts *resilience.TimeoutConfig, clock timeutil.Clock, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = DefaultHoldTTL
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Scheduler{
		ledger:   ledger,
		cfg:      cfg,
		timeouts: timeouts,
		clock:    clock,
		tracer:   observability.Tracer("funding-service/scheduler"),
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs sweeps every Interval until Stop is called or ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	s.start.Do(func() {
		go s.loop(ctx)
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Recurring billing scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("workers", s.cfg.Workers),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				s.logger.Error("Recurring billing sweep failed", zap.Error(err))
			}
		}
	}
}

// Stop ends the loop and waits for a running sweep to finish or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	s.halt.Do(func() { close(s.stop) })
	s.start.Do(func() { close(s.done) })

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep charges every recurring investment due now, then expires up to one
// batch of payments that have awaited settlement longer than HoldTTL. Each
// investment is attempted at most once per sweep; one that fails stays due
// for the next.
func (s *Scheduler) Sweep(ctx context.Context) (*SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	ctx, cancel := s.timeouts.SweepContext(ctx)
	defer cancel()

	now := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, "scheduler.sweep", trace.WithAttributes(
		attribute.String("sweep.as_of", now.Format(time.RFC3339)),
	))
	defer span.End()

	var (
		mu     sync.Mutex
		result = &SweepResult{}
		seen   = make(map[uuid.UUID]struct{})
	)
	for {
		due, err := s.ledger.ListDueRecurring(ctx, now, s.cfg.BatchSize+int32(len(seen)))
		if err != nil {
			span.RecordError(err)
			return result, err
		}

		var batch []uuid.UUID
		for _, inv := range due {
			if _, ok := seen[inv.ID]; ok {
				continue
			}
			seen[inv.ID] = struct{}{}
			batch = append(batch, inv.ID)
		}
		if len(batch) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(s.cfg.Workers)
		for _, id := range batch {
			g.Go(func() error {
				outcome, err := s.ledger.ProcessDueCharge(ctx, id, now)
				if err != nil {
					s.logger.Warn("Recurring charge failed",
						zap.String("investment_id", id.String()),
						zap.String("outcome", string(outcome)),
						zap.Error(err),
					)
				}
				mu.Lock()
				result.record(outcome, err)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() == nil {
		if err := s.expireStale(ctx, now, result); err != nil {
			span.RecordError(err)
			return result, err
		}
	}

	elapsed := time.Since(start)
	observability.RecordSweep(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("sweep.processed", result.Processed),
		attribute.Int("sweep.failed", result.Failed),
	)
	s.logger.Info("Recurring billing sweep completed",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("pending", result.Pending),
		zap.Int("failed", result.Failed),
		zap.Int("defaulted", result.Defaulted),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("expired", result.Expired),
		zap.Duration("duration", elapsed),
	)
	return result, ctx.Err()
}

// expireStale releases the holds of payments the provider has not settled
// within HoldTTL
func (s *Scheduler) expireStale(ctx context.Context, now time.Time, result *SweepResult) error {
	before := now.Add(-s.cfg.HoldTTL)
	stale, err := s.ledger.ListAwaitingSettlement(ctx, before, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Workers)
	for _, inv := range stale {
		g.Go(func() error {
			expired, err := s.ledger.ExpireStale(ctx, inv.ID, before)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("Failed to expire payment awaiting settlement",
					zap.String("investment_id", inv.ID.String()),
					zap.Error(err),
				)
				result.Errors = append(result.Errors, err.Error())
				return nil
			}
			if expired {
				result.Expired++
			}
			return nil
		})
	}
	return g.Wait()
}
