package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/services/ports"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"github.com/kevin07696/funding-service/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// stubLedger serves due investments and records charge attempts.
// Investments whose outcome is not succeeded stay due.
type stubLedger struct {
	ports.LedgerService

	mu       sync.Mutex
	due      []*domain.Investment
	outcomes map[uuid.UUID]ports.ChargeOutcome
	attempts map[uuid.UUID]int
	listErr  error
	process  func(id uuid.UUID)

	stale       []*domain.Investment
	staleBefore time.Time
	expired     map[uuid.UUID]bool

	active    atomic.Int32
	maxActive atomic.Int32
}

func newStubLedger(n int, outcome func(i int) ports.ChargeOutcome) *stubLedger {
	l := &stubLedger{
		outcomes: make(map[uuid.UUID]ports.ChargeOutcome),
		attempts: make(map[uuid.UUID]int),
	}
	for i := 0; i < n; i++ {
		inv := &domain.Investment{ID: uuid.New()}
		l.due = append(l.due, inv)
		l.outcomes[inv.ID] = outcome(i)
	}
	return l
}

func (l *stubLedger) ListDueRecurring(_ context.Context, _ time.Time, limit int32) ([]*domain.Investment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	out := append([]*domain.Investment(nil), l.due...)
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (l *stubLedger) ProcessDueCharge(_ context.Context, id uuid.UUID, _ time.Time) (ports.ChargeOutcome, error) {
	n := l.active.Add(1)
	defer l.active.Add(-1)
	for {
		prev := l.maxActive.Load()
		if n <= prev || l.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}
	if l.process != nil {
		l.process(id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[id]++
	outcome := l.outcomes[id]
	if outcome == ports.ChargeOutcomeSucceeded {
		for i, inv := range l.due {
			if inv.ID == id {
				l.due = append(l.due[:i], l.due[i+1:]...)
				break
			}
		}
	}
	if outcome == ports.ChargeOutcomeFailed {
		return outcome, errors.New("gateway unavailable")
	}
	return outcome, nil
}

func (l *stubLedger) ListAwaitingSettlement(_ context.Context, before time.Time, limit int32) ([]*domain.Investment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.staleBefore = before
	out := append([]*domain.Investment(nil), l.stale...)
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (l *stubLedger) ExpireStale(_ context.Context, id uuid.UUID, _ time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expired, ok := l.expired[id]
	if !ok {
		return false, errors.New("investment not found")
	}
	return expired, nil
}

func newScheduler(l *stubLedger, cfg Config) *Scheduler {
	return New(l, cfg, resilience.TestTimeoutConfig(), timeutil.NewFixedClock(testNow), zap.NewNop())
}

func TestScheduler_SweepTalliesOutcomes(t *testing.T) {
	outcomes := []ports.ChargeOutcome{
		ports.ChargeOutcomeSucceeded,
		ports.ChargeOutcomePending,
		ports.ChargeOutcomeFailed,
		ports.ChargeOutcomeDefaulted,
		ports.ChargeOutcomeCancelled,
	}
	l := newStubLedger(25, func(i int) ports.ChargeOutcome { return outcomes[i%len(outcomes)] })
	s := newScheduler(l, Config{Workers: 3, BatchSize: 4})

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 25, result.Processed)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 5, result.Pending)
	assert.Equal(t, 5, result.Failed)
	assert.Equal(t, 5, result.Defaulted)
	assert.Equal(t, 5, result.Cancelled)
	assert.Len(t, result.Errors, 5)
	for id, n := range l.attempts {
		assert.Equal(t, 1, n, "investment %s charged more than once in a sweep", id)
	}
}

func TestScheduler_SweepBoundsConcurrency(t *testing.T) {
	l := newStubLedger(20, func(int) ports.ChargeOutcome { return ports.ChargeOutcomeSucceeded })
	l.process = func(uuid.UUID) { time.Sleep(5 * time.Millisecond) }
	s := newScheduler(l, Config{Workers: 2, BatchSize: 20})

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, result.Succeeded)
	assert.LessOrEqual(t, l.maxActive.Load(), int32(2))
}

func TestScheduler_SweepsDoNotOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	l := newStubLedger(1, func(int) ports.ChargeOutcome { return ports.ChargeOutcomeSucceeded })
	l.process = func(uuid.UUID) {
		once.Do(func() { close(started) })
		<-release
	}
	s := newScheduler(l, Config{Workers: 1})

	done := make(chan error, 1)
	go func() {
		_, err := s.Sweep(context.Background())
		done <- err
	}()
	<-started

	_, err := s.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(release)
	require.NoError(t, <-done)

	_, err = s.Sweep(context.Background())
	assert.NoError(t, err)
}

func TestScheduler_ListErrorAbortsSweep(t *testing.T) {
	l := newStubLedger(0, nil)
	l.listErr = domain.ErrPersistence
	s := newScheduler(l, Config{})

	_, err := s.Sweep(context.Background())
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestScheduler_StartAndStop(t *testing.T) {
	l := newStubLedger(3, func(int) ports.ChargeOutcome { return ports.ChargeOutcomeSucceeded })
	s := newScheduler(l, Config{Interval: 5 * time.Millisecond, Workers: 2})

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.due) == 0
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := newScheduler(newStubLedger(0, nil), Config{})
	assert.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_SweepExpiresStalePayments(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expired     []bool
		wantExpired int
		wantBefore  time.Time
	}{
		{
			name:        "default hold TTL",
			expired:     []bool{true, true, false},
			wantExpired: 2,
			wantBefore:  testNow.Add(-DefaultHoldTTL),
		},
		{
			name:        "configured hold TTL",
			cfg:         Config{HoldTTL: time.Hour},
			expired:     []bool{true},
			wantExpired: 1,
			wantBefore:  testNow.Add(-time.Hour),
		},
		{
			name:        "batch bounds one sweep",
			cfg:         Config{BatchSize: 2},
			expired:     []bool{true, true, true},
			wantExpired: 2,
			wantBefore:  testNow.Add(-DefaultHoldTTL),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newStubLedger(1, func(int) ports.ChargeOutcome { return ports.ChargeOutcomeSucceeded })
			l.expired = make(map[uuid.UUID]bool)
			for _, expired := range tt.expired {
				inv := &domain.Investment{ID: uuid.New()}
				l.stale = append(l.stale, inv)
				l.expired[inv.ID] = expired
			}
			s := newScheduler(l, tt.cfg)

			result, err := s.Sweep(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, result.Succeeded)
			assert.Equal(t, tt.wantExpired, result.Expired)
			assert.Empty(t, result.Errors)
			assert.True(t, tt.wantBefore.Equal(l.staleBefore))
		})
	}
}

func TestScheduler_ExpiryErrorsAreTallied(t *testing.T) {
	l := newStubLedger(0, nil)
	l.expired = make(map[uuid.UUID]bool)
	known := &domain.Investment{ID: uuid.New()}
	l.expired[known.ID] = true
	l.stale = []*domain.Investment{known, {ID: uuid.New()}}
	s := newScheduler(l, Config{})

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Len(t, result.Errors, 1)
}
