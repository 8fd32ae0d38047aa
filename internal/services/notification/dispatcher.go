// Package notification fans terminal-state events out to the external
// notifier without blocking the ledger.
package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/kevin07696/funding-service/pkg/observability"
	"github.com/kevin07696/funding-service/pkg/resilience"
	"go.uber.org/zap"
)

// ErrClosed is returned by Notify after Close
var ErrClosed = errors.New("notification dispatcher closed")

// Config sizes the dispatcher
type Config struct {
	QueueSize int
	Workers   int
}

// Dispatcher is a fire-and-forget ports.Notifier. Notify never blocks: when
// the queue is full the notification is dropped and logged. Delivery
// failures are logged only.
type Dispatcher struct {
	next     ports.Notifier
	queue    chan domain.Notification
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers delivery goroutines in front of next
func NewDispatcher(next ports.Notifier, cfg Config, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}

	d := &Dispatcher{
		next:     next,
		queue:    make(chan domain.Notification, cfg.QueueSize),
		timeouts: timeouts,
		logger:   logger,
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Notify enqueues n for delivery
func (d *Dispatcher) Notify(_ context.Context, n domain.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- n:
		return nil
	default:
		observability.RecordNotification(string(n.Type), "dropped")
		d.logger.Warn("Notification queue full, dropping notification",
			zap.String("event_type", string(n.Type)),
			zap.String("investment_id", n.InvestmentID.String()),
		)
		return nil
	}
}

// Close stops accepting notifications and waits for queued ones to be delivered
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n domain.Notification) {
	ctx, cancel := d.timeouts.NotificationContext(context.Background())
	defer cancel()

	if err := d.next.Notify(ctx, n); err != nil {
		observability.RecordNotification(string(n.Type), "failed")
		d.logger.Warn("Notification delivery failed",
			zap.String("event_type", string(n.Type)),
			zap.String("investment_id", n.InvestmentID.String()),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err),
		)
		return
	}
	observability.RecordNotification(string(n.Type), "delivered")
}
