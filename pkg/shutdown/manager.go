package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "funding_shutdown_duration_seconds",
		Help:    "Total time taken to shutdown gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	componentShutdownDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "funding_component_shutdown_duration_seconds",
		Help:    "Time taken to shutdown individual components",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 20, 25, 30},
	}, []string{"component"})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// ShutdownFunc represents a function that shuts down a component
type ShutdownFunc func(context.Context) error

// Component represents a registered shutdown component
type Component struct {
	Name         string
	ShutdownFunc ShutdownFunc
}

// Manager coordinates graceful shutdown of all service components.
// Components shut down one at a time in REVERSE registration order (LIFO):
// register the database first and the scheduler last so billing stops
// before its connections go away.
type Manager struct {
	logger     *zap.Logger
	components []Component
	mu         sync.Mutex
	timeout    time.Duration
	once       sync.Once
}

// NewManager creates a new shutdown manager
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{
		logger:     logger,
		components: make([]Component, 0),
		timeout:    timeout,
	}
}

// Register adds a shutdown function to be called during graceful shutdown
func (sm *Manager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.components = append(sm.components, Component{Name: name, ShutdownFunc: fn})

	sm.logger.Debug("Registered shutdown component",
		zap.String("component", name),
		zap.Int("registration_order", len(sm.components)),
	)
}

// WaitForShutdown blocks until SIGINT/SIGTERM or ctx is done, then shuts down
func (sm *Manager) WaitForShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		sm.logger.Info("Received shutdown signal - initiating graceful shutdown",
			zap.String("signal", sig.String()),
			zap.Duration("timeout", sm.timeout),
		)
	case <-ctx.Done():
		sm.logger.Info("Context cancelled - initiating graceful shutdown")
	}

	sm.Shutdown()
}

// Shutdown runs every registered component once, newest first.
// Safe to call more than once; later calls are no-ops.
func (sm *Manager) Shutdown() map[string]error {
	var errs map[string]error
	sm.once.Do(func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		defer cancel()

		errs = sm.shutdownComponents(ctx)

		elapsed := time.Since(start)
		shutdownDuration.Observe(elapsed.Seconds())
		if len(errs) > 0 {
			sm.logger.Error("Graceful shutdown completed with errors",
				zap.Int("error_count", len(errs)),
				zap.Duration("elapsed", elapsed),
			)
			return
		}
		sm.logger.Info("Graceful shutdown completed successfully", zap.Duration("elapsed", elapsed))
	})
	return errs
}

func (sm *Manager) shutdownComponents(ctx context.Context) map[string]error {
	sm.mu.Lock()
	components := make([]Component, len(sm.components))
	copy(components, sm.components)
	sm.mu.Unlock()

	errs := make(map[string]error)

	for i := len(components) - 1; i >= 0; i-- {
		comp := components[i]

		if ctx.Err() != nil {
			errs[comp.Name] = fmt.Errorf("skipped: %w", ctx.Err())
			shutdownErrors.WithLabelValues(comp.Name).Inc()
			continue
		}

		start := time.Now()
		if err := comp.ShutdownFunc(ctx); err != nil {
			errs[comp.Name] = err
			shutdownErrors.WithLabelValues(comp.Name).Inc()
			sm.logger.Error("Component shutdown failed",
				zap.String("component", comp.Name),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(start)),
			)
		} else {
			sm.logger.Info("Component shut down",
				zap.String("component", comp.Name),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
		componentShutdownDuration.WithLabelValues(comp.Name).Observe(time.Since(start).Seconds())
	}

	return errs
}

// RegisterHTTPServer is a convenience method for registering HTTP servers
func (sm *Manager) RegisterHTTPServer(name string, server interface{ Shutdown(context.Context) error }) {
	sm.Register(name, server.Shutdown)
}

// RegisterCloser is a convenience method for registering components with Close() method
func (sm *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	sm.Register(name, func(ctx context.Context) error {
		return closer.Close()
	})
}

// RegisterNoErr is a convenience method for shutdown functions that don't return errors
func (sm *Manager) RegisterNoErr(name string, fn func()) {
	sm.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}
