package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// PingFunc probes one dependency
type PingFunc func(ctx context.Context) error

// HealthChecker runs dependency probes (Postgres, Redis, Kafka)
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]PingFunc
	// critical dependencies mark the service unhealthy when they fail
	critical map[string]bool
}

// NewHealthChecker creates an empty HealthChecker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:   make(map[string]PingFunc),
		critical: make(map[string]bool),
	}
}

// AddCheck registers a probe. Non-critical failures report "degraded".
func (h *HealthChecker) AddCheck(name string, critical bool, fn PingFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
	h.critical[name] = critical
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	overall := "healthy"

	for _, name := range names {
		h.mu.RLock()
		fn, critical := h.checks[name], h.critical[name]
		h.mu.RUnlock()

		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := fn(probeCtx)
		cancel()

		if err == nil {
			checks[name] = "healthy"
			continue
		}
		checks[name] = "unhealthy: " + err.Error()
		if critical {
			overall = "unhealthy"
		} else if overall == "healthy" {
			overall = "degraded"
		}
	}

	return HealthStatus{
		Status:    overall,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(status)
	}
}
