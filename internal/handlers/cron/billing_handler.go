package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/services/funding"
	"github.com/kevin07696/funding-service/internal/services/ports"
	"github.com/kevin07696/funding-service/internal/services/scheduler"
	"github.com/kevin07696/funding-service/pkg/timeutil"
	"go.uber.org/zap"
)

// Sweeper runs one recurring billing sweep
type Sweeper interface {
	Sweep(ctx context.Context) (*scheduler.SweepResult, error)
}

// Auditor recomputes a campaign's counters from its reservations
type Auditor interface {
	Audit(ctx context.Context, campaignID uuid.UUID) (*funding.AuditReport, error)
}

// BillingHandler exposes operator endpoints: manual sweeps, dead-letter
// reconciliation and funding audits. Every route except health requires the cron secret.
type BillingHandler struct {
	sweeper    Sweeper
	reconciler ports.ReconcilerService
	auditor    Auditor
	clock      timeutil.Clock
	logger     *zap.Logger
	cronSecret string
}

// NewBillingHandler creates a new billing cron handler
func NewBillingHandler(
	sweeper Sweeper,
	reconciler ports.ReconcilerService,
	auditor Auditor,
	clock timeutil.Clock,
	logger *zap.Logger,
	cronSecret string,
) *BillingHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &BillingHandler{
		sweeper:    sweeper,
		reconciler: reconciler,
		auditor:    auditor,
		clock:      clock,
		logger:     logger,
		cronSecret: cronSecret,
	}
}

// Routes mounts the cron endpoints under /cron
func (h *BillingHandler) Routes(r chi.Router) {
	r.Route("/cron", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSecret)
			r.Post("/process-billing", h.ProcessBilling)
			r.Get("/dead-letters", h.ListDeadLetters)
			r.Post("/dead-letters/{id}/replay", h.ReplayDeadLetter)
			r.Get("/campaigns/{id}/audit", h.AuditCampaign)
		})
	})
}

// ProcessBillingResponse represents the response from a billing sweep
type ProcessBillingResponse struct {
	Success bool `json:"success"`
	*scheduler.SweepResult
	ProcessedAt string `json:"processed_at"`
}

// ProcessBilling handles POST /cron/process-billing.
// The sweep outlives the caller's connection so a dropped scheduler request
// cannot abort charges mid-flight.
func (h *BillingHandler) ProcessBilling(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Billing cron job triggered",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	result, err := h.sweeper.Sweep(context.WithoutCancel(r.Context()))
	if errors.Is(err, scheduler.ErrSweepInProgress) {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil && result == nil {
		h.logger.Error("Billing sweep failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "billing sweep failed")
		return
	}

	resp := ProcessBillingResponse{
		Success:     err == nil && len(result.Errors) == 0,
		SweepResult: result,
		ProcessedAt: h.clock.Now().Format(time.RFC3339),
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusPartialContent
	}
	h.respond(w, status, resp)
}

type deadLetterView struct {
	ID          uuid.UUID `json:"id"`
	Provider    string    `json:"provider"`
	EventID     string    `json:"event_id"`
	ExternalRef string    `json:"external_ref"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

// ListDeadLetters handles GET /cron/dead-letters?limit=N
func (h *BillingHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = int32(parsed)
	}

	letters, err := h.reconciler.ListDeadLetters(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list dead letters", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	views := make([]deadLetterView, 0, len(letters))
	for _, l := range letters {
		views = append(views, deadLetterView{
			ID:          l.ID,
			Provider:    l.Provider,
			EventID:     l.Event.ID,
			ExternalRef: l.Event.ExternalRef,
			Type:        string(l.Event.Type),
			Status:      string(l.Event.Status),
			Reason:      string(l.Reason),
			Detail:      l.Detail,
			CreatedAt:   l.CreatedAt.Format(time.RFC3339),
		})
	}
	h.respond(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"dead_letters": views,
	})
}

// ReplayDeadLetter handles POST /cron/dead-letters/{id}/replay
func (h *BillingHandler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid dead letter id")
		return
	}

	outcome, err := h.reconciler.Replay(r.Context(), id)
	switch {
	case err == nil:
		h.logger.Info("Dead letter replayed",
			zap.String("dead_letter_id", id.String()),
			zap.String("outcome", string(outcome)),
		)
		h.respond(w, http.StatusOK, map[string]interface{}{"success": true, "outcome": outcome})
	case errors.Is(err, domain.ErrDeadLetterNotFound):
		h.respondError(w, http.StatusNotFound, "dead letter not found")
	case errors.Is(err, domain.ErrReconciliationConflict):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Dead letter replay failed",
			zap.String("dead_letter_id", id.String()),
			zap.Error(err),
		)
		h.respondError(w, http.StatusInternalServerError, "replay failed")
	}
}

// AuditCampaign handles GET /cron/campaigns/{id}/audit
func (h *BillingHandler) AuditCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	report, err := h.auditor.Audit(r.Context(), id)
	if errors.Is(err, domain.ErrCampaignNotFound) {
		h.respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if err != nil {
		h.logger.Error("Campaign audit failed", zap.String("campaign_id", id.String()), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "audit failed")
		return
	}

	byStatus := make(map[string]int64, len(report.ByStatus))
	for status, amount := range report.ByStatus {
		byStatus[string(status)] = amount
	}
	h.respond(w, http.StatusOK, map[string]interface{}{
		"success":            true,
		"campaign_id":        report.CampaignID,
		"committed_amount":   report.CommittedAmount,
		"pending_amount":     report.PendingAmount,
		"expected_committed": report.ExpectedCommitted,
		"expected_pending":   report.ExpectedPending,
		"by_status":          byStatus,
		"drift":              report.HasDrift(),
	})
}

// HealthCheck handles GET /cron/health for monitoring
func (h *BillingHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   h.clock.Now().Format(time.RFC3339),
	})
}

// requireSecret accepts the cron secret in X-Cron-Secret or as a bearer token
func (h *BillingHandler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authenticateRequest(r) {
			h.logger.Warn("Unauthorized cron request",
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("path", r.URL.Path),
			)
			h.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *BillingHandler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	if secretEqual(r.Header.Get("X-Cron-Secret"), h.cronSecret) {
		return true
	}
	return secretEqual(r.Header.Get("Authorization"), "Bearer "+h.cronSecret)
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *BillingHandler) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *BillingHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
