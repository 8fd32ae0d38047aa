package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kevin07696/funding-service/internal/domain"
	"github.com/kevin07696/funding-service/internal/services/ports"
	"go.uber.org/zap"
)

// maxBodyBytes caps the size of a provider event body
const maxBodyBytes = 64 << 10

// Handler receives asynchronous provider confirmations
type Handler struct {
	reconciler ports.ReconcilerService
	logger     *zap.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(reconciler ports.ReconcilerService, logger *zap.Logger) *Handler {
	return &Handler{reconciler: reconciler, logger: logger}
}

// Routes mounts the intake endpoint
func (h *Handler) Routes(r chi.Router) {
	r.Post("/webhooks/{provider}", h.Receive)
}

type receiveResponse struct {
	Outcome ports.ReceiveOutcome `json:"outcome"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Receive handles POST /webhooks/{provider}.
// Applied, duplicate and ignored events are acknowledged with 200 so the provider stops
// redelivering. Dead-lettered events get 202: they are stored and need no redelivery either.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var event domain.WebhookEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&event); err != nil {
		h.logger.Warn("Malformed webhook body",
			zap.String("provider", provider),
			zap.Error(err),
		)
		h.respond(w, http.StatusBadRequest, errorResponse{Error: "malformed event body"})
		return
	}
	if event.Signature == "" {
		event.Signature = r.Header.Get("X-Signature")
	}

	outcome, err := h.reconciler.Receive(r.Context(), provider, &event)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Webhook processing failed",
				zap.String("provider", provider),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
		h.respond(w, status, errorResponse{Error: http.StatusText(status), Code: string(domain.GetErrorCode(err))})
		return
	}

	status := http.StatusOK
	if outcome == ports.ReceiveOutcomeDeadLettered {
		status = http.StatusAccepted
	}
	h.respond(w, status, receiveResponse{Outcome: outcome})
}

// statusFor maps reconciler errors to HTTP status codes. Anything unclassified is a
// 500 so the provider retries delivery.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusUnauthorized
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
