package controller

import (
	"encoding/json"
	"net/http"

	"github.com/dbakare/gromart/internal/infrastructure/observability"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// WebhookController receives provider payment notifications. It does no
// processing of its own: the payload is normalized onto the queue and the
// provider gets a fast acknowledgment. Duplicate deliveries are fine; the
// processor is idempotent.
type WebhookController struct {
	scheduler jobs.Scheduler
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewWebhookController creates a new WebhookController.
func NewWebhookController(scheduler jobs.Scheduler, metrics *observability.Metrics, logger zerolog.Logger) *WebhookController {
	return &WebhookController{scheduler: scheduler, metrics: metrics, logger: logger}
}

// Receive handles POST /webhooks/payments/{provider}
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		// A body we cannot parse will never become parseable on redelivery.
		h.logger.Warn().Err(err).Str("provider", provider).Msg("discarding malformed webhook body")
		h.metrics.WebhooksTotal.WithLabelValues(provider, "malformed").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	payload := map[string]any{
		"provider":       provider,
		"provider_tx_id": extractString(raw, "transaction_id", "id", "tx_id"),
		"reference":      extractString(raw, "reference", "tx_ref", "payment_reference"),
		"status":         extractString(raw, "status", "event"),
		"order_id":       extractString(raw, "order_id"),
		"order_number":   extractString(raw, "order_number"),
		"raw":            raw,
	}

	err := h.scheduler.Enqueue(r.Context(), jobs.Job{
		Type:    jobs.TypeWebhook,
		Payload: payload,
	})
	if err != nil {
		// Let the provider redeliver rather than lose the notification.
		h.logger.Error().Err(err).Str("provider", provider).Msg("failed to enqueue webhook")
		h.metrics.WebhooksTotal.WithLabelValues(provider, "enqueue_failed").Inc()
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "temporarily unavailable", Code: "queue_error"})
		return
	}

	h.metrics.WebhooksTotal.WithLabelValues(provider, "accepted").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// extractString finds the first present key at the top level or under "data".
func extractString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k].(string); ok && v != "" {
			return v
		}
	}
	if data, ok := raw["data"].(map[string]any); ok {
		for _, k := range keys {
			if v, ok := data[k].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}
