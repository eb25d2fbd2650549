package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"ticket-marketplace/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Stripe caps webhook payloads well below this.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhooks *services.WebhookService
}

func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// HandleStripeWebhook verifies and routes one provider event. A bad
// signature is the caller's fault (400); a processing failure is ours (500)
// so the provider retries delivery.
func (h *WebhookHandler) HandleStripeWebhook(e *core.RequestEvent) error {
	payload, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return apis.NewBadRequestError("Failed to read request body", err)
	}

	signature := e.Request.Header.Get("Stripe-Signature")
	result, err := h.webhooks.Process(e.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSignature) {
			return apis.NewBadRequestError("Invalid webhook signature", nil)
		}
		slog.Error("webhook processing failed", "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Webhook processing failed", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"received":   true,
		"event_id":   result.EventID,
		"event_type": result.EventType,
		"handled":    result.Handled,
	})
}
