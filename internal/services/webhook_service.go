package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"ticket-marketplace/monitoring"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// ErrInvalidSignature marks a webhook payload that failed signature
// verification (forged, tampered, or outside the timestamp tolerance). It is
// a terminal client error: the caller answers 4xx and the provider does not
// redeliver the same malformed request.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookService verifies inbound provider events and routes them to the
// matching reconciler. Unknown event types are acknowledged and ignored so
// the provider is never penalized for events this system does not model.
type WebhookService struct {
	secret       string
	payments     *PaymentService
	installments *InstallmentService
	accounts     *AccountService
}

func NewWebhookService(webhookSecret string, payments *PaymentService, installments *InstallmentService, accounts *AccountService) *WebhookService {
	return &WebhookService{
		secret:       webhookSecret,
		payments:     payments,
		installments: installments,
		accounts:     accounts,
	}
}

// WebhookResult describes how an event was handled.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Handled   bool   `json:"handled"`
}

// Process verifies the payload signature and dispatches the event. An error
// return is either ErrInvalidSignature or an internal processing failure;
// both should surface as non-2xx so the provider retries. Every
// business-level condition (duplicate delivery, unknown correlation, unknown
// event type) resolves to a nil error and a 2xx acknowledgment.
func (s *WebhookService) Process(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		monitoring.TrackWebhookEvent("unverified", monitoring.OutcomeError)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	slog.Info("processing webhook event", "event_id", event.ID, "event_type", eventType)

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: eventType,
		Handled:   true,
	}

	switch eventType {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err = json.Unmarshal(event.Data.Raw, &pi); err != nil {
			err = fmt.Errorf("unmarshal payment intent: %w", err)
			break
		}
		if installmentID := pi.Metadata["installment_id"]; installmentID != "" {
			err = s.installments.ProcessPaidInstallment(ctx, &pi, installmentID)
		} else {
			err = s.payments.ProcessPaymentSucceeded(ctx, &pi)
		}

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err = json.Unmarshal(event.Data.Raw, &pi); err != nil {
			err = fmt.Errorf("unmarshal payment intent: %w", err)
			break
		}
		err = s.payments.ProcessPaymentFailed(ctx, &pi)

	case "checkout.session.completed":
		// Early-confirmation hook only; the terminal mutations happen
		// on payment_intent.succeeded.
		slog.Info("checkout session completed", "event_id", event.ID)

	case "charge.refunded":
		var charge stripe.Charge
		if err = json.Unmarshal(event.Data.Raw, &charge); err != nil {
			err = fmt.Errorf("unmarshal charge: %w", err)
			break
		}
		err = s.payments.ProcessChargeRefunded(ctx, &charge)

	case "account.updated":
		var account stripe.Account
		if err = json.Unmarshal(event.Data.Raw, &account); err != nil {
			err = fmt.Errorf("unmarshal account: %w", err)
			break
		}
		err = s.accounts.ProcessAccountUpdated(ctx, &account)

	default:
		slog.Info("ignoring unhandled webhook event type", "event_type", eventType)
		result.Handled = false
		monitoring.TrackWebhookEvent(eventType, monitoring.OutcomeIgnored)
		return result, nil
	}

	if err != nil {
		monitoring.TrackWebhookEvent(eventType, monitoring.OutcomeError)
		return result, fmt.Errorf("process %s event %s: %w", eventType, event.ID, err)
	}

	monitoring.TrackWebhookEvent(eventType, monitoring.OutcomeProcessed)
	return result, nil
}
