package services

import (
	"context"
	"log/slog"
	"strings"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/utils"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
)

// PaymentService reconciles non-installment payment events: successes,
// failures and refunds.
type PaymentService struct {
	store     *store.Store
	locks     RegistrationLocker
	ledger    *LedgerService
	inventory *InventoryService
	notifier  Notifier
}

func NewPaymentService(st *store.Store, locks RegistrationLocker, ledger *LedgerService, inventory *InventoryService, notifier Notifier) *PaymentService {
	return &PaymentService{
		store:     st,
		locks:     locks,
		ledger:    ledger,
		inventory: inventory,
		notifier:  notifier,
	}
}

// ProcessPaymentSucceeded confirms every registration correlated by the
// payment intent's registration_ids metadata. A failure on one registration
// does not abort the siblings; the event is acknowledged either way and the
// stragglers are picked up on the provider's next delivery.
func (s *PaymentService) ProcessPaymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) error {
	ids := SplitRegistrationIDs(pi.Metadata["registration_ids"])
	if len(ids) == 0 {
		slog.Warn("no registration_ids or installment_id in payment intent metadata",
			"payment_intent", pi.ID)
		s.ledger.Record(ctx, &models.LedgerEntry{
			EventType:      "payment_intent.succeeded",
			StripeObjectID: pi.ID,
			Amount:         amountFromCents(pi.Amount),
			Status:         models.TransactionSucceeded,
			Metadata:       marshalMetadata(map[string]any{"correlation": "miss"}),
		})
		return nil
	}

	for _, id := range ids {
		if err := s.confirmRegistration(ctx, pi, id); err != nil {
			slog.Error("failed to process registration",
				"registration_id", id,
				"payment_intent", pi.ID,
				"error", err)
		}
	}
	return nil
}

func (s *PaymentService) confirmRegistration(ctx context.Context, pi *stripe.PaymentIntent, registrationID string) error {
	release := s.locks.Acquire(ctx, registrationID)
	defer release()

	code, err := utils.TicketCode()
	if err != nil {
		return err
	}

	applied, err := s.store.Registrations.ConfirmPayment(ctx, registrationID, pi.ID, code)
	if err != nil {
		return err
	}
	if !applied {
		// Duplicate delivery: the terminal effect is already present,
		// so inventory must not move again.
		slog.Info("registration already processed, skipping",
			"registration_id", registrationID,
			"payment_intent", pi.ID)
		return nil
	}
	monitoring.TrackRegistrationConfirmed()

	reg, err := s.store.Registrations.Get(ctx, registrationID)
	if err != nil {
		return err
	}

	slog.Info("registration confirmed",
		"registration_id", registrationID,
		"ticket_code", reg.TicketCode)

	s.ledger.Record(ctx, &models.LedgerEntry{
		EventType:      "payment_intent.succeeded",
		StripeObjectID: pi.ID,
		Amount:         reg.TotalAmount,
		Status:         models.TransactionSucceeded,
		Metadata: marshalMetadata(map[string]any{
			"payment_intent":    pi.ID,
			"registration_id":   registrationID,
			"ticket_code":       reg.TicketCode,
			"participant_email": reg.ParticipantEmail,
		}),
		RegistrationID: registrationID,
	})

	s.inventory.RecordSale(ctx, reg.TicketTypeID, reg.Quantity)
	s.notifier.RegistrationConfirmed(registrationID, reg.TicketCode)
	return nil
}

// ProcessPaymentFailed records the failure and pushes the correlated
// registrations back to pending. Failure means "try again", not "abandon":
// the buyer can retry, so nothing is cancelled.
func (s *PaymentService) ProcessPaymentFailed(ctx context.Context, pi *stripe.PaymentIntent) error {
	ids := SplitRegistrationIDs(pi.Metadata["registration_ids"])

	metadata := map[string]any{"payment_intent": pi.ID}
	if pi.LastPaymentError != nil {
		metadata["error"] = pi.LastPaymentError.Msg
	}

	firstID := ""
	if len(ids) > 0 {
		firstID = ids[0]
	}
	s.ledger.Record(ctx, &models.LedgerEntry{
		EventType:      "payment_intent.payment_failed",
		StripeObjectID: pi.ID,
		Amount:         amountFromCents(pi.Amount),
		Status:         models.TransactionFailed,
		Metadata:       marshalMetadata(metadata),
		RegistrationID: firstID,
	})

	for _, id := range ids {
		if err := s.store.Registrations.MarkPaymentFailed(ctx, id); err != nil {
			slog.Error("failed to mark registration payment failed",
				"registration_id", id,
				"error", err)
			continue
		}
		slog.Info("registration reset to pending after payment failure", "registration_id", id)
	}
	return nil
}

// ProcessChargeRefunded resolves registrations by the charge's payment intent
// reference (refunds are provider-initiated, so there is no metadata to
// correlate on) and cancels all of them. One ledger entry is written per
// refund event, not per registration.
func (s *PaymentService) ProcessChargeRefunded(ctx context.Context, charge *stripe.Charge) error {
	paymentIntentID := ""
	if charge.PaymentIntent != nil {
		paymentIntentID = charge.PaymentIntent.ID
	}
	if paymentIntentID == "" {
		slog.Warn("refunded charge has no payment intent", "charge", charge.ID)
		return nil
	}

	registrations, err := s.store.Registrations.FindByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return err
	}

	refundID := ""
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
		refundID = charge.Refunds.Data[0].ID
	}

	firstID := ""
	if len(registrations) > 0 {
		firstID = registrations[0].ID
	}
	s.ledger.Record(ctx, &models.LedgerEntry{
		EventType:      "charge.refunded",
		StripeObjectID: charge.ID,
		Amount:         amountFromCents(charge.AmountRefunded),
		Status:         models.TransactionRefunded,
		Metadata: marshalMetadata(map[string]any{
			"payment_intent": paymentIntentID,
			"refund_id":      refundID,
		}),
		RegistrationID: firstID,
	})

	if len(registrations) == 0 {
		slog.Warn("no registrations matched refunded payment intent",
			"payment_intent", paymentIntentID)
		return nil
	}

	for _, reg := range registrations {
		if err := s.store.Registrations.MarkRefunded(ctx, reg.ID, refundID); err != nil {
			slog.Error("failed to mark registration refunded",
				"registration_id", reg.ID,
				"error", err)
			continue
		}
		slog.Info("registration refunded", "registration_id", reg.ID)
		s.notifier.RegistrationRefunded(reg.ID)
	}
	return nil
}

// SplitRegistrationIDs parses the comma-delimited correlation list carried in
// payment intent metadata.
func SplitRegistrationIDs(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func amountFromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}
