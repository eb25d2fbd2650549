package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/utils"

	"github.com/stripe/stripe-go/v81"
)

// InstallmentService reconciles paid installments with their owning
// registration's aggregate state.
type InstallmentService struct {
	store     *store.Store
	locks     RegistrationLocker
	ledger    *LedgerService
	inventory *InventoryService
	notifier  Notifier
}

func NewInstallmentService(st *store.Store, locks RegistrationLocker, ledger *LedgerService, inventory *InventoryService, notifier Notifier) *InstallmentService {
	return &InstallmentService{
		store:     st,
		locks:     locks,
		ledger:    ledger,
		inventory: inventory,
		notifier:  notifier,
	}
}

// ProcessPaidInstallment applies one successful installment payment:
// mark the installment paid, recompute the registration's aggregate state
// from all sibling installments, and on the very first paid installment
// assign the ticket code and record the sale. Duplicate deliveries stop at
// the conditional MarkPaid and change nothing.
func (s *InstallmentService) ProcessPaidInstallment(ctx context.Context, pi *stripe.PaymentIntent, installmentID string) error {
	inst, err := s.store.Installments.Get(ctx, installmentID)
	if errors.Is(err, store.ErrNotFound) {
		// The event may belong to a flow this system does not track;
		// keep the audit row, acknowledge, move on.
		slog.Warn("installment not found for paid payment intent",
			"installment_id", installmentID,
			"payment_intent", pi.ID)
		s.ledger.Record(ctx, &models.LedgerEntry{
			EventType:      "payment_intent.succeeded",
			StripeObjectID: pi.ID,
			Amount:         amountFromCents(pi.Amount),
			Status:         models.TransactionSucceeded,
			Metadata: marshalMetadata(map[string]any{
				"installment_id": installmentID,
				"correlation":    "miss",
			}),
		})
		return nil
	}
	if err != nil {
		return err
	}

	release := s.locks.Acquire(ctx, inst.RegistrationID)
	defer release()

	applied, err := s.store.Installments.MarkPaid(ctx, installmentID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !applied {
		slog.Info("installment already paid, skipping",
			"installment_id", installmentID,
			"payment_intent", pi.ID)
		return nil
	}
	monitoring.TrackInstallmentPaid()

	s.ledger.Record(ctx, &models.LedgerEntry{
		EventType:      "payment_intent.succeeded",
		StripeObjectID: pi.ID,
		Amount:         inst.Amount,
		Status:         models.TransactionSucceeded,
		Metadata: marshalMetadata(map[string]any{
			"payment_intent":     pi.ID,
			"installment_id":     installmentID,
			"installment_number": inst.InstallmentNumber,
			"total_installments": inst.TotalInstallments,
		}),
		RegistrationID: inst.RegistrationID,
	})

	siblings, err := s.store.Installments.ListByRegistration(ctx, inst.RegistrationID)
	if err != nil {
		return err
	}

	counts := models.CountInstallments(siblings)
	state := models.DeriveRegistrationState(counts.Paid, counts.Overdue, counts.Pending, counts.Total)

	slog.Info("installment plan progress",
		"registration_id", inst.RegistrationID,
		"paid", counts.Paid,
		"overdue", counts.Overdue,
		"pending", counts.Pending,
		"total", counts.Total,
		"status", state.Status)

	if err := s.store.Registrations.SetAggregateState(ctx, inst.RegistrationID, state); err != nil {
		return err
	}

	// First installment of the plan and first one ever paid: the
	// registration earns its ticket code and the sale hits inventory.
	// Later installments must never touch inventory again.
	if inst.InstallmentNumber == 1 && counts.Paid == 1 {
		if err := s.grantTicket(ctx, inst.RegistrationID, pi.ID); err != nil {
			return err
		}
	}

	s.notifier.InstallmentPaid(inst.RegistrationID, inst.InstallmentNumber, counts.Paid, counts.Total)
	if state.Status == models.RegistrationConfirmed {
		reg, err := s.store.Registrations.Get(ctx, inst.RegistrationID)
		if err == nil {
			s.notifier.RegistrationConfirmed(reg.ID, reg.TicketCode)
		}
	}

	return nil
}

func (s *InstallmentService) grantTicket(ctx context.Context, registrationID, paymentIntentID string) error {
	code, err := utils.TicketCode()
	if err != nil {
		return err
	}

	assigned, err := s.store.Registrations.AssignTicketCode(ctx, registrationID, code, paymentIntentID)
	if err != nil {
		return err
	}
	if !assigned {
		// A concurrent delivery won the assignment; it also owns the
		// inventory increment.
		slog.Info("ticket code already assigned", "registration_id", registrationID)
		return nil
	}

	slog.Info("ticket code assigned", "registration_id", registrationID, "ticket_code", code)

	reg, err := s.store.Registrations.Get(ctx, registrationID)
	if err != nil {
		return err
	}
	s.inventory.RecordSale(ctx, reg.TicketTypeID, reg.Quantity)
	return nil
}
