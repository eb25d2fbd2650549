package store

import (
	"context"
	"errors"
	"time"

	"ticket-marketplace/models"
)

// ErrNotFound is returned when a record lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// AccountFlags carries a provider capability snapshot onto an organizer.
type AccountFlags struct {
	OnboardingComplete bool
	ChargesEnabled     bool
	PayoutsEnabled     bool
	// Activate flips a pending organizer to active. The store never
	// transitions an active organizer back.
	Activate bool
}

// RegistrationStore exposes the registration operations the reconcilers need.
// The mutating calls that guard idempotency are conditional updates: they
// report whether the write was applied, and a false result means the terminal
// effect was already present.
type RegistrationStore interface {
	Get(ctx context.Context, id string) (*models.Registration, error)
	Create(ctx context.Context, r *models.Registration) (string, error)

	// ConfirmPayment marks a registration paid and confirmed in a single
	// conditional write. It is a no-op when payment_status is already
	// "paid". The ticket code is only written if none was assigned yet.
	ConfirmPayment(ctx context.Context, id, paymentIntentID, ticketCode string) (bool, error)

	// AssignTicketCode writes the ticket code and payment reference, but
	// only when no code has been assigned before.
	AssignTicketCode(ctx context.Context, id, ticketCode, paymentIntentID string) (bool, error)

	SetAggregateState(ctx context.Context, id string, state models.AggregateState) error
	MarkPaymentFailed(ctx context.Context, id string) error
	MarkRefunded(ctx context.Context, id, refundID string) error
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) ([]*models.Registration, error)
}

type InstallmentStore interface {
	Get(ctx context.Context, id string) (*models.Installment, error)
	Create(ctx context.Context, inst *models.Installment) (string, error)

	// MarkPaid flips an installment to paid. Returns false when the
	// installment was already paid (duplicate delivery).
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)

	ListByRegistration(ctx context.Context, registrationID string) ([]*models.Installment, error)
	SetPaymentIntent(ctx context.Context, id, paymentIntentID, pixQRCode, pixCopyPaste string) error

	// SweepOverdue flips pending installments whose due date has passed to
	// overdue and returns the ids of the affected registrations.
	SweepOverdue(ctx context.Context, asOf time.Time) ([]string, error)
}

type TicketStore interface {
	Get(ctx context.Context, id string) (*models.TicketType, error)

	// IncrementSold atomically adds n to quantity_sold. The increment is
	// refused (false, nil) when it would exceed capacity.
	IncrementSold(ctx context.Context, id string, n int) (bool, error)
}

type OrganizerStore interface {
	FindByStripeAccount(ctx context.Context, accountID string) (*models.Organizer, error)
	UpdateAccountFlags(ctx context.Context, id string, flags AccountFlags) error
}

type LedgerStore interface {
	Append(ctx context.Context, entry *models.LedgerEntry) error
}

// Store groups the per-entity repositories behind one injection point.
type Store struct {
	Registrations RegistrationStore
	Installments  InstallmentStore
	Tickets       TicketStore
	Organizers    OrganizerStore
	Ledger        LedgerStore
}
