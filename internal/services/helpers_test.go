package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"

	"github.com/stripe/stripe-go/v81"
)

// In-memory store fakes with the same conditional-update semantics as the
// real store: the mutators report whether the write was applied so the
// duplicate-delivery paths can be exercised without a database.

type fakeRegistrations struct {
	mu      sync.Mutex
	records map[string]*models.Registration

	confirmCalls int
	failErr      error
}

func newFakeRegistrations() *fakeRegistrations {
	return &fakeRegistrations{records: map[string]*models.Registration{}}
}

func (f *fakeRegistrations) Get(ctx context.Context, id string) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (f *fakeRegistrations) Create(ctx context.Context, r *models.Registration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == "" {
		r.ID = fmt.Sprintf("reg_%d", len(f.records)+1)
	}
	cp := *r
	f.records[r.ID] = &cp
	return r.ID, nil
}

func (f *fakeRegistrations) ConfirmPayment(ctx context.Context, id, paymentIntentID, ticketCode string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	if f.failErr != nil {
		return false, f.failErr
	}
	reg, ok := f.records[id]
	if !ok {
		return false, nil
	}
	if reg.PaymentStatus == models.PaymentPaid {
		return false, nil
	}
	reg.PaymentStatus = models.PaymentPaid
	reg.Status = models.RegistrationConfirmed
	reg.StripePaymentIntentID = paymentIntentID
	if reg.TicketCode == "" {
		reg.TicketCode = ticketCode
	}
	return true, nil
}

func (f *fakeRegistrations) AssignTicketCode(ctx context.Context, id, ticketCode, paymentIntentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.records[id]
	if !ok || reg.TicketCode != "" {
		return false, nil
	}
	reg.TicketCode = ticketCode
	reg.StripePaymentIntentID = paymentIntentID
	return true, nil
}

func (f *fakeRegistrations) SetAggregateState(ctx context.Context, id string, state models.AggregateState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.records[id]
	if !ok {
		return store.ErrNotFound
	}
	reg.Status = state.Status
	reg.PaymentStatus = state.PaymentStatus
	reg.InstallmentPlanStatus = state.PlanStatus
	reg.BlockedReason = state.BlockedReason
	return nil
}

func (f *fakeRegistrations) MarkPaymentFailed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.records[id]
	if !ok {
		return store.ErrNotFound
	}
	reg.Status = models.RegistrationPending
	reg.PaymentStatus = models.PaymentPending
	return nil
}

func (f *fakeRegistrations) MarkRefunded(ctx context.Context, id, refundID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.records[id]
	if !ok {
		return store.ErrNotFound
	}
	reg.PaymentStatus = models.PaymentRefunded
	reg.Status = models.RegistrationCancelled
	reg.StripeRefundID = refundID
	return nil
}

func (f *fakeRegistrations) FindByPaymentIntent(ctx context.Context, paymentIntentID string) ([]*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Registration
	for _, reg := range f.records {
		if reg.StripePaymentIntentID == paymentIntentID {
			cp := *reg
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeInstallments struct {
	mu      sync.Mutex
	records map[string]*models.Installment
}

func newFakeInstallments() *fakeInstallments {
	return &fakeInstallments{records: map[string]*models.Installment{}}
}

func (f *fakeInstallments) Get(ctx context.Context, id string) (*models.Installment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (f *fakeInstallments) Create(ctx context.Context, inst *models.Installment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst.ID == "" {
		inst.ID = fmt.Sprintf("inst_%d", len(f.records)+1)
	}
	cp := *inst
	f.records[inst.ID] = &cp
	return inst.ID, nil
}

func (f *fakeInstallments) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.records[id]
	if !ok {
		return false, nil
	}
	if inst.Status == models.InstallmentPaid {
		return false, nil
	}
	inst.Status = models.InstallmentPaid
	inst.PaidAt = paidAt.Format(time.RFC3339)
	return true, nil
}

func (f *fakeInstallments) ListByRegistration(ctx context.Context, registrationID string) ([]*models.Installment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Installment
	for _, inst := range f.records {
		if inst.RegistrationID == registrationID {
			cp := *inst
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeInstallments) SetPaymentIntent(ctx context.Context, id, paymentIntentID, pixQRCode, pixCopyPaste string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.records[id]
	if !ok {
		return store.ErrNotFound
	}
	inst.StripePaymentIntentID = paymentIntentID
	inst.PixQRCode = pixQRCode
	inst.PixCopyPaste = pixCopyPaste
	return nil
}

func (f *fakeInstallments) SweepOverdue(ctx context.Context, asOf time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	today := asOf.UTC().Format("2006-01-02")
	seen := map[string]bool{}
	var out []string
	for _, inst := range f.records {
		if inst.Status == models.InstallmentPending && inst.DueDate != "" && inst.DueDate < today {
			inst.Status = models.InstallmentOverdue
			if !seen[inst.RegistrationID] {
				seen[inst.RegistrationID] = true
				out = append(out, inst.RegistrationID)
			}
		}
	}
	return out, nil
}

type fakeTickets struct {
	mu      sync.Mutex
	records map[string]*models.TicketType

	incrementCalls int
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{records: map[string]*models.TicketType{}}
}

func (f *fakeTickets) Get(ctx context.Context, id string) (*models.TicketType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ticket
	return &cp, nil
}

func (f *fakeTickets) IncrementSold(ctx context.Context, id string, n int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrementCalls++
	ticket, ok := f.records[id]
	if !ok {
		return false, nil
	}
	if ticket.Quantity != 0 && ticket.QuantitySold+n > ticket.Quantity {
		return false, nil
	}
	ticket.QuantitySold += n
	return true, nil
}

type fakeOrganizers struct {
	mu      sync.Mutex
	records map[string]*models.Organizer
}

func newFakeOrganizers() *fakeOrganizers {
	return &fakeOrganizers{records: map[string]*models.Organizer{}}
}

func (f *fakeOrganizers) FindByStripeAccount(ctx context.Context, accountID string) (*models.Organizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, org := range f.records {
		if org.StripeAccountID == accountID {
			cp := *org
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrganizers) UpdateAccountFlags(ctx context.Context, id string, flags store.AccountFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.records[id]
	if !ok {
		return store.ErrNotFound
	}
	org.StripeOnboardingComplete = flags.OnboardingComplete
	org.StripeChargesEnabled = flags.ChargesEnabled
	org.StripePayoutsEnabled = flags.PayoutsEnabled
	if flags.Activate && org.Status == models.OrganizerPending {
		org.Status = models.OrganizerActive
	}
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
	failErr error
}

func (f *fakeLedger) Append(ctx context.Context, entry *models.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeLedger) last() *models.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return nil
	}
	return f.entries[len(f.entries)-1]
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
	paid      []string
	refunded  []string
}

func (n *recordingNotifier) RegistrationConfirmed(registrationID, ticketCode string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, registrationID)
}

func (n *recordingNotifier) InstallmentPaid(registrationID string, installmentNumber, paidCount, totalInstallments int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, registrationID)
}

func (n *recordingNotifier) RegistrationRefunded(registrationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunded = append(n.refunded, registrationID)
}

type testEnv struct {
	registrations *fakeRegistrations
	installments  *fakeInstallments
	tickets       *fakeTickets
	organizers    *fakeOrganizers
	ledger        *fakeLedger
	notifier      *recordingNotifier
	store         *store.Store
}

func newTestEnv() *testEnv {
	env := &testEnv{
		registrations: newFakeRegistrations(),
		installments:  newFakeInstallments(),
		tickets:       newFakeTickets(),
		organizers:    newFakeOrganizers(),
		ledger:        &fakeLedger{},
		notifier:      &recordingNotifier{},
	}
	env.store = &store.Store{
		Registrations: env.registrations,
		Installments:  env.installments,
		Tickets:       env.tickets,
		Organizers:    env.organizers,
		Ledger:        env.ledger,
	}
	return env
}

func (e *testEnv) paymentService() *PaymentService {
	ledger := NewLedgerService(e.ledger)
	inventory := NewInventoryService(e.tickets)
	return NewPaymentService(e.store, NopLocker{}, ledger, inventory, e.notifier)
}

func (e *testEnv) installmentService() *InstallmentService {
	ledger := NewLedgerService(e.ledger)
	inventory := NewInventoryService(e.tickets)
	return NewInstallmentService(e.store, NopLocker{}, ledger, inventory, e.notifier)
}

func (e *testEnv) accountService() *AccountService {
	return NewAccountService(e.store, NewLedgerService(e.ledger))
}

func paymentIntent(id string, amountCents int64, metadata map[string]string) *stripe.PaymentIntent {
	return &stripe.PaymentIntent{
		ID:       id,
		Amount:   amountCents,
		Metadata: metadata,
	}
}

func refundedCharge(id, paymentIntentID, refundID string, amountRefunded int64) *stripe.Charge {
	return &stripe.Charge{
		ID:             id,
		PaymentIntent:  &stripe.PaymentIntent{ID: paymentIntentID},
		AmountRefunded: amountRefunded,
		Refunds: &stripe.RefundList{
			Data: []*stripe.Refund{{ID: refundID}},
		},
	}
}
