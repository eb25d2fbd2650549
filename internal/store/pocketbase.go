package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticket-marketplace/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

const (
	collRegistrations = "event_registrations"
	collInstallments  = "payment_installments"
	collTickets       = "event_tickets"
	collOrganizers    = "organizers"
	collTransactions  = "payment_transactions"
)

// New returns a Store backed by the PocketBase record store. Reads go through
// the record API; idempotency-guarding writes and inventory increments go
// through conditional SQL so concurrent webhook deliveries cannot both apply
// the same effect.
func New(app core.App) *Store {
	return &Store{
		Registrations: &pbRegistrations{app: app},
		Installments:  &pbInstallments{app: app},
		Tickets:       &pbTickets{app: app},
		Organizers:    &pbOrganizers{app: app},
		Ledger:        &pbLedger{app: app},
	}
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type pbRegistrations struct {
	app core.App
}

func (s *pbRegistrations) Get(ctx context.Context, id string) (*models.Registration, error) {
	rec, err := s.app.FindRecordById(collRegistrations, id)
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find registration %s: %w", id, err)
	}
	return registrationFromRecord(rec), nil
}

func (s *pbRegistrations) Create(ctx context.Context, r *models.Registration) (string, error) {
	collection, err := s.app.FindCollectionByNameOrId(collRegistrations)
	if err != nil {
		return "", fmt.Errorf("find collection %s: %w", collRegistrations, err)
	}

	rec := core.NewRecord(collection)
	rec.Set("event_id", r.EventID)
	rec.Set("ticket_type_id", r.TicketTypeID)
	rec.Set("participant_name", r.ParticipantName)
	rec.Set("participant_email", r.ParticipantEmail)
	rec.Set("participant_phone", r.ParticipantPhone)
	rec.Set("quantity", r.Quantity)
	rec.Set("total_amount", r.TotalAmount.InexactFloat64())
	rec.Set("status", string(r.Status))
	rec.Set("payment_status", string(r.PaymentStatus))
	rec.Set("is_installment_payment", r.IsInstallmentPayment)
	rec.Set("total_installments", r.TotalInstallments)
	rec.Set("installment_plan_status", string(r.InstallmentPlanStatus))

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return "", fmt.Errorf("create registration: %w", err)
	}
	return rec.Id, nil
}

func (s *pbRegistrations) ConfirmPayment(ctx context.Context, id, paymentIntentID, ticketCode string) (bool, error) {
	res, err := s.app.DB().NewQuery(`
		UPDATE event_registrations
		SET payment_status = 'paid',
		    status = 'confirmed',
		    stripe_payment_intent_id = {:intent},
		    ticket_code = CASE WHEN ticket_code = '' THEN {:code} ELSE ticket_code END,
		    updated = {:now}
		WHERE id = {:id} AND payment_status != 'paid'
	`).Bind(dbx.Params{
		"id":     id,
		"intent": paymentIntentID,
		"code":   ticketCode,
		"now":    types.NowDateTime().String(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("confirm registration %s: %w", id, err)
	}
	return applied(res)
}

func (s *pbRegistrations) AssignTicketCode(ctx context.Context, id, ticketCode, paymentIntentID string) (bool, error) {
	res, err := s.app.DB().NewQuery(`
		UPDATE event_registrations
		SET ticket_code = {:code},
		    stripe_payment_intent_id = {:intent},
		    updated = {:now}
		WHERE id = {:id} AND ticket_code = ''
	`).Bind(dbx.Params{
		"id":     id,
		"code":   ticketCode,
		"intent": paymentIntentID,
		"now":    types.NowDateTime().String(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("assign ticket code to registration %s: %w", id, err)
	}
	return applied(res)
}

func (s *pbRegistrations) SetAggregateState(ctx context.Context, id string, state models.AggregateState) error {
	_, err := s.app.DB().NewQuery(`
		UPDATE event_registrations
		SET status = {:status},
		    payment_status = {:paymentStatus},
		    blocked_reason = {:blockedReason},
		    installment_plan_status = {:planStatus},
		    updated = {:now}
		WHERE id = {:id}
	`).Bind(dbx.Params{
		"id":            id,
		"status":        string(state.Status),
		"paymentStatus": string(state.PaymentStatus),
		"blockedReason": state.BlockedReason,
		"planStatus":    string(state.PlanStatus),
		"now":           types.NowDateTime().String(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("update registration %s state: %w", id, err)
	}
	return nil
}

func (s *pbRegistrations) MarkPaymentFailed(ctx context.Context, id string) error {
	// Failure is retry-eligible, so the registration goes back to pending
	// instead of cancelled.
	_, err := s.app.DB().NewQuery(`
		UPDATE event_registrations
		SET status = 'pending', payment_status = 'pending', updated = {:now}
		WHERE id = {:id}
	`).Bind(dbx.Params{
		"id":  id,
		"now": types.NowDateTime().String(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("mark registration %s payment failed: %w", id, err)
	}
	return nil
}

func (s *pbRegistrations) MarkRefunded(ctx context.Context, id, refundID string) error {
	_, err := s.app.DB().NewQuery(`
		UPDATE event_registrations
		SET payment_status = 'refunded',
		    status = 'cancelled',
		    stripe_refund_id = {:refund},
		    updated = {:now}
		WHERE id = {:id}
	`).Bind(dbx.Params{
		"id":     id,
		"refund": refundID,
		"now":    types.NowDateTime().String(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("mark registration %s refunded: %w", id, err)
	}
	return nil
}

func (s *pbRegistrations) FindByPaymentIntent(ctx context.Context, paymentIntentID string) ([]*models.Registration, error) {
	recs, err := s.app.FindRecordsByFilter(
		collRegistrations,
		"stripe_payment_intent_id = {:intent}",
		"",
		0,
		0,
		dbx.Params{"intent": paymentIntentID},
	)
	if err != nil {
		return nil, fmt.Errorf("find registrations by payment intent: %w", err)
	}

	registrations := make([]*models.Registration, 0, len(recs))
	for _, rec := range recs {
		registrations = append(registrations, registrationFromRecord(rec))
	}
	return registrations, nil
}

type pbInstallments struct {
	app core.App
}

func (s *pbInstallments) Get(ctx context.Context, id string) (*models.Installment, error) {
	rec, err := s.app.FindRecordById(collInstallments, id)
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find installment %s: %w", id, err)
	}
	return installmentFromRecord(rec), nil
}

func (s *pbInstallments) Create(ctx context.Context, inst *models.Installment) (string, error) {
	collection, err := s.app.FindCollectionByNameOrId(collInstallments)
	if err != nil {
		return "", fmt.Errorf("find collection %s: %w", collInstallments, err)
	}

	rec := core.NewRecord(collection)
	rec.Set("registration_id", inst.RegistrationID)
	rec.Set("installment_number", inst.InstallmentNumber)
	rec.Set("total_installments", inst.TotalInstallments)
	rec.Set("amount", inst.Amount.InexactFloat64())
	rec.Set("due_date", inst.DueDate)
	rec.Set("status", string(inst.Status))

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return "", fmt.Errorf("create installment: %w", err)
	}
	return rec.Id, nil
}

func (s *pbInstallments) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	res, err := s.app.DB().NewQuery(`
		UPDATE payment_installments
		SET status = 'paid', paid_at = {:paidAt}, updated = {:now}
		WHERE id = {:id} AND status != 'paid'
	`).Bind(dbx.Params{
		"id":     id,
		"paidAt": paidAt.UTC().Format(types.DefaultDateLayout),
		"now":    types.NowDateTime().String(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("mark installment %s paid: %w", id, err)
	}
	return applied(res)
}

func (s *pbInstallments) ListByRegistration(ctx context.Context, registrationID string) ([]*models.Installment, error) {
	recs, err := s.app.FindRecordsByFilter(
		collInstallments,
		"registration_id = {:reg}",
		"installment_number",
		0,
		0,
		dbx.Params{"reg": registrationID},
	)
	if err != nil {
		return nil, fmt.Errorf("list installments for registration %s: %w", registrationID, err)
	}

	installments := make([]*models.Installment, 0, len(recs))
	for _, rec := range recs {
		installments = append(installments, installmentFromRecord(rec))
	}
	return installments, nil
}

func (s *pbInstallments) SetPaymentIntent(ctx context.Context, id, paymentIntentID, pixQRCode, pixCopyPaste string) error {
	rec, err := s.app.FindRecordById(collInstallments, id)
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("find installment %s: %w", id, err)
	}

	rec.Set("stripe_payment_intent_id", paymentIntentID)
	rec.Set("pix_qr_code", pixQRCode)
	rec.Set("pix_copy_paste", pixCopyPaste)

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("update installment %s payment intent: %w", id, err)
	}
	return nil
}

func (s *pbInstallments) SweepOverdue(ctx context.Context, asOf time.Time) ([]string, error) {
	today := asOf.UTC().Format("2006-01-02")

	var rows []dbx.NullStringMap
	err := s.app.DB().NewQuery(`
		SELECT DISTINCT registration_id
		FROM payment_installments
		WHERE status = 'pending' AND due_date != '' AND due_date < {:today}
	`).Bind(dbx.Params{"today": today}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("select overdue installments: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	_, err = s.app.DB().NewQuery(`
		UPDATE payment_installments
		SET status = 'overdue', updated = {:now}
		WHERE status = 'pending' AND due_date != '' AND due_date < {:today}
	`).Bind(dbx.Params{
		"today": today,
		"now":   types.NowDateTime().String(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return nil, fmt.Errorf("flip overdue installments: %w", err)
	}

	registrationIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		if id := row["registration_id"].String; id != "" {
			registrationIDs = append(registrationIDs, id)
		}
	}
	return registrationIDs, nil
}

type pbTickets struct {
	app core.App
}

func (s *pbTickets) Get(ctx context.Context, id string) (*models.TicketType, error) {
	rec, err := s.app.FindRecordById(collTickets, id)
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find ticket %s: %w", id, err)
	}
	return ticketFromRecord(rec), nil
}

func (s *pbTickets) IncrementSold(ctx context.Context, id string, n int) (bool, error) {
	if n <= 0 {
		return false, fmt.Errorf("increment sold: count must be positive, got %d", n)
	}

	// Relative adjustment with a capacity check in one statement, so
	// concurrent sales of the last units cannot oversell. quantity = 0
	// means unlimited capacity.
	res, err := s.app.DB().NewQuery(`
		UPDATE event_tickets
		SET quantity_sold = quantity_sold + {:n}, updated = {:now}
		WHERE id = {:id} AND (quantity = 0 OR quantity_sold + {:n} <= quantity)
	`).Bind(dbx.Params{
		"id":  id,
		"n":   n,
		"now": types.NowDateTime().String(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("increment quantity_sold for ticket %s: %w", id, err)
	}
	return applied(res)
}

type pbOrganizers struct {
	app core.App
}

func (s *pbOrganizers) FindByStripeAccount(ctx context.Context, accountID string) (*models.Organizer, error) {
	recs, err := s.app.FindRecordsByFilter(
		collOrganizers,
		"stripe_account_id = {:acct}",
		"",
		1,
		0,
		dbx.Params{"acct": accountID},
	)
	if err != nil {
		return nil, fmt.Errorf("find organizer by stripe account: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return organizerFromRecord(recs[0]), nil
}

func (s *pbOrganizers) UpdateAccountFlags(ctx context.Context, id string, flags AccountFlags) error {
	rec, err := s.app.FindRecordById(collOrganizers, id)
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("find organizer %s: %w", id, err)
	}

	rec.Set("stripe_onboarding_complete", flags.OnboardingComplete)
	rec.Set("stripe_charges_enabled", flags.ChargesEnabled)
	rec.Set("stripe_payouts_enabled", flags.PayoutsEnabled)
	if flags.Activate && rec.GetString("status") == string(models.OrganizerPending) {
		rec.Set("status", string(models.OrganizerActive))
	}

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("update organizer %s: %w", id, err)
	}
	return nil
}

type pbLedger struct {
	app core.App
}

func (s *pbLedger) Append(ctx context.Context, entry *models.LedgerEntry) error {
	collection, err := s.app.FindCollectionByNameOrId(collTransactions)
	if err != nil {
		return fmt.Errorf("find collection %s: %w", collTransactions, err)
	}

	rec := core.NewRecord(collection)
	rec.Set("stripe_event_id", entry.StripeEventID)
	rec.Set("event_type", entry.EventType)
	rec.Set("stripe_object_id", entry.StripeObjectID)
	rec.Set("amount", entry.Amount.InexactFloat64())
	rec.Set("status", string(entry.Status))
	rec.Set("metadata", entry.Metadata)
	rec.Set("registration_id", entry.RegistrationID)

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("append ledger entry %s: %w", entry.StripeEventID, err)
	}
	return nil
}

func applied(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func registrationFromRecord(rec *core.Record) *models.Registration {
	return &models.Registration{
		ID:                    rec.Id,
		EventID:               rec.GetString("event_id"),
		TicketTypeID:          rec.GetString("ticket_type_id"),
		ParticipantName:       rec.GetString("participant_name"),
		ParticipantEmail:      rec.GetString("participant_email"),
		ParticipantPhone:      rec.GetString("participant_phone"),
		Quantity:              rec.GetInt("quantity"),
		TotalAmount:           decimal.NewFromFloat(rec.GetFloat("total_amount")),
		Status:                models.RegistrationStatus(rec.GetString("status")),
		PaymentStatus:         models.PaymentStatus(rec.GetString("payment_status")),
		BlockedReason:         rec.GetString("blocked_reason"),
		IsInstallmentPayment:  rec.GetBool("is_installment_payment"),
		TotalInstallments:     rec.GetInt("total_installments"),
		InstallmentPlanStatus: models.PlanStatus(rec.GetString("installment_plan_status")),
		TicketCode:            rec.GetString("ticket_code"),
		StripePaymentIntentID: rec.GetString("stripe_payment_intent_id"),
		StripeRefundID:        rec.GetString("stripe_refund_id"),
	}
}

func installmentFromRecord(rec *core.Record) *models.Installment {
	return &models.Installment{
		ID:                    rec.Id,
		RegistrationID:        rec.GetString("registration_id"),
		InstallmentNumber:     rec.GetInt("installment_number"),
		TotalInstallments:     rec.GetInt("total_installments"),
		Amount:                decimal.NewFromFloat(rec.GetFloat("amount")),
		DueDate:               rec.GetString("due_date"),
		Status:                models.InstallmentStatus(rec.GetString("status")),
		PaidAt:                rec.GetString("paid_at"),
		StripePaymentIntentID: rec.GetString("stripe_payment_intent_id"),
		PixQRCode:             rec.GetString("pix_qr_code"),
		PixCopyPaste:          rec.GetString("pix_copy_paste"),
	}
}

func ticketFromRecord(rec *core.Record) *models.TicketType {
	return &models.TicketType{
		ID:                       rec.Id,
		EventID:                  rec.GetString("event_id"),
		Title:                    rec.GetString("title"),
		BuyerPrice:               decimal.NewFromFloat(rec.GetFloat("buyer_price")),
		Quantity:                 rec.GetInt("quantity"),
		QuantitySold:             rec.GetInt("quantity_sold"),
		AllowInstallments:        rec.GetBool("allow_installments"),
		MaxInstallments:          rec.GetInt("max_installments"),
		MinAmountForInstallments: decimal.NewFromFloat(rec.GetFloat("min_amount_for_installments")),
	}
}

func organizerFromRecord(rec *core.Record) *models.Organizer {
	return &models.Organizer{
		ID:                       rec.Id,
		Name:                     rec.GetString("name"),
		Email:                    rec.GetString("email"),
		Status:                   models.OrganizerStatus(rec.GetString("status")),
		StripeAccountID:          rec.GetString("stripe_account_id"),
		StripeOnboardingComplete: rec.GetBool("stripe_onboarding_complete"),
		StripeChargesEnabled:     rec.GetBool("stripe_charges_enabled"),
		StripePayoutsEnabled:     rec.GetBool("stripe_payouts_enabled"),
	}
}
