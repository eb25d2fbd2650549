package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
)

// ErrValidation marks a checkout request the buyer can fix; handlers map it
// to a 400.
var ErrValidation = errors.New("invalid checkout request")

const (
	minInstallments      = 2
	maxInstallments      = 12
	pixExpirationSeconds = 86400 // 24h
)

// CheckoutService creates registrations and their payment intents. The
// webhook reconcilers pick up from there once the provider clears the funds.
type CheckoutService struct {
	store    *store.Store
	gateway  PaymentIntentCreator
	currency string
}

func NewCheckoutService(st *store.Store, gateway PaymentIntentCreator, currency string) *CheckoutService {
	return &CheckoutService{
		store:    st,
		gateway:  gateway,
		currency: currency,
	}
}

type CheckoutRequest struct {
	TicketID         string `json:"ticket_id"`
	Quantity         int    `json:"quantity"`
	ParticipantName  string `json:"participant_name"`
	ParticipantEmail string `json:"participant_email"`
	ParticipantPhone string `json:"participant_phone"`
}

type InstallmentCheckoutRequest struct {
	CheckoutRequest
	Installments int `json:"installments"`
}

type PixPayment struct {
	PaymentIntentID string `json:"payment_intent_id"`
	QRCode          string `json:"pix_qr_code,omitempty"`
	CopyPaste       string `json:"pix_copy_paste,omitempty"`
	ExpiresAt       string `json:"expires_at"`
}

type CheckoutResponse struct {
	RegistrationID string          `json:"registration_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Payment        PixPayment      `json:"payment"`
}

type InstallmentPlanEntry struct {
	ID                string          `json:"id"`
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           string          `json:"due_date"`
}

type InstallmentCheckoutResponse struct {
	RegistrationID   string                 `json:"registration_id"`
	TotalAmount      decimal.Decimal        `json:"total_amount"`
	Installments     []InstallmentPlanEntry `json:"installments"`
	FirstInstallment PixPayment             `json:"first_installment"`
}

// CreateSinglePayment creates a pending registration and one payment intent
// for the full amount, correlated back through registration_ids metadata.
func (s *CheckoutService) CreateSinglePayment(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	ticket, err := s.loadTicket(ctx, req)
	if err != nil {
		return nil, err
	}

	total := ticket.BuyerPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))

	registrationID, err := s.store.Registrations.Create(ctx, &models.Registration{
		EventID:          ticket.EventID,
		TicketTypeID:     ticket.ID,
		ParticipantName:  req.ParticipantName,
		ParticipantEmail: req.ParticipantEmail,
		ParticipantPhone: req.ParticipantPhone,
		Quantity:         req.Quantity,
		TotalAmount:      total,
		Status:           models.RegistrationPending,
		PaymentStatus:    models.PaymentPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}

	params := s.pixIntentParams(total)
	params.AddMetadata("registration_ids", registrationID)

	intent, err := s.gateway.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	slog.Info("checkout created",
		"registration_id", registrationID,
		"payment_intent", intent.ID,
		"amount", total)

	return &CheckoutResponse{
		RegistrationID: registrationID,
		TotalAmount:    total,
		Payment:        pixPaymentFromIntent(intent),
	}, nil
}

// CreateInstallmentPlan creates a registration with n pending installments
// and a payment intent for installment #1, correlated through the
// installment_id metadata. The per-installment amount is rounded to cents
// and the first installment absorbs the remainder so the plan sums exactly
// to the total.
func (s *CheckoutService) CreateInstallmentPlan(ctx context.Context, req InstallmentCheckoutRequest) (*InstallmentCheckoutResponse, error) {
	ticket, err := s.loadTicket(ctx, req.CheckoutRequest)
	if err != nil {
		return nil, err
	}

	if req.Installments < minInstallments || req.Installments > maxInstallments {
		return nil, fmt.Errorf("%w: installments must be between %d and %d", ErrValidation, minInstallments, maxInstallments)
	}
	if !ticket.AllowInstallments {
		return nil, fmt.Errorf("%w: ticket does not allow installment plans", ErrValidation)
	}
	if ticket.MaxInstallments > 0 && req.Installments > ticket.MaxInstallments {
		return nil, fmt.Errorf("%w: at most %d installments allowed for this ticket", ErrValidation, ticket.MaxInstallments)
	}

	total := ticket.BuyerPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	if total.LessThan(ticket.MinAmountForInstallments) {
		return nil, fmt.Errorf("%w: total below the minimum of %s for installment plans",
			ErrValidation, ticket.MinAmountForInstallments.StringFixed(2))
	}

	n := int64(req.Installments)
	perInstallment := total.Div(decimal.NewFromInt(n)).Round(2)
	firstAmount := total.Sub(perInstallment.Mul(decimal.NewFromInt(n - 1)))

	registrationID, err := s.store.Registrations.Create(ctx, &models.Registration{
		EventID:               ticket.EventID,
		TicketTypeID:          ticket.ID,
		ParticipantName:       req.ParticipantName,
		ParticipantEmail:      req.ParticipantEmail,
		ParticipantPhone:      req.ParticipantPhone,
		Quantity:              req.Quantity,
		TotalAmount:           total,
		Status:                models.RegistrationPending,
		PaymentStatus:         models.PaymentPending,
		IsInstallmentPayment:  true,
		TotalInstallments:     req.Installments,
		InstallmentPlanStatus: models.PlanActive,
	})
	if err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}

	now := time.Now().UTC()
	plan := make([]InstallmentPlanEntry, 0, req.Installments)
	firstInstallmentID := ""

	for i := 1; i <= req.Installments; i++ {
		amount := perInstallment
		if i == 1 {
			amount = firstAmount
		}
		dueDate := now.AddDate(0, i-1, 0).Format("2006-01-02")

		installmentID, err := s.store.Installments.Create(ctx, &models.Installment{
			RegistrationID:    registrationID,
			InstallmentNumber: i,
			TotalInstallments: req.Installments,
			Amount:            amount,
			DueDate:           dueDate,
			Status:            models.InstallmentPending,
		})
		if err != nil {
			return nil, fmt.Errorf("create installment %d: %w", i, err)
		}
		if i == 1 {
			firstInstallmentID = installmentID
		}

		plan = append(plan, InstallmentPlanEntry{
			ID:                installmentID,
			InstallmentNumber: i,
			Amount:            amount,
			DueDate:           dueDate,
		})
	}

	params := s.pixIntentParams(firstAmount)
	params.AddMetadata("installment_id", firstInstallmentID)
	params.AddMetadata("registration_id", registrationID)
	params.AddMetadata("installment_number", "1")
	params.AddMetadata("total_installments", fmt.Sprintf("%d", req.Installments))

	intent, err := s.gateway.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	payment := pixPaymentFromIntent(intent)
	if err := s.store.Installments.SetPaymentIntent(ctx, firstInstallmentID, intent.ID, payment.QRCode, payment.CopyPaste); err != nil {
		return nil, fmt.Errorf("attach payment intent to installment: %w", err)
	}

	slog.Info("installment plan created",
		"registration_id", registrationID,
		"installments", req.Installments,
		"total", total,
		"first_amount", firstAmount)

	return &InstallmentCheckoutResponse{
		RegistrationID:   registrationID,
		TotalAmount:      total,
		Installments:     plan,
		FirstInstallment: payment,
	}, nil
}

type InstallmentPixResponse struct {
	Installment *models.Installment `json:"installment"`
	Payment     PixPayment          `json:"payment"`
}

// GeneratePixForInstallment creates a pix payment intent for one pending or
// overdue installment so plans can progress past the first payment. Each call
// issues a fresh intent and replaces the stored pix payload; the webhook
// reconciler correlates whichever intent clears by installment_id.
func (s *CheckoutService) GeneratePixForInstallment(ctx context.Context, installmentID string) (*InstallmentPixResponse, error) {
	inst, err := s.store.Installments.Get(ctx, installmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: installment not found", ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("load installment: %w", err)
	}

	switch inst.Status {
	case models.InstallmentPaid:
		return nil, fmt.Errorf("%w: installment already paid", ErrValidation)
	case models.InstallmentCancelled:
		return nil, fmt.Errorf("%w: installment was cancelled", ErrValidation)
	}

	params := s.pixIntentParams(inst.Amount)
	params.AddMetadata("installment_id", inst.ID)
	params.AddMetadata("registration_id", inst.RegistrationID)
	params.AddMetadata("installment_number", fmt.Sprintf("%d", inst.InstallmentNumber))
	params.AddMetadata("total_installments", fmt.Sprintf("%d", inst.TotalInstallments))

	intent, err := s.gateway.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	payment := pixPaymentFromIntent(intent)
	if err := s.store.Installments.SetPaymentIntent(ctx, inst.ID, intent.ID, payment.QRCode, payment.CopyPaste); err != nil {
		return nil, fmt.Errorf("attach payment intent to installment: %w", err)
	}
	inst.StripePaymentIntentID = intent.ID
	inst.PixQRCode = payment.QRCode
	inst.PixCopyPaste = payment.CopyPaste

	slog.Info("pix generated for installment",
		"installment_id", inst.ID,
		"registration_id", inst.RegistrationID,
		"installment_number", inst.InstallmentNumber,
		"payment_intent", intent.ID)

	return &InstallmentPixResponse{
		Installment: inst,
		Payment:     payment,
	}, nil
}

func (s *CheckoutService) loadTicket(ctx context.Context, req CheckoutRequest) (*models.TicketType, error) {
	if req.TicketID == "" {
		return nil, fmt.Errorf("%w: ticket_id is required", ErrValidation)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if req.ParticipantName == "" || req.ParticipantEmail == "" {
		return nil, fmt.Errorf("%w: participant name and email are required", ErrValidation)
	}

	ticket, err := s.store.Tickets.Get(ctx, req.TicketID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: ticket not found", ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket: %w", err)
	}

	// Advisory check only; the authoritative capacity enforcement is the
	// conditional increment when the payment clears.
	if remaining := ticket.Remaining(); remaining >= 0 && req.Quantity > remaining {
		return nil, fmt.Errorf("%w: only %d tickets remaining", ErrValidation, remaining)
	}
	return ticket, nil
}

func (s *CheckoutService) pixIntentParams(amount decimal.Decimal) *stripe.PaymentIntentParams {
	return &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toCents(amount)),
		Currency:           stripe.String(s.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"pix"}),
		PaymentMethodOptions: &stripe.PaymentIntentPaymentMethodOptionsParams{
			Pix: &stripe.PaymentIntentPaymentMethodOptionsPixParams{
				ExpiresAfterSeconds: stripe.Int64(pixExpirationSeconds),
			},
		},
	}
}

func pixPaymentFromIntent(intent *stripe.PaymentIntent) PixPayment {
	payment := PixPayment{
		PaymentIntentID: intent.ID,
		ExpiresAt:       time.Now().Add(pixExpirationSeconds * time.Second).UTC().Format(time.RFC3339),
	}
	if intent.NextAction != nil && intent.NextAction.PixDisplayQRCode != nil {
		payment.QRCode = intent.NextAction.PixDisplayQRCode.Data
		payment.CopyPaste = intent.NextAction.PixDisplayQRCode.HostedInstructionsURL
		if intent.NextAction.PixDisplayQRCode.ExpiresAt > 0 {
			payment.ExpiresAt = time.Unix(intent.NextAction.PixDisplayQRCode.ExpiresAt, 0).UTC().Format(time.RFC3339)
		}
	}
	return payment
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
