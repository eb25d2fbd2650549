package services

import (
	"context"
	"testing"

	"ticket-marketplace/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedInstallmentPlan(t *testing.T, env *testEnv, regID string, amounts ...decimal.Decimal) []string {
	t.Helper()
	ctx := context.Background()

	env.registrations.records[regID] = &models.Registration{
		ID:                    regID,
		TicketTypeID:          "tt_1",
		Quantity:              1,
		TotalAmount:           decimal.Sum(decimal.Zero, amounts...),
		Status:                models.RegistrationPending,
		PaymentStatus:         models.PaymentPending,
		IsInstallmentPayment:  true,
		TotalInstallments:     len(amounts),
		InstallmentPlanStatus: models.PlanActive,
	}
	env.tickets.records["tt_1"] = &models.TicketType{
		ID:       "tt_1",
		Quantity: 100,
	}

	ids := make([]string, 0, len(amounts))
	for i, amount := range amounts {
		id, err := env.installments.Create(ctx, &models.Installment{
			RegistrationID:    regID,
			InstallmentNumber: i + 1,
			TotalInstallments: len(amounts),
			Amount:            amount,
			DueDate:           "2026-12-01",
			Status:            models.InstallmentPending,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestProcessPaidInstallment_FirstPayment(t *testing.T) {
	env := newTestEnv()
	svc := env.installmentService()
	ctx := context.Background()

	ids := seedInstallmentPlan(t, env, "reg_1",
		decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(100))

	pi := paymentIntent("pi_1", 10000, map[string]string{"installment_id": ids[0]})
	require.NoError(t, svc.ProcessPaidInstallment(ctx, pi, ids[0]))

	// Installment is paid, registration is partial.
	inst, err := env.installments.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.InstallmentPaid, inst.Status)
	assert.NotEmpty(t, inst.PaidAt)

	reg, err := env.registrations.Get(ctx, "reg_1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPartialPayment, reg.Status)
	assert.Equal(t, models.PaymentPending, reg.PaymentStatus)
	assert.Equal(t, models.PlanActive, reg.InstallmentPlanStatus)

	// First paid installment grants the ticket and records the sale.
	assert.NotEmpty(t, reg.TicketCode)
	ticket, err := env.tickets.Get(ctx, "tt_1")
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.QuantitySold)

	assert.Equal(t, 1, env.ledger.count())
	assert.Equal(t, []string{"reg_1"}, env.notifier.paid)
	assert.Empty(t, env.notifier.confirmed)
}

func TestProcessPaidInstallment_CompletionConfirms(t *testing.T) {
	env := newTestEnv()
	svc := env.installmentService()
	ctx := context.Background()

	ids := seedInstallmentPlan(t, env, "reg_1",
		decimal.NewFromInt(150), decimal.NewFromInt(150))

	pi1 := paymentIntent("pi_1", 15000, map[string]string{"installment_id": ids[0]})
	require.NoError(t, svc.ProcessPaidInstallment(ctx, pi1, ids[0]))

	pi2 := paymentIntent("pi_2", 15000, map[string]string{"installment_id": ids[1]})
	require.NoError(t, svc.ProcessPaidInstallment(ctx, pi2, ids[1]))

	reg, err := env.registrations.Get(ctx, "reg_1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, reg.Status)
	assert.Equal(t, models.PaymentPaid, reg.PaymentStatus)
	assert.Equal(t, models.PlanCompleted, reg.InstallmentPlanStatus)
	assert.Empty(t, reg.BlockedReason)

	// Inventory moved exactly once over the whole plan.
	ticket, err := env.tickets.Get(ctx, "tt_1")
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.QuantitySold)

	assert.Equal(t, []string{"reg_1"}, env.notifier.confirmed)
}

func TestProcessPaidInstallment_DuplicateDelivery(t *testing.T) {
	env := newTestEnv()
	svc := env.installmentService()
	ctx := context.Background()

	ids := seedInstallmentPlan(t, env, "reg_1",
		decimal.NewFromInt(100), decimal.NewFromInt(100))

	pi := paymentIntent("pi_1", 10000, map[string]string{"installment_id": ids[0]})
	require.NoError(t, svc.ProcessPaidInstallment(ctx, pi, ids[0]))

	ledgerBefore := env.ledger.count()
	incrementsBefore := env.tickets.incrementCalls

	// Same event delivered again: acknowledged, nothing changes.
	require.NoError(t, svc.ProcessPaidInstallment(ctx, pi, ids[0]))

	assert.Equal(t, ledgerBefore, env.ledger.count())
	assert.Equal(t, incrementsBefore, env.tickets.incrementCalls)

	ticket, err := env.tickets.Get(ctx, "tt_1")
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.QuantitySold)
}

func TestProcessPaidInstallment_OverdueSiblingBlocks(t *testing.T) {
	env := newTestEnv()
	svc := env.installmentService()
	ctx := context.Background()

	ids := seedInstallmentPlan(t, env, "reg_1",
		decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(100))

	// Installment 2 is already overdue when installment 1 gets paid.
	env.installments.records[ids[1]].Status = models.InstallmentOverdue

	pi := paymentIntent("pi_1", 10000, map[string]string{"installment_id": ids[0]})
	require.NoError(t, svc.ProcessPaidInstallment(ctx, pi, ids[0]))

	reg, err := env.registrations.Get(ctx, "reg_1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPaymentOverdue, reg.Status)
	assert.Equal(t, models.BlockedReasonOverdue, reg.BlockedReason)

	// The ticket is still granted: it is the first paid installment.
	assert.NotEmpty(t, reg.TicketCode)
}

func TestProcessPaidInstallment_CorrelationMiss(t *testing.T) {
	env := newTestEnv()
	svc := env.installmentService()
	ctx := context.Background()

	pi := paymentIntent("pi_1", 5000, map[string]string{"installment_id": "inst_missing"})

	// Unknown installment id: acknowledged with an audit row, no error.
	require.NoError(t, svc.ProcessPaidInstallment(ctx, pi, "inst_missing"))

	require.Equal(t, 1, env.ledger.count())
	entry := env.ledger.last()
	assert.Equal(t, "payment_intent.succeeded", entry.EventType)
	assert.Contains(t, entry.Metadata, "miss")
	assert.Equal(t, 0, env.tickets.incrementCalls)
}

func TestProcessPaidInstallment_LaterInstallmentNeverGrantsTicket(t *testing.T) {
	env := newTestEnv()
	svc := env.installmentService()
	ctx := context.Background()

	ids := seedInstallmentPlan(t, env, "reg_1",
		decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(100))

	// Installment 2 paid before installment 1 (out-of-order delivery).
	pi := paymentIntent("pi_2", 10000, map[string]string{"installment_id": ids[1]})
	require.NoError(t, svc.ProcessPaidInstallment(ctx, pi, ids[1]))

	reg, err := env.registrations.Get(ctx, "reg_1")
	require.NoError(t, err)
	assert.Empty(t, reg.TicketCode)
	assert.Equal(t, 0, env.tickets.incrementCalls)

	// Installment 1 arriving later does not grant either: the grant fires
	// only when installment 1 is the sole paid installment.
	pi1 := paymentIntent("pi_1", 10000, map[string]string{"installment_id": ids[0]})
	require.NoError(t, svc.ProcessPaidInstallment(ctx, pi1, ids[0]))

	reg, err = env.registrations.Get(ctx, "reg_1")
	require.NoError(t, err)
	assert.Empty(t, reg.TicketCode)
}
