package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"ticket-marketplace/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header the same way the provider
// does: HMAC-SHA256 over "<timestamp>.<payload>".
func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func webhookEvent(t *testing.T, id, eventType string, object any) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{
		"id":   id,
		"type": eventType,
		"data": map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return payload
}

func (e *testEnv) webhookService() *WebhookService {
	return NewWebhookService(testWebhookSecret,
		e.paymentService(), e.installmentService(), e.accountService())
}

func TestWebhookProcess_InvalidSignature(t *testing.T) {
	env := newTestEnv()
	svc := env.webhookService()

	payload := webhookEvent(t, "evt_1", "payment_intent.succeeded", map[string]any{"id": "pi_1"})

	_, err := svc.Process(context.Background(), payload, "t=12345,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// A tampered payload with a signature for different content fails too.
	sig := signPayload(payload, testWebhookSecret, time.Now())
	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = 'x'
	_, err = svc.Process(context.Background(), tampered, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWebhookProcess_WrongSecret(t *testing.T) {
	env := newTestEnv()
	svc := env.webhookService()

	payload := webhookEvent(t, "evt_1", "payment_intent.succeeded", map[string]any{"id": "pi_1"})
	sig := signPayload(payload, "whsec_other", time.Now())

	_, err := svc.Process(context.Background(), payload, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWebhookProcess_RoutesSinglePayment(t *testing.T) {
	env := newTestEnv()
	svc := env.webhookService()

	seedRegistration(env, "reg_1")

	payload := webhookEvent(t, "evt_1", "payment_intent.succeeded", map[string]any{
		"id":       "pi_1",
		"amount":   20000,
		"metadata": map[string]string{"registration_ids": "reg_1"},
	})
	sig := signPayload(payload, testWebhookSecret, time.Now())

	result, err := svc.Process(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", result.EventID)
	assert.Equal(t, "payment_intent.succeeded", result.EventType)
	assert.True(t, result.Handled)

	reg, err := env.registrations.Get(context.Background(), "reg_1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, reg.Status)
}

func TestWebhookProcess_RoutesInstallmentByMetadata(t *testing.T) {
	env := newTestEnv()
	svc := env.webhookService()

	ids := seedInstallmentPlan(t, env, "reg_1",
		decimal.NewFromInt(100), decimal.NewFromInt(100))

	// installment_id present: routed to the installment reconciler even
	// though registration_ids is also set.
	payload := webhookEvent(t, "evt_1", "payment_intent.succeeded", map[string]any{
		"id":     "pi_1",
		"amount": 10000,
		"metadata": map[string]string{
			"installment_id":   ids[0],
			"registration_ids": "reg_1",
		},
	})
	sig := signPayload(payload, testWebhookSecret, time.Now())

	_, err := svc.Process(context.Background(), payload, sig)
	require.NoError(t, err)

	inst, err := env.installments.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.InstallmentPaid, inst.Status)

	reg, err := env.registrations.Get(context.Background(), "reg_1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPartialPayment, reg.Status)
}

func TestWebhookProcess_RoutesRefund(t *testing.T) {
	env := newTestEnv()
	svc := env.webhookService()

	seedRegistration(env, "reg_1")
	env.registrations.records["reg_1"].StripePaymentIntentID = "pi_1"

	payload := webhookEvent(t, "evt_1", "charge.refunded", map[string]any{
		"id":              "ch_1",
		"amount_refunded": 20000,
		"payment_intent":  map[string]any{"id": "pi_1"},
		"refunds":         map[string]any{"data": []map[string]any{{"id": "re_1"}}},
	})
	sig := signPayload(payload, testWebhookSecret, time.Now())

	_, err := svc.Process(context.Background(), payload, sig)
	require.NoError(t, err)

	reg, err := env.registrations.Get(context.Background(), "reg_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, reg.PaymentStatus)
	assert.Equal(t, "re_1", reg.StripeRefundID)
}

func TestWebhookProcess_UnknownEventTypeIgnored(t *testing.T) {
	env := newTestEnv()
	svc := env.webhookService()

	payload := webhookEvent(t, "evt_1", "customer.created", map[string]any{"id": "cus_1"})
	sig := signPayload(payload, testWebhookSecret, time.Now())

	result, err := svc.Process(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.False(t, result.Handled)
	assert.Equal(t, 0, env.ledger.count())
}

func TestWebhookProcess_CheckoutSessionCompletedIsNoOp(t *testing.T) {
	env := newTestEnv()
	svc := env.webhookService()

	payload := webhookEvent(t, "evt_1", "checkout.session.completed", map[string]any{"id": "cs_1"})
	sig := signPayload(payload, testWebhookSecret, time.Now())

	result, err := svc.Process(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, 0, env.ledger.count())
}
