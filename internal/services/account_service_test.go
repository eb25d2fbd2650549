package services

import (
	"context"
	"testing"

	"ticket-marketplace/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
)

func TestProcessAccountUpdated_ActivatesOrganizer(t *testing.T) {
	env := newTestEnv()
	svc := env.accountService()
	ctx := context.Background()

	env.organizers.records["org_1"] = &models.Organizer{
		ID:              "org_1",
		Status:          models.OrganizerPending,
		StripeAccountID: "acct_1",
	}

	account := &stripe.Account{
		ID:               "acct_1",
		DetailsSubmitted: true,
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
	}
	require.NoError(t, svc.ProcessAccountUpdated(ctx, account))

	org := env.organizers.records["org_1"]
	assert.Equal(t, models.OrganizerActive, org.Status)
	assert.True(t, org.StripeOnboardingComplete)
	assert.True(t, org.StripeChargesEnabled)
	assert.True(t, org.StripePayoutsEnabled)

	assert.Equal(t, 1, env.ledger.count())
	assert.Equal(t, "account.updated", env.ledger.last().EventType)
}

func TestProcessAccountUpdated_IncompleteOnboarding(t *testing.T) {
	env := newTestEnv()
	svc := env.accountService()
	ctx := context.Background()

	env.organizers.records["org_1"] = &models.Organizer{
		ID:              "org_1",
		Status:          models.OrganizerPending,
		StripeAccountID: "acct_1",
	}

	// Details submitted but charges not yet enabled: flags update, status
	// stays pending.
	account := &stripe.Account{
		ID:               "acct_1",
		DetailsSubmitted: true,
		ChargesEnabled:   false,
		PayoutsEnabled:   false,
	}
	require.NoError(t, svc.ProcessAccountUpdated(ctx, account))

	org := env.organizers.records["org_1"]
	assert.Equal(t, models.OrganizerPending, org.Status)
	assert.False(t, org.StripeOnboardingComplete)
}

func TestProcessAccountUpdated_CapabilityRegressionKeepsActive(t *testing.T) {
	env := newTestEnv()
	svc := env.accountService()
	ctx := context.Background()

	env.organizers.records["org_1"] = &models.Organizer{
		ID:                       "org_1",
		Status:                   models.OrganizerActive,
		StripeAccountID:          "acct_1",
		StripeOnboardingComplete: true,
		StripeChargesEnabled:     true,
		StripePayoutsEnabled:     true,
	}

	// Provider disables charges later: flags regress, status does not.
	account := &stripe.Account{
		ID:               "acct_1",
		DetailsSubmitted: true,
		ChargesEnabled:   false,
		PayoutsEnabled:   false,
	}
	require.NoError(t, svc.ProcessAccountUpdated(ctx, account))

	org := env.organizers.records["org_1"]
	assert.Equal(t, models.OrganizerActive, org.Status)
	assert.False(t, org.StripeChargesEnabled)
	assert.False(t, org.StripePayoutsEnabled)
}

func TestProcessAccountUpdated_UnknownAccount(t *testing.T) {
	env := newTestEnv()
	svc := env.accountService()
	ctx := context.Background()

	account := &stripe.Account{ID: "acct_unknown", DetailsSubmitted: true, ChargesEnabled: true}

	// No organizer matches: acknowledged, the audit row remains.
	require.NoError(t, svc.ProcessAccountUpdated(ctx, account))
	assert.Equal(t, 1, env.ledger.count())
}
