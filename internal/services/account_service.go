package services

import (
	"context"
	"errors"
	"log/slog"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"

	"github.com/stripe/stripe-go/v81"
)

// AccountService mirrors Stripe Connect capability flags onto organizers. It
// runs on a disjoint event type from the payment reconcilers and shares only
// the ledger with them.
type AccountService struct {
	store  *store.Store
	ledger *LedgerService
}

func NewAccountService(st *store.Store, ledger *LedgerService) *AccountService {
	return &AccountService{store: st, ledger: ledger}
}

// ProcessAccountUpdated copies the capability snapshot onto the matching
// organizer. Activation is a one-way latch: once an organizer is active, a
// later capability regression only flips the boolean flags back, never the
// status.
func (s *AccountService) ProcessAccountUpdated(ctx context.Context, account *stripe.Account) error {
	slog.Info("account updated",
		"account_id", account.ID,
		"details_submitted", account.DetailsSubmitted,
		"charges_enabled", account.ChargesEnabled,
		"payouts_enabled", account.PayoutsEnabled)

	s.ledger.Record(ctx, &models.LedgerEntry{
		EventType:      "account.updated",
		StripeObjectID: account.ID,
		Status:         models.TransactionSucceeded,
		Metadata: marshalMetadata(map[string]any{
			"details_submitted": account.DetailsSubmitted,
			"charges_enabled":   account.ChargesEnabled,
			"payouts_enabled":   account.PayoutsEnabled,
		}),
	})

	organizer, err := s.store.Organizers.FindByStripeAccount(ctx, account.ID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("no organizer found for stripe account", "account_id", account.ID)
		return nil
	}
	if err != nil {
		return err
	}

	onboardingComplete := account.DetailsSubmitted && account.ChargesEnabled

	flags := store.AccountFlags{
		OnboardingComplete: onboardingComplete,
		ChargesEnabled:     account.ChargesEnabled,
		PayoutsEnabled:     account.PayoutsEnabled,
		Activate:           onboardingComplete,
	}
	if err := s.store.Organizers.UpdateAccountFlags(ctx, organizer.ID, flags); err != nil {
		return err
	}

	if onboardingComplete && organizer.Status == models.OrganizerPending {
		slog.Info("organizer activated, stripe onboarding complete", "organizer_id", organizer.ID)
	}
	return nil
}
