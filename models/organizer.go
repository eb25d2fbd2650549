package models

type OrganizerStatus string

const (
	OrganizerPending  OrganizerStatus = "pending"
	OrganizerActive   OrganizerStatus = "active"
	OrganizerArchived OrganizerStatus = "archived"
)

// Organizer mirrors the payment provider's merchant-account capability flags.
// Status moves pending -> active exactly once, when onboarding first
// completes; it never auto-reverts even if the provider later disables a
// capability (regressions stay visible through the boolean flags).
type Organizer struct {
	ID                       string          `db:"id" json:"id"`
	Name                     string          `db:"name" json:"name"`
	Email                    string          `db:"email" json:"email"`
	Status                   OrganizerStatus `db:"status" json:"status"`
	StripeAccountID          string          `db:"stripe_account_id" json:"stripe_account_id,omitempty"`
	StripeOnboardingComplete bool            `db:"stripe_onboarding_complete" json:"stripe_onboarding_complete"`
	StripeChargesEnabled     bool            `db:"stripe_charges_enabled" json:"stripe_charges_enabled"`
	StripePayoutsEnabled     bool            `db:"stripe_payouts_enabled" json:"stripe_payouts_enabled"`
}
