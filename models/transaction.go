package models

import (
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
	TransactionPending   TransactionStatus = "pending"
	TransactionRefunded  TransactionStatus = "refunded"
)

// LedgerEntry is one append-only audit row in payment_transactions. Entries
// are written once per processed webhook invocation and never updated.
type LedgerEntry struct {
	ID             string            `db:"id" json:"id"`
	StripeEventID  string            `db:"stripe_event_id" json:"stripe_event_id"`
	EventType      string            `db:"event_type" json:"event_type"`
	StripeObjectID string            `db:"stripe_object_id" json:"stripe_object_id"`
	Amount         decimal.Decimal   `db:"amount" json:"amount"`
	Status         TransactionStatus `db:"status" json:"status"`
	Metadata       string            `db:"metadata" json:"metadata,omitempty"` // JSON blob
	RegistrationID string            `db:"registration_id" json:"registration_id,omitempty"`
}
