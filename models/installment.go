package models

import (
	"github.com/shopspring/decimal"
)

type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentPaid      InstallmentStatus = "paid"
	InstallmentOverdue   InstallmentStatus = "overdue"
	InstallmentCancelled InstallmentStatus = "cancelled"
)

// Installment is one scheduled partial payment belonging to exactly one
// registration. Transitions are monotonic: pending -> paid or
// pending -> overdue -> paid; a paid installment is never un-paid.
type Installment struct {
	ID                    string            `db:"id" json:"id"`
	RegistrationID        string            `db:"registration_id" json:"registration_id"`
	InstallmentNumber     int               `db:"installment_number" json:"installment_number"`
	TotalInstallments     int               `db:"total_installments" json:"total_installments"`
	Amount                decimal.Decimal   `db:"amount" json:"amount"`
	DueDate               string            `db:"due_date" json:"due_date"` // YYYY-MM-DD
	Status                InstallmentStatus `db:"status" json:"status"`
	PaidAt                string            `db:"paid_at" json:"paid_at,omitempty"`
	StripePaymentIntentID string            `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	PixQRCode             string            `db:"pix_qr_code" json:"pix_qr_code,omitempty"`
	PixCopyPaste          string            `db:"pix_copy_paste" json:"pix_copy_paste,omitempty"`
}

// InstallmentCounts aggregates sibling installment states for one registration.
type InstallmentCounts struct {
	Paid    int
	Overdue int
	Pending int
	Total   int
}

func CountInstallments(installments []*Installment) InstallmentCounts {
	c := InstallmentCounts{Total: len(installments)}
	for _, inst := range installments {
		switch inst.Status {
		case InstallmentPaid:
			c.Paid++
		case InstallmentOverdue:
			c.Overdue++
		case InstallmentPending:
			c.Pending++
		}
	}
	return c
}
