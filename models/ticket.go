package models

import (
	"github.com/shopspring/decimal"
)

// TicketType is one sellable ticket tier of an event. Quantity is the
// capacity (0 means unlimited) and QuantitySold the cumulative units sold.
type TicketType struct {
	ID                       string          `db:"id" json:"id"`
	EventID                  string          `db:"event_id" json:"event_id"`
	Title                    string          `db:"title" json:"title"`
	BuyerPrice               decimal.Decimal `db:"buyer_price" json:"buyer_price"`
	Quantity                 int             `db:"quantity" json:"quantity"`
	QuantitySold             int             `db:"quantity_sold" json:"quantity_sold"`
	AllowInstallments        bool            `db:"allow_installments" json:"allow_installments"`
	MaxInstallments          int             `db:"max_installments" json:"max_installments"`
	MinAmountForInstallments decimal.Decimal `db:"min_amount_for_installments" json:"min_amount_for_installments"`
}

// Remaining returns the units still available, or -1 for unlimited capacity.
func (t *TicketType) Remaining() int {
	if t.Quantity == 0 {
		return -1
	}
	remaining := t.Quantity - t.QuantitySold
	if remaining < 0 {
		return 0
	}
	return remaining
}
