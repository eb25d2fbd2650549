package models

import (
	"github.com/shopspring/decimal"
)

type RegistrationStatus string

const (
	RegistrationPending        RegistrationStatus = "pending"
	RegistrationPartialPayment RegistrationStatus = "partial_payment"
	RegistrationPaymentOverdue RegistrationStatus = "payment_overdue"
	RegistrationConfirmed      RegistrationStatus = "confirmed"
	RegistrationCancelled      RegistrationStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
)

const BlockedReasonOverdue = "overdue_installments"

type Registration struct {
	ID                    string             `db:"id" json:"id"`
	EventID               string             `db:"event_id" json:"event_id"`
	TicketTypeID          string             `db:"ticket_type_id" json:"ticket_type_id"`
	ParticipantName       string             `db:"participant_name" json:"participant_name"`
	ParticipantEmail      string             `db:"participant_email" json:"participant_email"`
	ParticipantPhone      string             `db:"participant_phone" json:"participant_phone,omitempty"`
	Quantity              int                `db:"quantity" json:"quantity"`
	TotalAmount           decimal.Decimal    `db:"total_amount" json:"total_amount"`
	Status                RegistrationStatus `db:"status" json:"status"`
	PaymentStatus         PaymentStatus      `db:"payment_status" json:"payment_status"`
	BlockedReason         string             `db:"blocked_reason" json:"blocked_reason,omitempty"`
	IsInstallmentPayment  bool               `db:"is_installment_payment" json:"is_installment_payment"`
	TotalInstallments     int                `db:"total_installments" json:"total_installments"`
	InstallmentPlanStatus PlanStatus         `db:"installment_plan_status" json:"installment_plan_status,omitempty"`
	TicketCode            string             `db:"ticket_code" json:"ticket_code,omitempty"`
	StripePaymentIntentID string             `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	StripeRefundID        string             `db:"stripe_refund_id" json:"stripe_refund_id,omitempty"`
}

// AggregateState is the registration-level outcome derived from the states of
// its installments.
type AggregateState struct {
	Status        RegistrationStatus
	PaymentStatus PaymentStatus
	PlanStatus    PlanStatus
	BlockedReason string
}

// DeriveRegistrationState computes a registration's aggregate state from its
// installment counts. Precedence, first match wins:
//
//  1. all installments paid     -> confirmed / paid / completed
//  2. any installment overdue   -> payment_overdue, blocked
//  3. otherwise                 -> partial_payment
//
// A fully-paid plan always wins over a stale overdue flag, and an overdue
// installment blocks confirmation no matter how many siblings are paid.
func DeriveRegistrationState(paid, overdue, pending, total int) AggregateState {
	switch {
	case total > 0 && paid == total:
		return AggregateState{
			Status:        RegistrationConfirmed,
			PaymentStatus: PaymentPaid,
			PlanStatus:    PlanCompleted,
		}
	case overdue > 0:
		return AggregateState{
			Status:        RegistrationPaymentOverdue,
			PaymentStatus: PaymentPending,
			PlanStatus:    PlanActive,
			BlockedReason: BlockedReasonOverdue,
		}
	default:
		return AggregateState{
			Status:        RegistrationPartialPayment,
			PaymentStatus: PaymentPending,
			PlanStatus:    PlanActive,
		}
	}
}
