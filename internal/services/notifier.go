package services

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"
)

// Notifier emits payment lifecycle events for asynchronous consumers
// (realtime UI updates, email workers). Delivery is fire-and-forget: a lost
// notification is never a reconciliation failure.
type Notifier interface {
	RegistrationConfirmed(registrationID, ticketCode string)
	InstallmentPaid(registrationID string, installmentNumber, paidCount, totalInstallments int)
	RegistrationRefunded(registrationID string)
}

const paymentEventsChannel = "payment-events"

type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{pn: pn}
}

func (n *PubNubNotifier) RegistrationConfirmed(registrationID, ticketCode string) {
	n.publish(registrationID, map[string]any{
		"type":            "registration_confirmed",
		"registration_id": registrationID,
		"ticket_code":     ticketCode,
	})
}

func (n *PubNubNotifier) InstallmentPaid(registrationID string, installmentNumber, paidCount, totalInstallments int) {
	n.publish(registrationID, map[string]any{
		"type":               "installment_paid",
		"registration_id":    registrationID,
		"installment_number": installmentNumber,
		"paid_count":         paidCount,
		"total_installments": totalInstallments,
	})
}

func (n *PubNubNotifier) RegistrationRefunded(registrationID string) {
	n.publish(registrationID, map[string]any{
		"type":            "registration_refunded",
		"registration_id": registrationID,
	})
}

func (n *PubNubNotifier) publish(registrationID string, message map[string]any) {
	go func() {
		for _, channel := range []string{paymentEventsChannel, fmt.Sprintf("registration-%s", registrationID)} {
			if _, _, err := n.pn.Publish().Channel(channel).Message(message).Execute(); err != nil {
				slog.Warn("notification publish failed", "channel", channel, "error", err)
			}
		}
	}()
}

// NopNotifier is used when no realtime credentials are configured.
type NopNotifier struct{}

func (NopNotifier) RegistrationConfirmed(registrationID, ticketCode string) {}
func (NopNotifier) InstallmentPaid(registrationID string, installmentNumber, paidCount, totalInstallments int) {
}
func (NopNotifier) RegistrationRefunded(registrationID string) {}
