package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Processed webhook events by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	registrationsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registrations_confirmed_total",
			Help: "Registrations confirmed by a payment event",
		},
	)

	installmentsPaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "installments_paid_total",
			Help: "Installments marked paid by a payment event",
		},
	)

	inventoryIncrements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_increments_total",
			Help: "Units added to quantity_sold counters",
		},
	)

	oversellRefusals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_oversell_refusals_total",
			Help: "Inventory increments refused by the capacity check",
		},
	)

	ledgerWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_write_failures_total",
			Help: "Swallowed payment_transactions write failures",
		},
	)

	leaseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registration_lease_failures_total",
			Help: "Failed attempts to obtain a per-registration lease",
		},
	)
)

// Outcome labels for TrackWebhookEvent.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

func TrackWebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func TrackRegistrationConfirmed() {
	registrationsConfirmed.Inc()
}

func TrackInstallmentPaid() {
	installmentsPaid.Inc()
}

func TrackInventoryIncrement(units int) {
	inventoryIncrements.Add(float64(units))
}

func TrackOversellRefusal() {
	oversellRefusals.Inc()
}

func TrackLedgerWriteFailure() {
	ledgerWriteFailures.Inc()
}

func TrackLeaseFailure() {
	leaseFailures.Inc()
}
