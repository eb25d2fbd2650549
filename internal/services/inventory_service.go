package services

import (
	"context"
	"log/slog"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/monitoring"
)

// InventoryService records ticket sales on the quantity_sold counter. It is
// invoked at most once per registration: on confirmation for single payments
// and on the first paid installment for installment plans. Failures are
// logged and swallowed so an inventory problem never un-acknowledges an
// otherwise processed payment event.
type InventoryService struct {
	tickets store.TicketStore
}

func NewInventoryService(tickets store.TicketStore) *InventoryService {
	return &InventoryService{tickets: tickets}
}

func (s *InventoryService) RecordSale(ctx context.Context, ticketTypeID string, units int) {
	if ticketTypeID == "" {
		return
	}
	if units < 1 {
		units = 1
	}

	ok, err := s.tickets.IncrementSold(ctx, ticketTypeID, units)
	if err != nil {
		slog.Error("inventory increment failed", "ticket_type_id", ticketTypeID, "units", units, "error", err)
		return
	}
	if !ok {
		slog.Warn("inventory increment refused, capacity reached",
			"ticket_type_id", ticketTypeID,
			"units", units)
		monitoring.TrackOversellRefusal()
		return
	}

	monitoring.TrackInventoryIncrement(units)
}
