package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
)

// OverdueService flips past-due pending installments to overdue and
// re-derives the aggregate state of every touched registration. It runs on a
// cron schedule and behind an admin trigger endpoint.
type OverdueService struct {
	store *store.Store
}

func NewOverdueService(st *store.Store) *OverdueService {
	return &OverdueService{store: st}
}

// Sweep returns the number of registrations whose state changed. Per-
// registration failures are logged and skipped so one bad record cannot
// stall the rest of the sweep.
func (s *OverdueService) Sweep(ctx context.Context) (int, error) {
	registrationIDs, err := s.store.Installments.SweepOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep overdue installments: %w", err)
	}
	if len(registrationIDs) == 0 {
		return 0, nil
	}

	updated := 0
	for _, registrationID := range registrationIDs {
		installments, err := s.store.Installments.ListByRegistration(ctx, registrationID)
		if err != nil {
			slog.Error("overdue sweep: list installments failed",
				"registration_id", registrationID, "error", err)
			continue
		}

		counts := models.CountInstallments(installments)
		state := models.DeriveRegistrationState(counts.Paid, counts.Overdue, counts.Pending, counts.Total)

		if err := s.store.Registrations.SetAggregateState(ctx, registrationID, state); err != nil {
			slog.Error("overdue sweep: update registration failed",
				"registration_id", registrationID, "error", err)
			continue
		}
		updated++
	}

	slog.Info("overdue sweep finished",
		"registrations_flagged", len(registrationIDs),
		"registrations_updated", updated)
	return updated, nil
}
