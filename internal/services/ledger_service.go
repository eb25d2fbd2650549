package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"

	"github.com/google/uuid"
)

// LedgerService appends audit rows to payment_transactions. Writes are
// best-effort: a failed audit write is logged and counted but never bubbles
// up, because failing the webhook over a lost audit row would trigger a
// provider retry against already-applied mutations.
type LedgerService struct {
	ledger store.LedgerStore
}

func NewLedgerService(ledger store.LedgerStore) *LedgerService {
	return &LedgerService{ledger: ledger}
}

func (s *LedgerService) Record(ctx context.Context, entry *models.LedgerEntry) {
	if entry.StripeEventID == "" {
		entry.StripeEventID = SyntheticEventID()
	}

	if err := s.ledger.Append(ctx, entry); err != nil {
		slog.Error("ledger write failed",
			"event_id", entry.StripeEventID,
			"event_type", entry.EventType,
			"error", err)
		monitoring.TrackLedgerWriteFailure()
	}
}

// SyntheticEventID builds an event id for ledger rows that are synthesized
// internally (one audit row per affected entity) rather than taken verbatim
// from a provider event.
func SyntheticEventID() string {
	return fmt.Sprintf("evt_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func marshalMetadata(metadata map[string]any) string {
	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(data)
}
