package handlers

import (
	"log/slog"
	"net/http"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/security"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	overdue   *services.OverdueService
	tokenHash string
}

func NewAdminHandler(overdue *services.OverdueService, tokenHash string) *AdminHandler {
	return &AdminHandler{overdue: overdue, tokenHash: tokenHash}
}

// TriggerOverdueSweep runs the overdue sweep on demand. Guarded by a
// pre-shared trigger token so ops can kick it outside the cron window.
func (h *AdminHandler) TriggerOverdueSweep(e *core.RequestEvent) error {
	token := e.Request.Header.Get("X-Trigger-Token")
	if err := security.VerifyTriggerToken(h.tokenHash, token); err != nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	updated, err := h.overdue.Sweep(e.Request.Context())
	if err != nil {
		slog.Error("manual overdue sweep failed", "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Sweep failed", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"registrations_updated": updated,
	})
}
