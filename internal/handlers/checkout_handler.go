package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type CheckoutHandler struct {
	checkout *services.CheckoutService
	store    *store.Store
}

func NewCheckoutHandler(checkout *services.CheckoutService, st *store.Store) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, store: st}
}

// CreateCheckout - single full payment for a registration
func (h *CheckoutHandler) CreateCheckout(e *core.RequestEvent) error {
	var req services.CheckoutRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	resp, err := h.checkout.CreateSinglePayment(e.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return apis.NewBadRequestError(err.Error(), nil)
		}
		slog.Error("checkout failed", "ticket_id", req.TicketID, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Checkout failed", nil)
	}

	return e.JSON(http.StatusOK, resp)
}

// CreateInstallmentCheckout - split a registration into monthly installments
func (h *CheckoutHandler) CreateInstallmentCheckout(e *core.RequestEvent) error {
	var req services.InstallmentCheckoutRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	resp, err := h.checkout.CreateInstallmentPlan(e.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return apis.NewBadRequestError(err.Error(), nil)
		}
		slog.Error("installment checkout failed", "ticket_id", req.TicketID, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Checkout failed", nil)
	}

	return e.JSON(http.StatusOK, resp)
}

// GeneratePixForInstallment - fresh pix payment intent for a pending installment
func (h *CheckoutHandler) GeneratePixForInstallment(e *core.RequestEvent) error {
	installmentID := e.Request.PathValue("installmentId")

	resp, err := h.checkout.GeneratePixForInstallment(e.Request.Context(), installmentID)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return apis.NewBadRequestError(err.Error(), nil)
		}
		slog.Error("generate pix failed", "installment_id", installmentID, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Pix generation failed", nil)
	}

	return e.JSON(http.StatusOK, resp)
}

// GetRegistrationPayments - registration status plus its installment schedule
func (h *CheckoutHandler) GetRegistrationPayments(e *core.RequestEvent) error {
	registrationID := e.Request.PathValue("registrationId")
	ctx := e.Request.Context()

	reg, err := h.store.Registrations.Get(ctx, registrationID)
	if errors.Is(err, store.ErrNotFound) {
		return apis.NewNotFoundError("Registration not found", nil)
	}
	if err != nil {
		slog.Error("load registration failed", "registration_id", registrationID, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Lookup failed", nil)
	}

	var installments []*models.Installment
	if reg.IsInstallmentPayment {
		installments, err = h.store.Installments.ListByRegistration(ctx, registrationID)
		if err != nil {
			slog.Error("list installments failed", "registration_id", registrationID, "error", err)
			return apis.NewApiError(http.StatusInternalServerError, "Lookup failed", nil)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"registration": reg,
		"installments": installments,
	})
}
