package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/fleamarket-backend/internal/service"
)

// PurchaseHandler drives the buyer side of the lifecycle and the external
// payment confirmation.
type PurchaseHandler struct {
	lifecycle service.LifecycleService
}

func NewPurchaseHandler(lifecycle service.LifecycleService) *PurchaseHandler {
	return &PurchaseHandler{lifecycle: lifecycle}
}

func (h *PurchaseHandler) Claim(c echo.Context) error {
	actor := actorFrom(c)
	if actor.ID == "" {
		return missingUID(c)
	}
	l, err := h.lifecycle.Claim(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingResponse(l, actor.ID))
}

func (h *PurchaseHandler) ReportPayment(c echo.Context) error {
	actor := actorFrom(c)
	if actor.ID == "" {
		return missingUID(c)
	}
	l, err := h.lifecycle.ConfirmPayment(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingResponse(l, actor.ID))
}

// MarkPaid is mounted behind RequireAdmin.
func (h *PurchaseHandler) MarkPaid(c echo.Context) error {
	l, err := h.lifecycle.MarkPaid(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingResponse(l, l.SellerID))
}
