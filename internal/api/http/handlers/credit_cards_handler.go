package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/property-backoffice/internal/api/dto"
	"github.com/spec-kit/property-backoffice/internal/auth"
	"github.com/spec-kit/property-backoffice/internal/service"
)

// CreditCardsHandler exposes the vaulted card surface.
type CreditCardsHandler struct {
	payments *service.PaymentService
}

// NewCreditCardsHandler constructs handler.
func NewCreditCardsHandler(payments *service.PaymentService) *CreditCardsHandler {
	return &CreditCardsHandler{payments: payments}
}

// List handles GET /api/v1/credit-cards.
func (h *CreditCardsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	cards, err := h.payments.ListCards(c.Context(), principal.User.ID)
	if err != nil {
		return err
	}
	items := make([]dto.CreditCardResponse, 0, len(cards))
	for _, card := range cards {
		items = append(items, dto.NewCreditCardResponse(card))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Delete handles DELETE /api/v1/credit-cards/:id.
func (h *CreditCardsHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	if err := h.payments.DeleteCard(c.Context(), principal.User.ID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
