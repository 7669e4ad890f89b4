package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/property-backoffice/internal/api/dto"
	"github.com/spec-kit/property-backoffice/internal/auth"
	"github.com/spec-kit/property-backoffice/internal/domain"
	"github.com/spec-kit/property-backoffice/internal/service"
)

// PaymentsHandler exposes payment attempts and the charge trigger.
type PaymentsHandler struct {
	payments *service.PaymentService
}

// NewPaymentsHandler constructs handler.
func NewPaymentsHandler(payments *service.PaymentService) *PaymentsHandler {
	return &PaymentsHandler{payments: payments}
}

// Create handles POST /api/v1/payment-attempts.
func (h *PaymentsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req dto.PaymentAttemptCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	input := service.AttemptCreateInput{
		ResidentID:  principal.User.ID,
		SapCustomer: principal.User.SapCustomer,
	}
	for _, item := range req.Invoices {
		date := item.DocumentDate
		if date.IsZero() {
			date = time.Now().UTC()
		}
		input.Invoices = append(input.Invoices, service.InvoiceInput{
			Amount:         item.Amount,
			AmountDOP:      item.AmountDOP,
			Tax:            item.Tax,
			Currency:       item.Currency,
			Company:        item.Company,
			CompanyName:    item.CompanyName,
			DocumentNumber: item.DocumentNumber,
			DocumentDate:   date,
			Position:       item.Position,
			Reference:      item.Reference,
			MerchantNumber: item.MerchantNumber,
		})
	}
	for _, item := range req.Advances {
		input.Advances = append(input.Advances, service.AdvanceInput{
			Amount:      item.Amount,
			Concept:     item.Concept,
			Description: item.Description,
		})
	}

	detail, err := h.payments.CreateAttempt(c.Context(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.NewPaymentAttemptResponse(detail.Attempt),
	})
}

// List handles GET /api/v1/payment-attempts.
func (h *PaymentsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	attempts, err := h.payments.List(c.Context(), principal.User.ID,
		principal.Role == domain.RoleBackoffice,
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}

	items := make([]dto.PaymentAttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		items = append(items, dto.NewPaymentAttemptResponse(attempt))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get handles GET /api/v1/payment-attempts/:id.
func (h *PaymentsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	detail, err := h.payments.Get(c.Context(), principal.User.ID, c.Params("id"),
		principal.Role == domain.RoleBackoffice)
	if err != nil {
		return err
	}

	resp := fiber.Map{"attempt": dto.NewPaymentAttemptResponse(detail.Attempt)}
	if len(detail.Errors) > 0 {
		errs := make([]dto.CompensationErrorItem, 0, len(detail.Errors))
		for _, compErr := range detail.Errors {
			errs = append(errs, dto.CompensationErrorItem{SapID: compErr.SapID, Message: compErr.Message})
		}
		resp["compensation_errors"] = errs
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Charge handles POST /api/v1/payment-attempts/:id/charge. The back office
// can read attempts but never charge them.
func (h *PaymentsHandler) Charge(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	if principal.Role != domain.RoleResident {
		return fiber.NewError(http.StatusForbidden, "only residents can charge")
	}

	var req dto.ChargeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	outcome, err := h.payments.Charge(c.Context(), principal.User.ID, principal.User.Email,
		c.Params("id"), service.CardInput{
			Number:         req.Card.Number,
			ExpirationDate: req.Card.ExpirationDate,
			CVC:            req.Card.CVC,
			Name:           req.Card.Name,
			Save:           req.Card.Save,
			CardUUID:       req.Card.CardUUID,
		})
	if err != nil {
		return err
	}

	resp := dto.NewChargeResponse(*outcome)
	if !outcome.Approved {
		return c.Status(http.StatusBadRequest).JSON(resp)
	}
	return c.JSON(resp)
}
