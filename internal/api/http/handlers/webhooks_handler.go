package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/property-backoffice/internal/api/dto"
	"github.com/spec-kit/property-backoffice/internal/service"
)

// WebhooksHandler receives helpdesk and ERP callbacks. Callers authenticate
// with the application role.
type WebhooksHandler struct {
	solicitudes *service.SolicitudeService
}

// NewWebhooksHandler constructs handler.
func NewWebhooksHandler(solicitudes *service.SolicitudeService) *WebhooksHandler {
	return &WebhooksHandler{solicitudes: solicitudes}
}

// CreateServiceRequest handles POST /api/v1/webhooks/service-requests.
// The helpdesk opens the ticket first and registers the request afterwards.
func (h *WebhooksHandler) CreateServiceRequest(c *fiber.Ctx) error {
	var req dto.WebhookServiceRequestCreate
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.TicketID == 0 || req.ResidentID == "" || req.ServiceID == "" {
		return fiber.NewError(http.StatusBadRequest, "ticket_id, resident_id, service_id required")
	}

	request, err := h.solicitudes.CreateFromTicket(c.Context(), service.RequestCreateInput{
		ResidentID:  req.ResidentID,
		PropertyID:  req.PropertyID,
		ServiceID:   req.ServiceID,
		Note:        req.Note,
		Phone:       req.Phone,
		Email:       req.Email,
		SapCustomer: req.SapCustomer,
	}, req.TicketID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.NewServiceRequestResponse(*request),
	})
}

// CreateAviso handles POST /api/v1/webhooks/avisos.
func (h *WebhooksHandler) CreateAviso(c *fiber.Ctx) error {
	var req dto.AvisoCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.TicketID == 0 {
		return fiber.NewError(http.StatusBadRequest, "ticket_id required")
	}

	request, err := h.solicitudes.RegisterAviso(c.Context(), req.TicketID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.NewServiceRequestResponse(*request),
	})
}

// AvisoStateChanged handles PUT /api/v1/webhooks/avisos/:aviso_id.
func (h *WebhooksHandler) AvisoStateChanged(c *fiber.Ctx) error {
	avisoID, err := strconv.ParseInt(c.Params("aviso_id"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid aviso id")
	}

	var req dto.AvisoStateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.State == "" {
		return fiber.NewError(http.StatusBadRequest, "state required")
	}

	request, err := h.solicitudes.HandleAvisoState(c.Context(), avisoID, req.State)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewServiceRequestResponse(*request)})
}
