package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/property-backoffice/internal/api/dto"
	"github.com/spec-kit/property-backoffice/internal/auth"
	"github.com/spec-kit/property-backoffice/internal/domain"
	"github.com/spec-kit/property-backoffice/internal/repository"
	"github.com/spec-kit/property-backoffice/internal/service"
)

// ServiceRequestsHandler exposes the resident request lifecycle.
type ServiceRequestsHandler struct {
	solicitudes *service.SolicitudeService
}

// NewServiceRequestsHandler constructs handler.
func NewServiceRequestsHandler(solicitudes *service.SolicitudeService) *ServiceRequestsHandler {
	return &ServiceRequestsHandler{solicitudes: solicitudes}
}

// Create handles POST /api/v1/service-requests.
func (h *ServiceRequestsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req dto.ServiceRequestCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.PropertyID == "" || req.ServiceID == "" {
		return fiber.NewError(http.StatusBadRequest, "property_id and service_id required")
	}
	email := req.Email
	if email == "" {
		email = principal.User.Email
	}

	request, err := h.solicitudes.CreateRequest(c.Context(), service.RequestCreateInput{
		ResidentID:  principal.User.ID,
		PropertyID:  req.PropertyID,
		ServiceID:   req.ServiceID,
		Note:        req.Note,
		Phone:       req.Phone,
		Email:       email,
		SapCustomer: principal.User.SapCustomer,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.NewServiceRequestResponse(*request),
	})
}

// List handles GET /api/v1/service-requests.
func (h *ServiceRequestsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	filter := repository.ServiceRequestFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if state := c.Query("state"); state != "" {
		filter.States = []domain.RequestState{domain.RequestState(state)}
	}

	var (
		requests []domain.ServiceRequest
		err      error
	)
	if principal.Role == domain.RoleBackoffice {
		requests, err = h.solicitudes.ListAll(c.Context(), filter)
	} else {
		requests, err = h.solicitudes.List(c.Context(), principal.User.ID, filter)
	}
	if err != nil {
		return err
	}

	items := make([]dto.ServiceRequestResponse, 0, len(requests))
	for _, request := range requests {
		items = append(items, dto.NewServiceRequestResponse(request))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get handles GET /api/v1/service-requests/:id.
func (h *ServiceRequestsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var (
		detail *service.RequestDetail
		err    error
	)
	if principal.Role == domain.RoleBackoffice {
		detail, err = h.solicitudes.GetAny(c.Context(), c.Params("id"))
	} else {
		detail, err = h.solicitudes.Get(c.Context(), principal.User.ID, c.Params("id"))
	}
	if err != nil {
		return err
	}

	resp := dto.NewServiceRequestResponse(detail.Request)
	resp.TicketNumber = detail.TicketNumber
	if detail.Quotation != nil {
		resp.Quotation = dto.NewQuotationResponse(*detail.Quotation)
	}
	return c.JSON(fiber.Map{"data": resp})
}

// History handles GET /api/v1/service-requests/:id/history.
func (h *ServiceRequestsHandler) History(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	transitions, err := h.solicitudes.History(c.Context(), principal.User.ID, c.Params("id"),
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTransitionResponses(transitions)})
}

// ApproveQuotation handles POST /api/v1/service-requests/:id/approve-quotation.
func (h *ServiceRequestsHandler) ApproveQuotation(c *fiber.Ctx) error {
	return h.decide(c, h.solicitudes.ApproveQuotation)
}

// RejectQuotation handles POST /api/v1/service-requests/:id/reject-quotation.
func (h *ServiceRequestsHandler) RejectQuotation(c *fiber.Ctx) error {
	return h.decide(c, h.solicitudes.RejectQuotation)
}

// ApproveWork handles POST /api/v1/service-requests/:id/approve-work.
func (h *ServiceRequestsHandler) ApproveWork(c *fiber.Ctx) error {
	return h.decide(c, h.solicitudes.ApproveWork)
}

// RejectWork handles POST /api/v1/service-requests/:id/reject-work.
func (h *ServiceRequestsHandler) RejectWork(c *fiber.Ctx) error {
	return h.decide(c, h.solicitudes.RejectWork)
}

func (h *ServiceRequestsHandler) decide(c *fiber.Ctx, trigger func(ctx context.Context, residentID, requestID string) (*domain.ServiceRequest, error)) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	request, err := trigger(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewServiceRequestResponse(*request)})
}
