package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/property-backoffice/internal/api/dto"
	"github.com/spec-kit/property-backoffice/internal/auth"
	"github.com/spec-kit/property-backoffice/internal/repository"
)

// CatalogHandler exposes services and properties visible to a resident.
type CatalogHandler struct {
	services   repository.ServiceRepository
	properties repository.PropertyRepository
}

// NewCatalogHandler constructs handler.
func NewCatalogHandler(services repository.ServiceRepository, properties repository.PropertyRepository) *CatalogHandler {
	return &CatalogHandler{services: services, properties: properties}
}

// ListServices handles GET /api/v1/services.
func (h *CatalogHandler) ListServices(c *fiber.Ctx) error {
	services, err := h.services.ListActive(c.Context())
	if err != nil {
		return err
	}
	items := make([]dto.ServiceResponse, 0, len(services))
	for _, svc := range services {
		items = append(items, dto.ServiceResponse{
			ID:               svc.ID,
			Name:             svc.Name,
			RequiresApproval: svc.RequiresApproval,
			Scheduled:        svc.Scheduled,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListProperties handles GET /api/v1/properties.
func (h *CatalogHandler) ListProperties(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	properties, err := h.properties.ListByResident(c.Context(), principal.User.ID)
	if err != nil {
		return err
	}
	items := make([]dto.PropertyResponse, 0, len(properties))
	for _, property := range properties {
		items = append(items, dto.PropertyResponse{
			ID:        property.ID,
			Direction: property.Direction,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
