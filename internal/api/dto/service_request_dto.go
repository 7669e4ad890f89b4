package dto

import (
	"time"

	"github.com/spec-kit/property-backoffice/internal/domain"
)

// ServiceRequestCreateRequest payload for new service requests.
type ServiceRequestCreateRequest struct {
	PropertyID string `json:"property_id"`
	ServiceID  string `json:"service_id"`
	Note       string `json:"note"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

// WebhookServiceRequestCreate payload for application-created requests.
type WebhookServiceRequestCreate struct {
	TicketID    int64  `json:"ticket_id"`
	ResidentID  string `json:"resident_id"`
	PropertyID  string `json:"property_id"`
	ServiceID   string `json:"service_id"`
	Note        string `json:"note"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	SapCustomer int    `json:"sap_customer"`
}

// AvisoCreateRequest payload registering an ERP work order for a ticket.
type AvisoCreateRequest struct {
	TicketID int64 `json:"ticket_id"`
}

// AvisoStateRequest payload for ERP-side work order state changes.
type AvisoStateRequest struct {
	State string `json:"state"`
}

// QuotationResponse renders a quotation.
type QuotationResponse struct {
	ID        string     `json:"id"`
	FileRef   string     `json:"file_ref,omitempty"`
	Note      string     `json:"note,omitempty"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// ServiceRequestResponse renders a service request.
type ServiceRequestResponse struct {
	ID                string             `json:"id"`
	PropertyID        string             `json:"property_id"`
	ServiceID         string             `json:"service_id"`
	Note              string             `json:"note,omitempty"`
	Phone             string             `json:"phone,omitempty"`
	Email             string             `json:"email"`
	RequiresQuotation bool               `json:"requires_quotation"`
	TicketID          *int64             `json:"ticket_id,omitempty"`
	TicketNumber      string             `json:"ticket_number,omitempty"`
	AvisoID           *int64             `json:"aviso_id,omitempty"`
	State             string             `json:"state"`
	CreationDate      time.Time          `json:"creation_date"`
	CloseDate         *time.Time         `json:"close_date,omitempty"`
	Quotation         *QuotationResponse `json:"quotation,omitempty"`
}

// TransitionResponse renders one history entry.
type TransitionResponse struct {
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	Actor     string    `json:"actor"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewServiceRequestResponse maps a domain request.
func NewServiceRequestResponse(request domain.ServiceRequest) ServiceRequestResponse {
	return ServiceRequestResponse{
		ID:                request.ID,
		PropertyID:        request.PropertyID,
		ServiceID:         request.ServiceID,
		Note:              request.Note,
		Phone:             request.Phone,
		Email:             request.Email,
		RequiresQuotation: request.RequiresQuotation,
		TicketID:          request.TicketID,
		AvisoID:           request.AvisoID,
		State:             string(request.State),
		CreationDate:      request.CreationDate,
		CloseDate:         request.CloseDate,
	}
}

// NewQuotationResponse maps a domain quotation.
func NewQuotationResponse(quotation domain.Quotation) *QuotationResponse {
	return &QuotationResponse{
		ID:        quotation.ID,
		FileRef:   quotation.FileRef,
		Note:      quotation.Note,
		State:     string(quotation.State),
		CreatedAt: quotation.CreatedAt,
		DecidedAt: quotation.DecidedAt,
	}
}

// NewTransitionResponses maps history entries.
func NewTransitionResponses(transitions []domain.RequestTransition) []TransitionResponse {
	result := make([]TransitionResponse, 0, len(transitions))
	for _, t := range transitions {
		result = append(result, TransitionResponse{
			FromState: string(t.FromState),
			ToState:   string(t.ToState),
			Actor:     string(t.Actor),
			Comment:   t.Comment,
			CreatedAt: t.CreatedAt,
		})
	}
	return result
}

// ServiceResponse renders a catalog entry.
type ServiceResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	RequiresApproval bool   `json:"requires_approval"`
	Scheduled        bool   `json:"scheduled"`
}

// PropertyResponse renders a managed property.
type PropertyResponse struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
}
