package events

import (
	"time"

	"github.com/spec-kit/property-backoffice/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated     EventType = "service_request_created"
	EventQuotationPending   EventType = "quotation_pending"
	EventQuotationApproved  EventType = "quotation_approved"
	EventQuotationRejected  EventType = "quotation_rejected"
	EventWorkPending        EventType = "work_pending"
	EventWorkApproved       EventType = "work_approved"
	EventWorkRejected       EventType = "work_rejected"
	EventPaymentApproved    EventType = "payment_approved"
	EventCompensationFailed EventType = "compensation_failed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RequestID string                 `json:"request_id,omitempty"`
	Actor     domain.TransitionActor `json:"actor"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   interface{}            `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	RequesterEmail string `json:"requester_email"`
	TicketID       int64  `json:"ticket_id"`
	ServiceName    string `json:"service_name"`
}

// QuotationPendingPayload payload.
type QuotationPendingPayload struct {
	RequesterEmail string `json:"requester_email"`
	TicketNumber   string `json:"ticket_number"`
	FileRef        string `json:"file_ref,omitempty"`
	Note           string `json:"note,omitempty"`
}

// QuotationDecidedPayload payload for approval and rejection.
type QuotationDecidedPayload struct {
	RequesterEmail string `json:"requester_email"`
	TicketNumber   string `json:"ticket_number"`
}

// WorkPendingPayload payload.
type WorkPendingPayload struct {
	RequesterEmail string `json:"requester_email"`
	TicketNumber   string `json:"ticket_number"`
}

// WorkDecidedPayload payload for approval and rejection. ResponsibleEmail is
// only set on rejection, when the field crew must be told to return.
type WorkDecidedPayload struct {
	RequesterEmail   string `json:"requester_email"`
	ResponsibleEmail string `json:"responsible_email,omitempty"`
	TicketNumber     string `json:"ticket_number"`
}

// PaymentApprovedPayload payload.
type PaymentApprovedPayload struct {
	ResidentEmail     string `json:"resident_email"`
	Transaction       int64  `json:"transaction"`
	Amount            int64  `json:"amount"`
	AuthorizationCode string `json:"authorization_code"`
}

// CompensationFailedPayload payload.
type CompensationFailedPayload struct {
	PaymentAttemptID string `json:"payment_attempt_id"`
	Transaction      int64  `json:"transaction"`
	LineCount        int    `json:"line_count"`
}
