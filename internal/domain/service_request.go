package domain

import "time"

// Service is a catalog entry a resident can request.
type Service struct {
	ID               string
	Name             string
	SapCode          string
	RequiresApproval bool
	GeneratesAviso   bool
	GeneratesInvoice bool
	Scheduled        bool
	Active           bool
}

// Property is a unit managed by the back office.
type Property struct {
	ID        string
	Direction string
	SapCode   string
	Active    bool
}

// ServiceRequest is the aggregate driving the quotation/work lifecycle.
// ticket_id and aviso_id are weak references into the helpdesk and ERP;
// each is assigned at most once and never assumed fresh without a live fetch.
type ServiceRequest struct {
	ID                string
	ResidentID        string
	PropertyID        string
	ServiceID         string
	Note              string
	Phone             string
	Email             string
	SapCustomer       int
	RequiresQuotation bool
	TicketID          *int64
	AvisoID           *int64
	State             RequestState
	CreationDate      time.Time
	CloseDate         *time.Time
}

// Quotation is the one-to-one cost estimate attached to a request.
type Quotation struct {
	ID               string
	ServiceRequestID string
	FileRef          string
	Note             string
	State            QuotationState
	CreatedAt        time.Time
	DecidedAt        *time.Time
}

// TransitionActor identifies who drove a lifecycle transition.
type TransitionActor string

const (
	ActorResident TransitionActor = "RESIDENT"
	ActorHelpdesk TransitionActor = "HELPDESK"
	ActorERP      TransitionActor = "ERP"
	ActorSystem   TransitionActor = "SYSTEM"
)

// RequestTransition is one recorded state change of a service request.
type RequestTransition struct {
	ID               string
	ServiceRequestID string
	FromState        RequestState
	ToState          RequestState
	Actor            TransitionActor
	Comment          string
	CreatedAt        time.Time
}
