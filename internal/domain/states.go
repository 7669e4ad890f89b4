package domain

// RequestState enumerates lifecycle states for service requests.
type RequestState string

const (
	RequestStatePending                  RequestState = "PENDING"
	RequestStateWaitingQuotationApproval RequestState = "WAITING_QUOTATION_APPROVAL"
	RequestStateQuotationApproved        RequestState = "QUOTATION_APPROVED"
	RequestStateWaitingWorkApproval      RequestState = "WAITING_WORK_APPROVAL"
	RequestStateApproved                 RequestState = "APPROVED"
	RequestStateQuotationRejected        RequestState = "QUOTATION_REJECTED"
	RequestStateWorkRejected             RequestState = "WORK_REJECTED"
)

// QuotationState enumerates quotation review outcomes.
type QuotationState string

const (
	QuotationStatePending  QuotationState = "PENDING"
	QuotationStateApproved QuotationState = "APPROVED"
	QuotationStateRejected QuotationState = "REJECTED"
)

// ProcessPaymentStatus tracks the gateway charge outcome of a payment attempt.
type ProcessPaymentStatus string

const (
	ProcessPaymentInitial     ProcessPaymentStatus = "INITIAL"
	ProcessPaymentApproved    ProcessPaymentStatus = "APPROVED"
	ProcessPaymentNotApproved ProcessPaymentStatus = "NOT_APPROVED"
)

// CompensationStatus tracks the ERP reconciliation outcome, independent of the charge.
type CompensationStatus string

const (
	CompensationInitial        CompensationStatus = "INITIAL"
	CompensationCompensated    CompensationStatus = "COMPENSATED"
	CompensationNotCompensated CompensationStatus = "NOT_COMPENSATED"
)

// DocumentStatus tracks compensation state of an invoice or advance payment line.
type DocumentStatus string

const (
	DocumentStatusPending        DocumentStatus = "PENDING"
	DocumentStatusCompensated    DocumentStatus = "COMPENSATED"
	DocumentStatusNotCompensated DocumentStatus = "NOT_COMPENSATED"
)

// Ticket state names owned by the external helpdesk. These mirror the remote
// vocabulary; the helpdesk remains the source of truth for its own record.
const (
	TicketStateOpen                     = "OPEN"
	TicketStateWaitingQuotationApproval = "WAITING_QUOTATION_APPROVAL"
	TicketStateQuotationApproved        = "QUOTATION_APPROVED"
	TicketStateWaitingWorkApproval      = "WAITING_WORK_APPROVAL"
	TicketStateClosed                   = "CLOSED"
	TicketStateQuotationRejected        = "QUOTATION_REJECTED"
	TicketStateWorkRejected             = "WORK_REJECTED"
)

// Aviso (work order) state names owned by the external ERP.
const (
	AvisoStateInitial                   = "INITIAL"
	AvisoStateRequiresQuoteApproval     = "REQUIRES_QUOTE_APPROVAL"
	AvisoStateRequiresAcceptanceClosing = "REQUIRES_ACCEPTANCE_CLOSING"
	AvisoStateQuotationApproved         = "QUOTATION_APPROVED"
	AvisoStateQuotationRejected         = "QUOTATION_REJECTED"
	AvisoStateAcceptedWork              = "ACCEPTED_WORK"
)

var requestTransitions = map[RequestState][]RequestState{
	RequestStatePending:                  {RequestStateWaitingQuotationApproval},
	RequestStateWaitingQuotationApproval: {RequestStateQuotationApproved, RequestStateQuotationRejected},
	RequestStateQuotationApproved:        {RequestStateWaitingWorkApproval},
	RequestStateWaitingWorkApproval:      {RequestStateApproved, RequestStateWorkRejected},
	RequestStateApproved:                 {},
	RequestStateQuotationRejected:        {},
	RequestStateWorkRejected:             {},
}

// CanTransition reports whether a request may move from current to next.
func (s RequestState) CanTransition(next RequestState) bool {
	for _, candidate := range requestTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s RequestState) Terminal() bool {
	return len(requestTransitions[s]) == 0
}

// Decided reports whether the quotation has left its pending state.
func (q QuotationState) Decided() bool {
	return q == QuotationStateApproved || q == QuotationStateRejected
}

// Settled reports whether the charge outcome has been recorded.
func (p ProcessPaymentStatus) Settled() bool {
	return p == ProcessPaymentApproved || p == ProcessPaymentNotApproved
}
