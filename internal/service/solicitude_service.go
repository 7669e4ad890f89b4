package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/domain"
	"github.com/spec-kit/property-backoffice/internal/erp"
	"github.com/spec-kit/property-backoffice/internal/events"
	"github.com/spec-kit/property-backoffice/internal/helpdesk"
	"github.com/spec-kit/property-backoffice/internal/persistence"
	"github.com/spec-kit/property-backoffice/internal/repository"
	"github.com/spec-kit/property-backoffice/pkg/util"
)

const requestLockTTL = 30 * time.Second

// SolicitudeService drives the service request lifecycle. Every trigger runs
// as validate, external calls, persist under a per-request lock; an adapter
// failure aborts before any local write.
type SolicitudeService struct {
	requests    repository.ServiceRequestRepository
	quotations  repository.QuotationRepository
	transitions repository.TransitionRepository
	services    repository.ServiceRepository
	properties  repository.PropertyRepository
	helpdesk    helpdesk.Client
	erp         erp.Client
	locks       persistence.Locker
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// SolicitudeDependencies bundles collaborators for the lifecycle service.
type SolicitudeDependencies struct {
	RequestRepo    repository.ServiceRequestRepository
	QuotationRepo  repository.QuotationRepository
	TransitionRepo repository.TransitionRepository
	ServiceRepo    repository.ServiceRepository
	PropertyRepo   repository.PropertyRepository
	Helpdesk       helpdesk.Client
	ERP            erp.Client
	Locks          persistence.Locker
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewSolicitudeService constructs the service.
func NewSolicitudeService(deps SolicitudeDependencies) *SolicitudeService {
	return &SolicitudeService{
		requests:    deps.RequestRepo,
		quotations:  deps.QuotationRepo,
		transitions: deps.TransitionRepo,
		services:    deps.ServiceRepo,
		properties:  deps.PropertyRepo,
		helpdesk:    deps.Helpdesk,
		erp:         deps.ERP,
		locks:       deps.Locks,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
	}
}

// RequestCreateInput describes a resident-created request.
type RequestCreateInput struct {
	ResidentID  string
	PropertyID  string
	ServiceID   string
	Note        string
	Phone       string
	Email       string
	SapCustomer int
}

// RequestDetail is the read model for a single request.
type RequestDetail struct {
	Request      domain.ServiceRequest
	Quotation    *domain.Quotation
	TicketNumber string
}

// CreateRequest registers a new request and opens its helpdesk ticket.
// The ticket is created first so that a helpdesk outage leaves no local row.
func (s *SolicitudeService) CreateRequest(ctx context.Context, input RequestCreateInput) (*domain.ServiceRequest, error) {
	svc, err := s.services.GetByID(ctx, input.ServiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("service", map[string]any{"service_id": input.ServiceID})
		}
		return nil, err
	}
	if !svc.Active {
		return nil, util.NewValidationError("service is not available", map[string]any{"service_id": svc.ID})
	}

	owned, err := s.properties.OwnedBy(ctx, input.ResidentID, input.PropertyID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, util.NewForbidden("property does not belong to requester")
	}

	ticketID, err := s.helpdesk.Create(ctx, svc.Name,
		fmt.Sprintf("Service request: %s", svc.Name), input.Note, "normal")
	if err != nil {
		return nil, util.NewExternalFailure("helpdesk", err)
	}

	request := &domain.ServiceRequest{
		ResidentID:        input.ResidentID,
		PropertyID:        input.PropertyID,
		ServiceID:         input.ServiceID,
		Note:              input.Note,
		Phone:             input.Phone,
		Email:             input.Email,
		SapCustomer:       input.SapCustomer,
		RequiresQuotation: svc.RequiresApproval,
		TicketID:          &ticketID,
		State:             domain.RequestStatePending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventRequestCreated, request.ID, domain.ActorResident,
		events.RequestCreatedPayload{
			RequesterEmail: request.Email,
			TicketID:       ticketID,
			ServiceName:    svc.Name,
		})
	s.logger.Info("service request created",
		zap.String("request_id", request.ID), zap.Int64("ticket_id", ticketID))
	return request, nil
}

// CreateFromTicket registers a request for a ticket already opened in the
// helpdesk. Used by the application role when the flow starts on the desk side.
func (s *SolicitudeService) CreateFromTicket(ctx context.Context, input RequestCreateInput, ticketID int64) (*domain.ServiceRequest, error) {
	if _, err := s.requests.GetByTicketID(ctx, ticketID); err == nil {
		return nil, util.NewConflict("ticket already linked to a request", map[string]any{"ticket_id": ticketID})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	svc, err := s.services.GetByID(ctx, input.ServiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("service", map[string]any{"service_id": input.ServiceID})
		}
		return nil, err
	}

	request := &domain.ServiceRequest{
		ResidentID:        input.ResidentID,
		PropertyID:        input.PropertyID,
		ServiceID:         input.ServiceID,
		Note:              input.Note,
		Phone:             input.Phone,
		Email:             input.Email,
		SapCustomer:       input.SapCustomer,
		RequiresQuotation: svc.RequiresApproval,
		TicketID:          &ticketID,
		State:             domain.RequestStatePending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}
	s.logger.Info("service request created from ticket",
		zap.String("request_id", request.ID), zap.Int64("ticket_id", ticketID))
	return request, nil
}

// List returns the requests visible to a resident.
func (s *SolicitudeService) List(ctx context.Context, residentID string, filter repository.ServiceRequestFilter) ([]domain.ServiceRequest, error) {
	filter.ResidentID = &residentID
	return s.requests.ListWithFilter(ctx, filter)
}

// ListAll returns requests without an ownership filter, for back office use.
func (s *SolicitudeService) ListAll(ctx context.Context, filter repository.ServiceRequestFilter) ([]domain.ServiceRequest, error) {
	return s.requests.ListWithFilter(ctx, filter)
}

// Get returns a request with its quotation and the live ticket number.
// A helpdesk fetch failure degrades to an empty ticket number.
func (s *SolicitudeService) Get(ctx context.Context, residentID, requestID string) (*RequestDetail, error) {
	request, err := s.ownedRequest(ctx, residentID, requestID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, request), nil
}

// GetAny returns a request without the ownership check, for back office use.
func (s *SolicitudeService) GetAny(ctx context.Context, requestID string) (*RequestDetail, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, request), nil
}

// History returns the recorded transitions of an owned request.
func (s *SolicitudeService) History(ctx context.Context, residentID, requestID string, limit, offset int) ([]domain.RequestTransition, error) {
	if _, err := s.ownedRequest(ctx, residentID, requestID); err != nil {
		return nil, err
	}
	return s.transitions.ListByRequest(ctx, requestID, limit, offset)
}

// RegisterAviso pins the ERP work order id onto the request matching the
// given ticket. The aviso id is assigned at most once.
func (s *SolicitudeService) RegisterAviso(ctx context.Context, ticketID int64) (*domain.ServiceRequest, error) {
	request, err := s.requests.GetByTicketID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("service request", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	release, err := s.lock(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// reload under the lock
	request, err = s.requests.GetByID(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	if request.AvisoID != nil {
		return nil, util.NewConflict("request already has a work order", map[string]any{"aviso_id": *request.AvisoID})
	}

	serviceCode := request.ServiceID
	if svc, err := s.services.GetByID(ctx, request.ServiceID); err == nil {
		serviceCode = svc.SapCode
	}
	avisoID, err := s.erp.CreateAviso(ctx, ticketID, request.SapCustomer, serviceCode, request.Note)
	if err != nil {
		return nil, util.NewExternalFailure("erp", err)
	}
	request.AvisoID = &avisoID
	if err := s.requests.Update(ctx, request); err != nil {
		return nil, err
	}
	s.logger.Info("aviso registered",
		zap.String("request_id", request.ID), zap.Int64("aviso_id", avisoID))
	return request, nil
}

// HandleAvisoState reacts to an ERP-side work order state change.
func (s *SolicitudeService) HandleAvisoState(ctx context.Context, avisoID int64, state string) (*domain.ServiceRequest, error) {
	request, err := s.requests.GetByAvisoID(ctx, avisoID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("service request", map[string]any{"aviso_id": avisoID})
		}
		return nil, err
	}

	release, err := s.lock(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	request, err = s.requests.GetByID(ctx, request.ID)
	if err != nil {
		return nil, err
	}

	switch state {
	case domain.AvisoStateRequiresQuoteApproval:
		return s.quotationReceived(ctx, request, avisoID)
	case domain.AvisoStateRequiresAcceptanceClosing:
		return s.workFinished(ctx, request)
	default:
		return nil, util.NewUnprocessable("unsupported work order state", map[string]any{"state": state})
	}
}

func (s *SolicitudeService) quotationReceived(ctx context.Context, request *domain.ServiceRequest, avisoID int64) (*domain.ServiceRequest, error) {
	if err := s.checkTransition(request, domain.RequestStateWaitingQuotationApproval); err != nil {
		return nil, err
	}

	info, err := s.erp.Info(ctx, avisoID)
	if err != nil {
		return nil, util.NewExternalFailure("erp", err)
	}
	ticketNumber := s.ticketNumber(ctx, request)
	if err := s.helpdesk.ChangeState(ctx, *request.TicketID, domain.TicketStateWaitingQuotationApproval); err != nil {
		return nil, util.NewExternalFailure("helpdesk", err)
	}

	quotation := &domain.Quotation{
		ServiceRequestID: request.ID,
		FileRef:          info.QuotationFileRef,
		Note:             info.QuotationNote,
		State:            domain.QuotationStatePending,
	}
	if err := s.quotations.Create(ctx, quotation); err != nil {
		return nil, err
	}
	if err := s.applyTransition(ctx, request, domain.RequestStateWaitingQuotationApproval, domain.ActorERP, "quotation received"); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventQuotationPending, request.ID, domain.ActorERP,
		events.QuotationPendingPayload{
			RequesterEmail: request.Email,
			TicketNumber:   ticketNumber,
			FileRef:        info.QuotationFileRef,
			Note:           info.QuotationNote,
		})
	return request, nil
}

func (s *SolicitudeService) workFinished(ctx context.Context, request *domain.ServiceRequest) (*domain.ServiceRequest, error) {
	if err := s.checkTransition(request, domain.RequestStateWaitingWorkApproval); err != nil {
		return nil, err
	}

	ticketNumber := s.ticketNumber(ctx, request)
	if err := s.helpdesk.ChangeState(ctx, *request.TicketID, domain.TicketStateWaitingWorkApproval); err != nil {
		return nil, util.NewExternalFailure("helpdesk", err)
	}
	if err := s.applyTransition(ctx, request, domain.RequestStateWaitingWorkApproval, domain.ActorERP, "work reported finished"); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventWorkPending, request.ID, domain.ActorERP,
		events.WorkPendingPayload{
			RequesterEmail: request.Email,
			TicketNumber:   ticketNumber,
		})
	return request, nil
}

// ApproveQuotation accepts the pending quotation of an owned request.
func (s *SolicitudeService) ApproveQuotation(ctx context.Context, residentID, requestID string) (*domain.ServiceRequest, error) {
	return s.decideQuotation(ctx, residentID, requestID, true)
}

// RejectQuotation declines the pending quotation, closing the request.
func (s *SolicitudeService) RejectQuotation(ctx context.Context, residentID, requestID string) (*domain.ServiceRequest, error) {
	return s.decideQuotation(ctx, residentID, requestID, false)
}

func (s *SolicitudeService) decideQuotation(ctx context.Context, residentID, requestID string, approved bool) (*domain.ServiceRequest, error) {
	request, err := s.ownedRequest(ctx, residentID, requestID)
	if err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	request, err = s.requests.GetByID(ctx, request.ID)
	if err != nil {
		return nil, err
	}

	next := domain.RequestStateQuotationApproved
	quotationState := domain.QuotationStateApproved
	ticketState := domain.TicketStateQuotationApproved
	avisoState := domain.AvisoStateQuotationApproved
	eventType := events.EventQuotationApproved
	if !approved {
		next = domain.RequestStateQuotationRejected
		quotationState = domain.QuotationStateRejected
		ticketState = domain.TicketStateQuotationRejected
		avisoState = domain.AvisoStateQuotationRejected
		eventType = events.EventQuotationRejected
	}
	if err := s.checkTransition(request, next); err != nil {
		return nil, err
	}

	quotation, err := s.quotations.GetByServiceRequest(ctx, request.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewConflict("request has no quotation", nil)
		}
		return nil, err
	}
	if quotation.State.Decided() {
		return nil, util.NewConflict("quotation already decided", map[string]any{"state": quotation.State})
	}

	ticketNumber := s.ticketNumber(ctx, request)
	if err := s.helpdesk.ChangeState(ctx, *request.TicketID, ticketState); err != nil {
		return nil, util.NewExternalFailure("helpdesk", err)
	}
	if err := s.erp.ChangeState(ctx, *request.AvisoID, avisoState); err != nil {
		return nil, util.NewExternalFailure("erp", err)
	}

	now := time.Now().UTC()
	quotation.State = quotationState
	quotation.DecidedAt = &now
	if err := s.quotations.Update(ctx, quotation); err != nil {
		return nil, err
	}
	if err := s.applyTransition(ctx, request, next, domain.ActorResident, "quotation decision"); err != nil {
		return nil, err
	}

	s.publish(ctx, eventType, request.ID, domain.ActorResident,
		events.QuotationDecidedPayload{
			RequesterEmail: request.Email,
			TicketNumber:   ticketNumber,
		})
	return request, nil
}

// ApproveWork accepts the delivered work, closing ticket and request.
func (s *SolicitudeService) ApproveWork(ctx context.Context, residentID, requestID string) (*domain.ServiceRequest, error) {
	request, err := s.ownedRequest(ctx, residentID, requestID)
	if err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	request, err = s.requests.GetByID(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(request, domain.RequestStateApproved); err != nil {
		return nil, err
	}

	ticketNumber := s.ticketNumber(ctx, request)
	if err := s.helpdesk.ChangeState(ctx, *request.TicketID, domain.TicketStateClosed); err != nil {
		return nil, util.NewExternalFailure("helpdesk", err)
	}
	if request.AvisoID != nil {
		if err := s.erp.ChangeState(ctx, *request.AvisoID, domain.AvisoStateAcceptedWork); err != nil {
			return nil, util.NewExternalFailure("erp", err)
		}
	}

	now := time.Now().UTC()
	request.CloseDate = &now
	if err := s.applyTransition(ctx, request, domain.RequestStateApproved, domain.ActorResident, "work accepted"); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventWorkApproved, request.ID, domain.ActorResident,
		events.WorkDecidedPayload{
			RequesterEmail: request.Email,
			TicketNumber:   ticketNumber,
		})
	return request, nil
}

// RejectWork sends the delivered work back, closing the request as rejected
// and telling the responsible crew to return.
func (s *SolicitudeService) RejectWork(ctx context.Context, residentID, requestID string) (*domain.ServiceRequest, error) {
	request, err := s.ownedRequest(ctx, residentID, requestID)
	if err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	request, err = s.requests.GetByID(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(request, domain.RequestStateWorkRejected); err != nil {
		return nil, err
	}

	var responsibleEmail string
	if request.AvisoID != nil {
		info, err := s.erp.Info(ctx, *request.AvisoID)
		if err != nil {
			return nil, util.NewExternalFailure("erp", err)
		}
		responsibleEmail = info.ResponsibleEmail
	}
	ticketNumber := s.ticketNumber(ctx, request)
	if err := s.helpdesk.ChangeState(ctx, *request.TicketID, domain.TicketStateWorkRejected); err != nil {
		return nil, util.NewExternalFailure("helpdesk", err)
	}

	if err := s.applyTransition(ctx, request, domain.RequestStateWorkRejected, domain.ActorResident, "work rejected"); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventWorkRejected, request.ID, domain.ActorResident,
		events.WorkDecidedPayload{
			RequesterEmail:   request.Email,
			ResponsibleEmail: responsibleEmail,
			TicketNumber:     ticketNumber,
		})
	return request, nil
}

func (s *SolicitudeService) ownedRequest(ctx context.Context, residentID, requestID string) (*domain.ServiceRequest, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("service request", map[string]any{"id": requestID})
		}
		return nil, err
	}
	if request.ResidentID != residentID {
		return nil, util.NewNotFound("service request", map[string]any{"id": requestID})
	}
	return request, nil
}

func (s *SolicitudeService) detail(ctx context.Context, request *domain.ServiceRequest) *RequestDetail {
	detail := &RequestDetail{Request: *request}
	if quotation, err := s.quotations.GetByServiceRequest(ctx, request.ID); err == nil {
		detail.Quotation = quotation
	}
	detail.TicketNumber = s.ticketNumber(ctx, request)
	return detail
}

// ticketNumber fetches the live ticket number, degrading to empty on failure.
func (s *SolicitudeService) ticketNumber(ctx context.Context, request *domain.ServiceRequest) string {
	if request.TicketID == nil {
		return ""
	}
	ticket, err := s.helpdesk.Get(ctx, *request.TicketID)
	if err != nil {
		s.logger.Warn("helpdesk ticket fetch failed",
			zap.String("request_id", request.ID), zap.Error(err))
		return ""
	}
	return ticket.Number
}

func (s *SolicitudeService) checkTransition(request *domain.ServiceRequest, next domain.RequestState) error {
	if request.State.Terminal() {
		return util.NewConflict("request is in a terminal state", map[string]any{"state": request.State})
	}
	if !request.State.CanTransition(next) {
		return util.NewConflict("invalid state transition", map[string]any{
			"from": request.State,
			"to":   next,
		})
	}
	return nil
}

func (s *SolicitudeService) applyTransition(ctx context.Context, request *domain.ServiceRequest, next domain.RequestState, actor domain.TransitionActor, comment string) error {
	from := request.State
	request.State = next
	if err := s.requests.Update(ctx, request); err != nil {
		request.State = from
		return err
	}
	transition := &domain.RequestTransition{
		ServiceRequestID: request.ID,
		FromState:        from,
		ToState:          next,
		Actor:            actor,
		Comment:          comment,
	}
	if err := s.transitions.Create(ctx, transition); err != nil {
		s.logger.Error("transition history write failed",
			zap.String("request_id", request.ID), zap.Error(err))
	}
	s.logger.Info("request transitioned",
		zap.String("request_id", request.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("actor", string(actor)))
	return nil
}

func (s *SolicitudeService) lock(ctx context.Context, requestID string) (func(), error) {
	release, err := s.locks.Acquire(ctx, "service_request:"+requestID, requestLockTTL)
	if err != nil {
		if errors.Is(err, persistence.ErrLockHeld) {
			return nil, util.NewConflict("request is being modified by another operation", nil)
		}
		return nil, err
	}
	return release, nil
}

func (s *SolicitudeService) publish(ctx context.Context, eventType events.EventType, requestID string, actor domain.TransitionActor, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RequestID: requestID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
