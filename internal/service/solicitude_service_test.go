package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/domain"
	"github.com/spec-kit/property-backoffice/internal/erp"
	"github.com/spec-kit/property-backoffice/internal/events"
	"github.com/spec-kit/property-backoffice/internal/helpdesk"
	"github.com/spec-kit/property-backoffice/internal/persistence"
	"github.com/spec-kit/property-backoffice/internal/repository"
	"github.com/spec-kit/property-backoffice/pkg/util"
)

// ---- in-memory fakes ----

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[string]domain.ServiceRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]domain.ServiceRequest)}
}

func (r *fakeRequestRepo) Create(ctx context.Context, request *domain.ServiceRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	request.ID = uuid.NewString()
	r.requests[request.ID] = *request
	return nil
}

func (r *fakeRequestRepo) Update(ctx context.Context, request *domain.ServiceRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[request.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.requests[request.ID] = *request
	return nil
}

func (r *fakeRequestRepo) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := request
	return &copied, nil
}

func (r *fakeRequestRepo) GetByTicketID(ctx context.Context, ticketID int64) (*domain.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, request := range r.requests {
		if request.TicketID != nil && *request.TicketID == ticketID {
			copied := request
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeRequestRepo) GetByAvisoID(ctx context.Context, avisoID int64) (*domain.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, request := range r.requests {
		if request.AvisoID != nil && *request.AvisoID == avisoID {
			copied := request
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeRequestRepo) ListWithFilter(ctx context.Context, filter repository.ServiceRequestFilter) ([]domain.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.ServiceRequest
	for _, request := range r.requests {
		if filter.ResidentID != nil && request.ResidentID != *filter.ResidentID {
			continue
		}
		result = append(result, request)
	}
	return result, nil
}

type fakeQuotationRepo struct {
	mu         sync.Mutex
	quotations map[string]domain.Quotation // keyed by service request id
}

func newFakeQuotationRepo() *fakeQuotationRepo {
	return &fakeQuotationRepo{quotations: make(map[string]domain.Quotation)}
}

func (r *fakeQuotationRepo) Create(ctx context.Context, quotation *domain.Quotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quotations[quotation.ServiceRequestID]; ok {
		return errors.New("duplicate quotation")
	}
	quotation.ID = uuid.NewString()
	r.quotations[quotation.ServiceRequestID] = *quotation
	return nil
}

func (r *fakeQuotationRepo) Update(ctx context.Context, quotation *domain.Quotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotations[quotation.ServiceRequestID] = *quotation
	return nil
}

func (r *fakeQuotationRepo) GetByServiceRequest(ctx context.Context, serviceRequestID string) (*domain.Quotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	quotation, ok := r.quotations[serviceRequestID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := quotation
	return &copied, nil
}

type fakeTransitionRepo struct {
	mu          sync.Mutex
	transitions []domain.RequestTransition
}

func (r *fakeTransitionRepo) Create(ctx context.Context, transition *domain.RequestTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	transition.ID = uuid.NewString()
	r.transitions = append(r.transitions, *transition)
	return nil
}

func (r *fakeTransitionRepo) ListByRequest(ctx context.Context, serviceRequestID string, limit, offset int) ([]domain.RequestTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.RequestTransition
	for _, t := range r.transitions {
		if t.ServiceRequestID == serviceRequestID {
			result = append(result, t)
		}
	}
	return result, nil
}

type fakeServiceRepo struct {
	services map[string]domain.Service
}

func (r *fakeServiceRepo) GetByID(ctx context.Context, id string) (*domain.Service, error) {
	svc, ok := r.services[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &svc, nil
}

func (r *fakeServiceRepo) ListActive(ctx context.Context) ([]domain.Service, error) {
	var result []domain.Service
	for _, svc := range r.services {
		if svc.Active {
			result = append(result, svc)
		}
	}
	return result, nil
}

type fakePropertyRepo struct {
	owned map[string]string // property id -> resident id
}

func (r *fakePropertyRepo) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	if _, ok := r.owned[id]; !ok {
		return nil, pgx.ErrNoRows
	}
	return &domain.Property{ID: id, Active: true}, nil
}

func (r *fakePropertyRepo) ListByResident(ctx context.Context, residentID string) ([]domain.Property, error) {
	var result []domain.Property
	for propertyID, owner := range r.owned {
		if owner == residentID {
			result = append(result, domain.Property{ID: propertyID, Active: true})
		}
	}
	return result, nil
}

func (r *fakePropertyRepo) OwnedBy(ctx context.Context, residentID, propertyID string) (bool, error) {
	return r.owned[propertyID] == residentID, nil
}

type fakeHelpdesk struct {
	mu           sync.Mutex
	nextTicketID int64
	states       map[int64]string
	createErr    error
	changeErr    error
	stateCalls   []string
}

func newFakeHelpdesk() *fakeHelpdesk {
	return &fakeHelpdesk{nextTicketID: 100, states: make(map[int64]string)}
}

func (h *fakeHelpdesk) Create(ctx context.Context, topic, subject, body, priority string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return 0, h.createErr
	}
	h.nextTicketID++
	h.states[h.nextTicketID] = domain.TicketStateOpen
	return h.nextTicketID, nil
}

func (h *fakeHelpdesk) Get(ctx context.Context, ticketID int64) (*helpdesk.Ticket, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.states[ticketID]
	if !ok {
		return nil, errors.New("unknown ticket")
	}
	return &helpdesk.Ticket{ID: ticketID, Number: fmt.Sprintf("T-%d", ticketID), State: state}, nil
}

func (h *fakeHelpdesk) ChangeState(ctx context.Context, ticketID int64, state string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.changeErr != nil {
		return h.changeErr
	}
	h.states[ticketID] = state
	h.stateCalls = append(h.stateCalls, state)
	return nil
}

type fakeERP struct {
	mu          sync.Mutex
	nextAvisoID int64
	states      map[int64]string
	responsible string
	createErr   error
	changeErr   error
	infoErr     error
}

func newFakeERP() *fakeERP {
	return &fakeERP{nextAvisoID: 500, states: make(map[int64]string), responsible: "crew@example.com"}
}

func (e *fakeERP) CreateAviso(ctx context.Context, ticketID int64, sapCustomer int, serviceCode, note string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return 0, e.createErr
	}
	e.nextAvisoID++
	e.states[e.nextAvisoID] = domain.AvisoStateInitial
	return e.nextAvisoID, nil
}

func (e *fakeERP) Info(ctx context.Context, avisoID int64) (*erp.AvisoInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.infoErr != nil {
		return nil, e.infoErr
	}
	return &erp.AvisoInfo{
		AvisoState:       e.states[avisoID],
		ResponsibleEmail: e.responsible,
		QuotationFileRef: "quotes/estimate.pdf",
		QuotationNote:    "labor and materials",
	}, nil
}

func (e *fakeERP) ChangeState(ctx context.Context, avisoID int64, state string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.changeErr != nil {
		return e.changeErr
	}
	e.states[avisoID] = state
	return nil
}

func (e *fakeERP) Compensate(ctx context.Context, attempt *domain.PaymentAttempt, invoices []domain.Invoice, advances []domain.AdvancePayment) error {
	return nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}

// ---- fixture ----

type lifecycleFixture struct {
	svc         *SolicitudeService
	requests    *fakeRequestRepo
	quotations  *fakeQuotationRepo
	transitions *fakeTransitionRepo
	desk        *fakeHelpdesk
	erp         *fakeERP
	dispatcher  *recordingDispatcher
	locks       persistence.Locker
}

func newLifecycleFixture() *lifecycleFixture {
	requests := newFakeRequestRepo()
	quotations := newFakeQuotationRepo()
	transitions := &fakeTransitionRepo{}
	desk := newFakeHelpdesk()
	erpFake := newFakeERP()
	dispatcher := &recordingDispatcher{}
	locks := persistence.NewLocalLocker()

	svc := NewSolicitudeService(SolicitudeDependencies{
		RequestRepo:    requests,
		QuotationRepo:  quotations,
		TransitionRepo: transitions,
		ServiceRepo: &fakeServiceRepo{services: map[string]domain.Service{
			"svc-plumbing": {ID: "svc-plumbing", Name: "Plumbing", RequiresApproval: true, GeneratesAviso: true, Active: true},
		}},
		PropertyRepo: &fakePropertyRepo{owned: map[string]string{"prop-1": "resident-1"}},
		Helpdesk:     desk,
		ERP:          erpFake,
		Locks:        locks,
		Dispatcher:   dispatcher,
		Logger:       zap.NewNop(),
	})
	return &lifecycleFixture{
		svc:         svc,
		requests:    requests,
		quotations:  quotations,
		transitions: transitions,
		desk:        desk,
		erp:         erpFake,
		dispatcher:  dispatcher,
		locks:       locks,
	}
}

func (f *lifecycleFixture) createRequest(t *testing.T) *domain.ServiceRequest {
	t.Helper()
	request, err := f.svc.CreateRequest(context.Background(), RequestCreateInput{
		ResidentID:  "resident-1",
		PropertyID:  "prop-1",
		ServiceID:   "svc-plumbing",
		Note:        "leaking sink",
		Email:       "resident@example.com",
		SapCustomer: 4000,
	})
	require.NoError(t, err)
	return request
}

func (f *lifecycleFixture) advanceToWaitingQuotation(t *testing.T) *domain.ServiceRequest {
	t.Helper()
	request := f.createRequest(t)
	registered, err := f.svc.RegisterAviso(context.Background(), *request.TicketID)
	require.NoError(t, err)
	updated, err := f.svc.HandleAvisoState(context.Background(), *registered.AvisoID, domain.AvisoStateRequiresQuoteApproval)
	require.NoError(t, err)
	return updated
}

// ---- tests ----

func TestFullLifecycleHappyPath(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.createRequest(t)
	assert.Equal(t, domain.RequestStatePending, request.State)
	require.NotNil(t, request.TicketID)
	assert.Nil(t, request.AvisoID)

	registered, err := f.svc.RegisterAviso(ctx, *request.TicketID)
	require.NoError(t, err)
	require.NotNil(t, registered.AvisoID)

	waiting, err := f.svc.HandleAvisoState(ctx, *registered.AvisoID, domain.AvisoStateRequiresQuoteApproval)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStateWaitingQuotationApproval, waiting.State)

	quotation, err := f.quotations.GetByServiceRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuotationStatePending, quotation.State)
	assert.Equal(t, "quotes/estimate.pdf", quotation.FileRef)

	approved, err := f.svc.ApproveQuotation(ctx, "resident-1", request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStateQuotationApproved, approved.State)
	assert.Equal(t, domain.AvisoStateQuotationApproved, f.erp.states[*registered.AvisoID])

	workPending, err := f.svc.HandleAvisoState(ctx, *registered.AvisoID, domain.AvisoStateRequiresAcceptanceClosing)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStateWaitingWorkApproval, workPending.State)

	closed, err := f.svc.ApproveWork(ctx, "resident-1", request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStateApproved, closed.State)
	require.NotNil(t, closed.CloseDate)
	assert.Equal(t, domain.TicketStateClosed, f.desk.states[*request.TicketID])

	// quotation decision is persisted on the quotation record too
	quotation, err = f.quotations.GetByServiceRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuotationStateApproved, quotation.State)
	require.NotNil(t, quotation.DecidedAt)

	// a subject-bearing notification was queued for the quotation
	pending := f.dispatcher.byType(events.EventQuotationPending)
	require.Len(t, pending, 1)
	payload := pending[0].Payload.(events.QuotationPendingPayload)
	assert.Equal(t, "resident@example.com", payload.RequesterEmail)
	assert.NotEmpty(t, payload.TicketNumber)
}

func TestRejectQuotationIsTerminal(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.advanceToWaitingQuotation(t)

	rejected, err := f.svc.RejectQuotation(ctx, "resident-1", request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStateQuotationRejected, rejected.State)
	assert.True(t, rejected.State.Terminal())

	// every further trigger conflicts
	_, err = f.svc.ApproveQuotation(ctx, "resident-1", request.ID)
	assertConflict(t, err)
	_, err = f.svc.ApproveWork(ctx, "resident-1", request.ID)
	assertConflict(t, err)
	_, err = f.svc.HandleAvisoState(ctx, *rejected.AvisoID, domain.AvisoStateRequiresAcceptanceClosing)
	assertConflict(t, err)
}

func TestApproveWorkTwiceConflicts(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.advanceToWaitingQuotation(t)
	_, err := f.svc.ApproveQuotation(ctx, "resident-1", request.ID)
	require.NoError(t, err)
	_, err = f.svc.HandleAvisoState(ctx, *request.AvisoID, domain.AvisoStateRequiresAcceptanceClosing)
	require.NoError(t, err)

	_, err = f.svc.ApproveWork(ctx, "resident-1", request.ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveWork(ctx, "resident-1", request.ID)
	assertConflict(t, err)
}

func TestHelpdeskFailureLeavesNoLocalState(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	f.desk.createErr = errors.New("helpdesk down")
	_, err := f.svc.CreateRequest(ctx, RequestCreateInput{
		ResidentID: "resident-1",
		PropertyID: "prop-1",
		ServiceID:  "svc-plumbing",
		Email:      "resident@example.com",
	})
	require.Error(t, err)
	assert.Empty(t, f.requests.requests)
}

func TestAdapterFailureAbortsTransition(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.createRequest(t)
	registered, err := f.svc.RegisterAviso(ctx, *request.TicketID)
	require.NoError(t, err)

	f.desk.changeErr = errors.New("helpdesk down")
	_, err = f.svc.HandleAvisoState(ctx, *registered.AvisoID, domain.AvisoStateRequiresQuoteApproval)
	require.Error(t, err)

	// no partial mutation: still pending, no quotation row, no transition record
	stored, err := f.requests.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatePending, stored.State)
	_, err = f.quotations.GetByServiceRequest(ctx, request.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	history, err := f.transitions.ListByRequest(ctx, request.ID, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUnknownTicketAndAvisoReturnNotFound(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	_, err := f.svc.RegisterAviso(ctx, 999999)
	assertCode(t, err, "NOT_FOUND")

	_, err = f.svc.HandleAvisoState(ctx, 999999, domain.AvisoStateRequiresQuoteApproval)
	assertCode(t, err, "NOT_FOUND")
}

func TestUnknownAvisoStateIsUnprocessable(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.createRequest(t)
	registered, err := f.svc.RegisterAviso(ctx, *request.TicketID)
	require.NoError(t, err)

	_, err = f.svc.HandleAvisoState(ctx, *registered.AvisoID, "SOMETHING_ELSE")
	assertCode(t, err, "UNPROCESSABLE")
}

func TestAvisoAssignedOnlyOnce(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.createRequest(t)
	_, err := f.svc.RegisterAviso(ctx, *request.TicketID)
	require.NoError(t, err)

	_, err = f.svc.RegisterAviso(ctx, *request.TicketID)
	assertConflict(t, err)
}

func TestLockContentionConflicts(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.advanceToWaitingQuotation(t)

	release, err := f.locks.Acquire(ctx, "service_request:"+request.ID, requestLockTTL)
	require.NoError(t, err)
	defer release()

	_, err = f.svc.ApproveQuotation(ctx, "resident-1", request.ID)
	assertConflict(t, err)
}

func TestOwnershipEnforced(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.advanceToWaitingQuotation(t)

	_, err := f.svc.ApproveQuotation(ctx, "other-resident", request.ID)
	assertCode(t, err, "NOT_FOUND")
	_, err = f.svc.Get(ctx, "other-resident", request.ID)
	assertCode(t, err, "NOT_FOUND")
}

func TestRejectWorkNotifiesResponsible(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.advanceToWaitingQuotation(t)
	_, err := f.svc.ApproveQuotation(ctx, "resident-1", request.ID)
	require.NoError(t, err)
	_, err = f.svc.HandleAvisoState(ctx, *request.AvisoID, domain.AvisoStateRequiresAcceptanceClosing)
	require.NoError(t, err)

	rejected, err := f.svc.RejectWork(ctx, "resident-1", request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStateWorkRejected, rejected.State)
	assert.Nil(t, rejected.CloseDate)

	rejectedEvents := f.dispatcher.byType(events.EventWorkRejected)
	require.Len(t, rejectedEvents, 1)
	payload := rejectedEvents[0].Payload.(events.WorkDecidedPayload)
	assert.Equal(t, "crew@example.com", payload.ResponsibleEmail)
}

func TestDetailEmbedsQuotationAndTicketNumber(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	request := f.advanceToWaitingQuotation(t)

	detail, err := f.svc.Get(ctx, "resident-1", request.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Quotation)
	assert.Equal(t, fmt.Sprintf("T-%d", *request.TicketID), detail.TicketNumber)

	// a helpdesk outage degrades the ticket number instead of failing the read
	delete(f.desk.states, *request.TicketID)
	detail, err = f.svc.Get(ctx, "resident-1", request.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.TicketNumber)
}

// ---- helpers ----

func assertConflict(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, "CONFLICT")
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *util.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}
