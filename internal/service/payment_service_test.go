package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/cardnet"
	"github.com/spec-kit/property-backoffice/internal/config"
	"github.com/spec-kit/property-backoffice/internal/domain"
	"github.com/spec-kit/property-backoffice/internal/erp"
	"github.com/spec-kit/property-backoffice/internal/events"
	"github.com/spec-kit/property-backoffice/internal/persistence"
)

// ---- fakes ----

type fakeAttemptRepo struct {
	mu          sync.Mutex
	sequence    int64
	attempts    map[string]domain.PaymentAttempt
	invoices    map[string][]domain.Invoice
	advances    map[string][]domain.AdvancePayment
	gwRequests  map[string]domain.GatewayRequest
	gwResponses map[string]domain.GatewayResponse
	compErrors  map[string][]domain.CompensationError
	docStatuses map[string]domain.DocumentStatus
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{
		attempts:    make(map[string]domain.PaymentAttempt),
		invoices:    make(map[string][]domain.Invoice),
		advances:    make(map[string][]domain.AdvancePayment),
		gwRequests:  make(map[string]domain.GatewayRequest),
		gwResponses: make(map[string]domain.GatewayResponse),
		compErrors:  make(map[string][]domain.CompensationError),
		docStatuses: make(map[string]domain.DocumentStatus),
	}
}

func (r *fakeAttemptRepo) Create(ctx context.Context, attempt *domain.PaymentAttempt, invoices []domain.Invoice, advances []domain.AdvancePayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequence++
	attempt.ID = uuid.NewString()
	attempt.Transaction = r.sequence
	r.attempts[attempt.ID] = *attempt
	r.invoices[attempt.ID] = append([]domain.Invoice{}, invoices...)
	r.advances[attempt.ID] = append([]domain.AdvancePayment{}, advances...)
	return nil
}

func (r *fakeAttemptRepo) Update(ctx context.Context, attempt *domain.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[attempt.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.attempts[attempt.ID] = *attempt
	return nil
}

func (r *fakeAttemptRepo) GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := attempt
	return &copied, nil
}

func (r *fakeAttemptRepo) ListByResident(ctx context.Context, residentID string, limit, offset int) ([]domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.PaymentAttempt
	for _, attempt := range r.attempts {
		if attempt.ResidentID == residentID {
			result = append(result, attempt)
		}
	}
	return result, nil
}

func (r *fakeAttemptRepo) ListAll(ctx context.Context, limit, offset int) ([]domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.PaymentAttempt
	for _, attempt := range r.attempts {
		result = append(result, attempt)
	}
	return result, nil
}

func (r *fakeAttemptRepo) ListInvoices(ctx context.Context, attemptID string) ([]domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Invoice{}, r.invoices[attemptID]...), nil
}

func (r *fakeAttemptRepo) ListAdvances(ctx context.Context, attemptID string) ([]domain.AdvancePayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AdvancePayment{}, r.advances[attemptID]...), nil
}

func (r *fakeAttemptRepo) SetDocumentStatuses(ctx context.Context, attemptID string, status domain.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docStatuses[attemptID] = status
	return nil
}

func (r *fakeAttemptRepo) HasGatewayExchange(ctx context.Context, attemptID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, hasReq := r.gwRequests[attemptID]
	_, hasResp := r.gwResponses[attemptID]
	return hasReq || hasResp, nil
}

func (r *fakeAttemptRepo) CreateGatewayRequest(ctx context.Context, request *domain.GatewayRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gwRequests[request.PaymentAttemptID]; ok {
		return errors.New("duplicate gateway request")
	}
	request.ID = uuid.NewString()
	r.gwRequests[request.PaymentAttemptID] = *request
	return nil
}

func (r *fakeAttemptRepo) CreateGatewayResponse(ctx context.Context, response *domain.GatewayResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gwResponses[response.PaymentAttemptID]; ok {
		return errors.New("duplicate gateway response")
	}
	response.ID = uuid.NewString()
	r.gwResponses[response.PaymentAttemptID] = *response
	return nil
}

func (r *fakeAttemptRepo) AddCompensationError(ctx context.Context, compErr *domain.CompensationError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	compErr.ID = uuid.NewString()
	r.compErrors[compErr.PaymentAttemptID] = append(r.compErrors[compErr.PaymentAttemptID], *compErr)
	return nil
}

func (r *fakeAttemptRepo) ListCompensationErrors(ctx context.Context, attemptID string) ([]domain.CompensationError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CompensationError{}, r.compErrors[attemptID]...), nil
}

type fakeCardRepo struct {
	mu    sync.Mutex
	cards map[string]domain.CreditCard
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: make(map[string]domain.CreditCard)}
}

func (r *fakeCardRepo) Create(ctx context.Context, card *domain.CreditCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	card.ID = uuid.NewString()
	r.cards[card.ID] = *card
	return nil
}

func (r *fakeCardRepo) GetByID(ctx context.Context, id string) (*domain.CreditCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := card
	return &copied, nil
}

func (r *fakeCardRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.CreditCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.CreditCard
	for _, card := range r.cards {
		if card.OwnerID == ownerID && card.Status == domain.CreditCardStatusValid {
			result = append(result, card)
		}
	}
	return result, nil
}

func (r *fakeCardRepo) MarkDeleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	if !ok {
		return pgx.ErrNoRows
	}
	card.Status = domain.CreditCardStatusDeleted
	r.cards[id] = card
	return nil
}

type fakeGateway struct {
	mu          sync.Mutex
	approve     bool
	vaultToken  string
	chargeErr   error
	deleteErr   error
	chargeCalls int
	lastCharge  cardnet.ChargeInput
}

func (g *fakeGateway) Charge(ctx context.Context, input cardnet.ChargeInput) (*cardnet.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	g.chargeCalls++
	g.lastCharge = input
	result := &cardnet.ChargeResult{
		Approved:     g.approve,
		ResponseCode: "51",
		CardLastFour: "4242",
		CardBrand:    "VISA",
	}
	if g.approve {
		result.ResponseCode = "00"
		result.AuthorizationCode = "AUTH123"
		result.OrderID = "ORD-1"
	}
	if g.approve && input.SaveToVault {
		result.DataVaultToken = g.vaultToken
		result.DataVaultBrand = "VISA"
		result.DataVaultExpiration = "202812"
	}
	return result, nil
}

func (g *fakeGateway) DeleteCard(ctx context.Context, token, merchantNumber string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deleteErr
}

type fakeCompERP struct {
	mu          sync.Mutex
	compErr     error
	compensated []string
}

func (e *fakeCompERP) CreateAviso(ctx context.Context, ticketID int64, sapCustomer int, serviceCode, note string) (int64, error) {
	return 0, errors.New("not used")
}

func (e *fakeCompERP) Info(ctx context.Context, avisoID int64) (*erp.AvisoInfo, error) {
	return nil, errors.New("not used")
}

func (e *fakeCompERP) ChangeState(ctx context.Context, avisoID int64, state string) error {
	return errors.New("not used")
}

func (e *fakeCompERP) Compensate(ctx context.Context, attempt *domain.PaymentAttempt, invoices []domain.Invoice, advances []domain.AdvancePayment) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.compErr != nil {
		return e.compErr
	}
	e.compensated = append(e.compensated, attempt.ID)
	return nil
}

// ---- fixture ----

type paymentFixture struct {
	svc      *PaymentService
	attempts *fakeAttemptRepo
	cards    *fakeCardRepo
	gateway  *fakeGateway
	erp      *fakeCompERP
	events   *recordingDispatcher
}

func newPaymentFixture() *paymentFixture {
	attempts := newFakeAttemptRepo()
	cards := newFakeCardRepo()
	gateway := &fakeGateway{approve: true, vaultToken: "dv-token-1"}
	compERP := &fakeCompERP{}
	dispatcher := &recordingDispatcher{}

	svc := NewPaymentService(PaymentDependencies{
		AttemptRepo: attempts,
		CardRepo:    cards,
		Gateway:     gateway,
		ERP:         compERP,
		Locks:       persistence.NewLocalLocker(),
		Dispatcher:  dispatcher,
		Logger:      zap.NewNop(),
		GatewayCfg: config.GatewayConfig{
			MerchantName:   "Property Backoffice",
			MerchantNumber: "349000000",
		},
	})
	return &paymentFixture{
		svc:      svc,
		attempts: attempts,
		cards:    cards,
		gateway:  gateway,
		erp:      compERP,
		events:   dispatcher,
	}
}

func (f *paymentFixture) createAttempt(t *testing.T) *AttemptDetail {
	t.Helper()
	detail, err := f.svc.CreateAttempt(context.Background(), AttemptCreateInput{
		ResidentID:  "resident-1",
		SapCustomer: 4000,
		Invoices: []InvoiceInput{
			{Amount: 10000, AmountDOP: 10000, Tax: 1800, Currency: "DOP", Reference: "INV-1"},
		},
		Advances: []AdvanceInput{
			{Amount: 2500, Concept: "ADV-1"},
		},
	})
	require.NoError(t, err)
	return detail
}

func inlineCard() CardInput {
	return CardInput{Number: "4111111111111111", ExpirationDate: "202812", CVC: "123"}
}

// ---- tests ----

func TestChargeHappyPathCompensates(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	detail := f.createAttempt(t)
	outcome, err := f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, inlineCard())
	require.NoError(t, err)

	assert.True(t, outcome.Approved)
	assert.Equal(t, "00", outcome.ResponseCode)
	assert.Equal(t, domain.ProcessPaymentApproved, outcome.Attempt.StatusProcess)
	assert.Equal(t, domain.CompensationCompensated, outcome.Attempt.StatusComp)
	assert.Equal(t, domain.DocumentStatusCompensated, f.attempts.docStatuses[detail.Attempt.ID])
	assert.Equal(t, []string{detail.Attempt.ID}, f.erp.compensated)

	// charge amount is the line total, tax the invoice tax sum
	assert.Equal(t, int64(12500), f.gateway.lastCharge.Amount)
	assert.Equal(t, int64(1800), f.gateway.lastCharge.Tax)

	approved := f.events.byType(events.EventPaymentApproved)
	require.Len(t, approved, 1)
}

func TestChargeIsAtMostOnce(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	detail := f.createAttempt(t)
	_, err := f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, inlineCard())
	require.NoError(t, err)

	_, err = f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, inlineCard())
	assertConflict(t, err)
	assert.Equal(t, 1, f.gateway.chargeCalls)
}

func TestDeclinedChargeIsPersisted(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.approve = false
	ctx := context.Background()

	detail := f.createAttempt(t)
	outcome, err := f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, inlineCard())
	require.NoError(t, err)

	assert.False(t, outcome.Approved)
	assert.Equal(t, domain.ProcessPaymentNotApproved, outcome.Attempt.StatusProcess)
	assert.Equal(t, domain.CompensationInitial, outcome.Attempt.StatusComp)
	assert.Empty(t, f.erp.compensated)

	// the decline still counts as the attempt's single exchange
	exchanged, err := f.attempts.HasGatewayExchange(ctx, detail.Attempt.ID)
	require.NoError(t, err)
	assert.True(t, exchanged)
	_, err = f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, inlineCard())
	assertConflict(t, err)
}

func TestCompensationFailureKeepsCharge(t *testing.T) {
	f := newPaymentFixture()
	f.erp.compErr = &erp.CompensationFailure{Lines: []erp.CompensationLine{
		{SapID: "INV-1", Message: "document already cleared"},
		{SapID: "ADV-1", Message: "unknown concept"},
	}}
	ctx := context.Background()

	detail := f.createAttempt(t)
	outcome, err := f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, inlineCard())
	require.NoError(t, err)

	// the charge stands even though compensation failed
	assert.True(t, outcome.Approved)
	assert.Equal(t, domain.ProcessPaymentApproved, outcome.Attempt.StatusProcess)
	assert.Equal(t, domain.CompensationNotCompensated, outcome.Attempt.StatusComp)
	assert.Equal(t, domain.DocumentStatusNotCompensated, f.attempts.docStatuses[detail.Attempt.ID])

	require.Len(t, outcome.CompensationErrors, 2)
	assert.Equal(t, "INV-1", outcome.CompensationErrors[0].SapID)

	stored, err := f.attempts.ListCompensationErrors(ctx, detail.Attempt.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	failed := f.events.byType(events.EventCompensationFailed)
	require.Len(t, failed, 1)
	payload := failed[0].Payload.(events.CompensationFailedPayload)
	assert.Equal(t, 2, payload.LineCount)
}

func TestTransactionNumbersAreStrictlyIncreasing(t *testing.T) {
	f := newPaymentFixture()

	var previous int64
	for i := 0; i < 5; i++ {
		detail := f.createAttempt(t)
		assert.Greater(t, detail.Attempt.Transaction, previous)
		previous = detail.Attempt.Transaction
	}
}

func TestChargeRejectsZeroTotal(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	detail, err := f.svc.CreateAttempt(ctx, AttemptCreateInput{
		ResidentID: "resident-1",
		Invoices:   []InvoiceInput{{AmountDOP: 0}},
	})
	require.NoError(t, err)

	_, err = f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, inlineCard())
	assertCode(t, err, "VALIDATION_FAILED")
	assert.Equal(t, 0, f.gateway.chargeCalls)
}

func TestEmptyAttemptRejected(t *testing.T) {
	f := newPaymentFixture()

	_, err := f.svc.CreateAttempt(context.Background(), AttemptCreateInput{ResidentID: "resident-1"})
	assertCode(t, err, "VALIDATION_FAILED")
}

func TestCardIsVaultedOnSave(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	detail := f.createAttempt(t)
	card := inlineCard()
	card.Save = true
	card.Name = "personal visa"

	_, err := f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, card)
	require.NoError(t, err)

	cards, err := f.svc.ListCards(ctx, "resident-1")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "dv-token-1", cards[0].Token)
	assert.Equal(t, "4242", cards[0].LastFour)
	assert.Equal(t, domain.CreditCardStatusValid, cards[0].Status)
}

func TestChargeWithSavedCardUsesToken(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	saved := &domain.CreditCard{
		OwnerID: "resident-1",
		Token:   "dv-existing",
		Status:  domain.CreditCardStatusValid,
	}
	require.NoError(t, f.cards.Create(ctx, saved))

	detail := f.createAttempt(t)
	_, err := f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, CardInput{CardUUID: saved.ID})
	require.NoError(t, err)
	assert.Equal(t, "dv-existing", f.gateway.lastCharge.Token)
	assert.Empty(t, f.gateway.lastCharge.CardNumber)
}

func TestSavedCardOwnershipEnforced(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	saved := &domain.CreditCard{
		OwnerID: "someone-else",
		Token:   "dv-foreign",
		Status:  domain.CreditCardStatusValid,
	}
	require.NoError(t, f.cards.Create(ctx, saved))

	detail := f.createAttempt(t)
	_, err := f.svc.Charge(ctx, "resident-1", "resident@example.com", detail.Attempt.ID, CardInput{CardUUID: saved.ID})
	assertCode(t, err, "NOT_FOUND")
	assert.Equal(t, 0, f.gateway.chargeCalls)
}

func TestDeleteCardGatewayFirst(t *testing.T) {
	f := newPaymentFixture()
	ctx := context.Background()

	saved := &domain.CreditCard{
		OwnerID: "resident-1",
		Token:   "dv-existing",
		Status:  domain.CreditCardStatusValid,
	}
	require.NoError(t, f.cards.Create(ctx, saved))

	require.NoError(t, f.svc.DeleteCard(ctx, "resident-1", saved.ID))
	cards, err := f.svc.ListCards(ctx, "resident-1")
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestDeleteCardNotDeletable(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.deleteErr = cardnet.ErrCardNotDeletable
	ctx := context.Background()

	saved := &domain.CreditCard{
		OwnerID: "resident-1",
		Token:   "dv-existing",
		Status:  domain.CreditCardStatusValid,
	}
	require.NoError(t, f.cards.Create(ctx, saved))

	err := f.svc.DeleteCard(ctx, "resident-1", saved.ID)
	assertCode(t, err, "VALIDATION_FAILED")

	// card stays usable when the vault refuses the delete
	cards, listErr := f.svc.ListCards(ctx, "resident-1")
	require.NoError(t, listErr)
	assert.Len(t, cards, 1)
}
