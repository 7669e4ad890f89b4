package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/property-backoffice/internal/cardnet"
	"github.com/spec-kit/property-backoffice/internal/config"
	"github.com/spec-kit/property-backoffice/internal/domain"
	"github.com/spec-kit/property-backoffice/internal/erp"
	"github.com/spec-kit/property-backoffice/internal/events"
	"github.com/spec-kit/property-backoffice/internal/persistence"
	"github.com/spec-kit/property-backoffice/internal/repository"
	"github.com/spec-kit/property-backoffice/pkg/util"
)

const paymentLockTTL = 60 * time.Second

// PaymentService drives payment attempts: one gateway charge per attempt and
// an ERP compensation that never reverses a settled charge.
type PaymentService struct {
	attempts repository.PaymentAttemptRepository
	cards    repository.CreditCardRepository
	gateway  cardnet.Client
	erp      erp.Client
	locks    persistence.Locker
	dispatch events.Dispatcher
	logger   *zap.Logger
	cfg      config.GatewayConfig
}

// PaymentDependencies bundles collaborators for the payment service.
type PaymentDependencies struct {
	AttemptRepo repository.PaymentAttemptRepository
	CardRepo    repository.CreditCardRepository
	Gateway     cardnet.Client
	ERP         erp.Client
	Locks       persistence.Locker
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	GatewayCfg  config.GatewayConfig
}

// NewPaymentService constructs the service.
func NewPaymentService(deps PaymentDependencies) *PaymentService {
	return &PaymentService{
		attempts: deps.AttemptRepo,
		cards:    deps.CardRepo,
		gateway:  deps.Gateway,
		erp:      deps.ERP,
		locks:    deps.Locks,
		dispatch: deps.Dispatcher,
		logger:   deps.Logger,
		cfg:      deps.GatewayCfg,
	}
}

// InvoiceInput is one outstanding document to pay. Amounts in cents.
type InvoiceInput struct {
	Amount         int64
	AmountDOP      int64
	Tax            int64
	Currency       string
	Company        int
	CompanyName    string
	DocumentNumber int64
	DocumentDate   time.Time
	Position       string
	Reference      string
	MerchantNumber string
}

// AdvanceInput is one prepaid line item. Amount in cents.
type AdvanceInput struct {
	Amount      int64
	Concept     string
	Description string
}

// AttemptCreateInput describes a new payment attempt.
type AttemptCreateInput struct {
	ResidentID  string
	SapCustomer int
	Invoices    []InvoiceInput
	Advances    []AdvanceInput
}

// CardInput is an inline card or a reference to a vaulted one.
type CardInput struct {
	Number         string
	ExpirationDate string
	CVC            string
	Name           string
	Save           bool

	CardUUID string
}

// ChargeOutcome is the service-level result of a charge trigger.
type ChargeOutcome struct {
	Attempt            domain.PaymentAttempt
	Approved           bool
	ResponseCode       string
	ResponseMessage    string
	AuthorizationCode  string
	OrderID            string
	CompensationErrors []domain.CompensationError
}

// AttemptDetail is the read model for a single attempt.
type AttemptDetail struct {
	Attempt  domain.PaymentAttempt
	Invoices []domain.Invoice
	Advances []domain.AdvancePayment
	Errors   []domain.CompensationError
}

// CreateAttempt registers a payment attempt with its line items. The
// transaction number comes from the database sequence.
func (p *PaymentService) CreateAttempt(ctx context.Context, input AttemptCreateInput) (*AttemptDetail, error) {
	if len(input.Invoices) == 0 && len(input.Advances) == 0 {
		return nil, util.NewValidationError("attempt needs at least one line item", nil)
	}

	attempt := &domain.PaymentAttempt{
		ResidentID:     input.ResidentID,
		SapCustomer:    input.SapCustomer,
		MerchantName:   p.cfg.MerchantName,
		MerchantNumber: p.cfg.MerchantNumber,
		StatusProcess:  domain.ProcessPaymentInitial,
		StatusComp:     domain.CompensationInitial,
	}
	invoices := make([]domain.Invoice, 0, len(input.Invoices))
	for _, in := range input.Invoices {
		invoices = append(invoices, domain.Invoice{
			Amount:         in.Amount,
			AmountDOP:      in.AmountDOP,
			Tax:            in.Tax,
			Currency:       in.Currency,
			Company:        in.Company,
			CompanyName:    in.CompanyName,
			DocumentNumber: in.DocumentNumber,
			DocumentDate:   in.DocumentDate,
			Position:       in.Position,
			Reference:      in.Reference,
			MerchantNumber: in.MerchantNumber,
			Status:         domain.DocumentStatusPending,
		})
	}
	advances := make([]domain.AdvancePayment, 0, len(input.Advances))
	for _, in := range input.Advances {
		advances = append(advances, domain.AdvancePayment{
			Amount:      in.Amount,
			Concept:     in.Concept,
			Description: in.Description,
			Status:      domain.DocumentStatusPending,
		})
	}

	if err := p.attempts.Create(ctx, attempt, invoices, advances); err != nil {
		return nil, err
	}
	p.logger.Info("payment attempt created",
		zap.String("attempt_id", attempt.ID),
		zap.Int64("transaction", attempt.Transaction))
	return p.detail(ctx, attempt)
}

// Get returns an attempt with its lines, enforcing ownership for residents.
func (p *PaymentService) Get(ctx context.Context, residentID, attemptID string, backoffice bool) (*AttemptDetail, error) {
	attempt, err := p.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("payment attempt", map[string]any{"id": attemptID})
		}
		return nil, err
	}
	if !backoffice && attempt.ResidentID != residentID {
		return nil, util.NewNotFound("payment attempt", map[string]any{"id": attemptID})
	}
	return p.detail(ctx, attempt)
}

// List returns a resident's attempts, or every attempt for back office.
func (p *PaymentService) List(ctx context.Context, residentID string, backoffice bool, limit, offset int) ([]domain.PaymentAttempt, error) {
	if backoffice {
		return p.attempts.ListAll(ctx, limit, offset)
	}
	return p.attempts.ListByResident(ctx, residentID, limit, offset)
}

// Charge sends the attempt's single gateway charge and, when approved,
// compensates the documents in the ERP. A compensation failure is recorded
// but never fails the trigger: the charge stands.
func (p *PaymentService) Charge(ctx context.Context, residentID, residentEmail, attemptID string, card CardInput) (*ChargeOutcome, error) {
	release, err := p.lock(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, err := p.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("payment attempt", map[string]any{"id": attemptID})
		}
		return nil, err
	}
	if attempt.ResidentID != residentID {
		return nil, util.NewNotFound("payment attempt", map[string]any{"id": attemptID})
	}
	if attempt.StatusProcess.Settled() {
		return nil, util.NewConflict("attempt already processed", map[string]any{"status": attempt.StatusProcess})
	}
	exchanged, err := p.attempts.HasGatewayExchange(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	if exchanged {
		return nil, util.NewConflict("attempt already has a gateway exchange", nil)
	}

	invoices, err := p.attempts.ListInvoices(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	advances, err := p.attempts.ListAdvances(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	total := domain.Total(invoices, advances)
	if total <= 0 {
		return nil, util.NewValidationError("attempt total must be positive", map[string]any{"total": total})
	}

	charge := cardnet.ChargeInput{
		OrderNumber:    attempt.Transaction,
		Amount:         total,
		Tax:            domain.TotalTax(invoices),
		MerchantName:   attempt.MerchantName,
		MerchantNumber: attempt.MerchantNumber,
		SaveToVault:    card.Save,
	}
	if card.CardUUID != "" {
		saved, err := p.cards.GetByID(ctx, card.CardUUID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, util.NewNotFound("credit card", map[string]any{"id": card.CardUUID})
			}
			return nil, err
		}
		if saved.OwnerID != residentID || saved.Status != domain.CreditCardStatusValid {
			return nil, util.NewNotFound("credit card", map[string]any{"id": card.CardUUID})
		}
		charge.Token = saved.Token
		charge.SaveToVault = false
	} else {
		if card.Number == "" || card.ExpirationDate == "" || card.CVC == "" {
			return nil, util.NewValidationError("card data incomplete", nil)
		}
		charge.CardNumber = card.Number
		charge.ExpirationDate = card.ExpirationDate
		charge.CVC = card.CVC
	}

	result, err := p.gateway.Charge(ctx, charge)
	if err != nil {
		return nil, util.NewExternalFailure("gateway", err)
	}

	// The exchange happened, record it whatever the outcome was.
	if err := p.attempts.CreateGatewayRequest(ctx, &domain.GatewayRequest{
		PaymentAttemptID: attempt.ID,
		OrderNumber:      attempt.Transaction,
		Amount:           total,
		Tax:              charge.Tax,
		Store:            attempt.MerchantNumber,
		CardNumber:       result.CardLastFour,
	}); err != nil {
		return nil, err
	}
	if err := p.attempts.CreateGatewayResponse(ctx, &domain.GatewayResponse{
		PaymentAttemptID:  attempt.ID,
		ResponseCode:      result.ResponseCode,
		AuthorizationCode: result.AuthorizationCode,
		OrderID:           result.OrderID,
	}); err != nil {
		return nil, err
	}

	attempt.CardNumber = result.CardLastFour
	attempt.CardBrand = result.CardBrand
	outcome := &ChargeOutcome{
		Approved:          result.Approved,
		ResponseCode:      result.ResponseCode,
		ResponseMessage:   result.ResponseMessage,
		AuthorizationCode: result.AuthorizationCode,
		OrderID:           result.OrderID,
	}

	if !result.Approved {
		attempt.StatusProcess = domain.ProcessPaymentNotApproved
		if err := p.attempts.Update(ctx, attempt); err != nil {
			return nil, err
		}
		outcome.Attempt = *attempt
		p.logger.Info("gateway declined charge",
			zap.String("attempt_id", attempt.ID),
			zap.String("response_code", result.ResponseCode))
		return outcome, nil
	}

	attempt.StatusProcess = domain.ProcessPaymentApproved
	if err := p.attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}

	if card.Save && result.DataVaultToken != "" {
		p.vaultCard(ctx, residentID, card.Name, result)
	}

	p.compensate(ctx, attempt, invoices, advances, outcome)
	outcome.Attempt = *attempt

	p.publish(ctx, events.EventPaymentApproved, events.PaymentApprovedPayload{
		ResidentEmail:     residentEmail,
		Transaction:       attempt.Transaction,
		Amount:            total,
		AuthorizationCode: result.AuthorizationCode,
	})
	return outcome, nil
}

// compensate reconciles the settled charge against the ERP. Failures mark the
// attempt not_compensated and record per-line errors; the charge is final.
func (p *PaymentService) compensate(ctx context.Context, attempt *domain.PaymentAttempt, invoices []domain.Invoice, advances []domain.AdvancePayment, outcome *ChargeOutcome) {
	err := p.erp.Compensate(ctx, attempt, invoices, advances)
	if err == nil {
		attempt.StatusComp = domain.CompensationCompensated
		if updateErr := p.attempts.Update(ctx, attempt); updateErr != nil {
			p.logger.Error("compensation status update failed",
				zap.String("attempt_id", attempt.ID), zap.Error(updateErr))
		}
		if docErr := p.attempts.SetDocumentStatuses(ctx, attempt.ID, domain.DocumentStatusCompensated); docErr != nil {
			p.logger.Error("document status update failed",
				zap.String("attempt_id", attempt.ID), zap.Error(docErr))
		}
		return
	}

	attempt.StatusComp = domain.CompensationNotCompensated
	if updateErr := p.attempts.Update(ctx, attempt); updateErr != nil {
		p.logger.Error("compensation status update failed",
			zap.String("attempt_id", attempt.ID), zap.Error(updateErr))
	}
	if docErr := p.attempts.SetDocumentStatuses(ctx, attempt.ID, domain.DocumentStatusNotCompensated); docErr != nil {
		p.logger.Error("document status update failed",
			zap.String("attempt_id", attempt.ID), zap.Error(docErr))
	}

	lineCount := 0
	var failure *erp.CompensationFailure
	if errors.As(err, &failure) {
		lineCount = len(failure.Lines)
		for _, line := range failure.Lines {
			compErr := &domain.CompensationError{
				PaymentAttemptID: attempt.ID,
				SapID:            line.SapID,
				Message:          line.Message,
			}
			if addErr := p.attempts.AddCompensationError(ctx, compErr); addErr != nil {
				p.logger.Error("compensation error record failed",
					zap.String("attempt_id", attempt.ID), zap.Error(addErr))
				continue
			}
			outcome.CompensationErrors = append(outcome.CompensationErrors, *compErr)
		}
	}
	p.logger.Error("erp compensation failed, charge stands",
		zap.String("attempt_id", attempt.ID),
		zap.Int64("transaction", attempt.Transaction),
		zap.Error(err))

	p.publish(ctx, events.EventCompensationFailed, events.CompensationFailedPayload{
		PaymentAttemptID: attempt.ID,
		Transaction:      attempt.Transaction,
		LineCount:        lineCount,
	})
}

func (p *PaymentService) vaultCard(ctx context.Context, ownerID, name string, result *cardnet.ChargeResult) {
	card := &domain.CreditCard{
		OwnerID:             ownerID,
		Name:                name,
		Brand:               result.DataVaultBrand,
		Token:               result.DataVaultToken,
		LastFour:            result.CardLastFour,
		MerchantNumber:      p.cfg.MerchantNumber,
		DataVaultExpiration: result.DataVaultExpiration,
		Status:              domain.CreditCardStatusValid,
	}
	if err := p.cards.Create(ctx, card); err != nil {
		p.logger.Error("card vaulting failed",
			zap.String("owner_id", ownerID), zap.Error(err))
		return
	}
	p.logger.Info("card vaulted",
		zap.String("owner_id", ownerID), zap.String("card_id", card.ID))
}

// ListCards returns the caller's vaulted cards.
func (p *PaymentService) ListCards(ctx context.Context, ownerID string) ([]domain.CreditCard, error) {
	return p.cards.ListByOwner(ctx, ownerID)
}

// DeleteCard drops a vaulted card, gateway side first.
func (p *PaymentService) DeleteCard(ctx context.Context, ownerID, cardID string) error {
	card, err := p.cards.GetByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("credit card", map[string]any{"id": cardID})
		}
		return err
	}
	if card.OwnerID != ownerID || card.Status != domain.CreditCardStatusValid {
		return util.NewNotFound("credit card", map[string]any{"id": cardID})
	}

	if err := p.gateway.DeleteCard(ctx, card.Token, card.MerchantNumber); err != nil {
		if errors.Is(err, cardnet.ErrCardNotDeletable) {
			return util.NewValidationError("card could not be deleted", map[string]any{"id": cardID})
		}
		return util.NewExternalFailure("gateway", err)
	}
	return p.cards.MarkDeleted(ctx, cardID)
}

func (p *PaymentService) detail(ctx context.Context, attempt *domain.PaymentAttempt) (*AttemptDetail, error) {
	invoices, err := p.attempts.ListInvoices(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	advances, err := p.attempts.ListAdvances(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	compErrors, err := p.attempts.ListCompensationErrors(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	return &AttemptDetail{
		Attempt:  *attempt,
		Invoices: invoices,
		Advances: advances,
		Errors:   compErrors,
	}, nil
}

func (p *PaymentService) lock(ctx context.Context, attemptID string) (func(), error) {
	release, err := p.locks.Acquire(ctx, "payment_attempt:"+attemptID, paymentLockTTL)
	if err != nil {
		if errors.Is(err, persistence.ErrLockHeld) {
			return nil, util.NewConflict("attempt is being processed by another operation", nil)
		}
		return nil, err
	}
	return release, nil
}

func (p *PaymentService) publish(ctx context.Context, eventType events.EventType, payload any) {
	if p.dispatch == nil {
		return
	}
	_ = p.dispatch.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Actor:     domain.ActorSystem,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
