package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/property-backoffice/internal/domain"
)

// PaymentAttemptRepository encapsulates payment attempt persistence.
// Transaction numbers come from a database sequence inside the INSERT, so
// they are strictly increasing even under concurrent creation.
type PaymentAttemptRepository interface {
	Create(ctx context.Context, attempt *domain.PaymentAttempt, invoices []domain.Invoice, advances []domain.AdvancePayment) error
	Update(ctx context.Context, attempt *domain.PaymentAttempt) error
	GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error)
	ListByResident(ctx context.Context, residentID string, limit, offset int) ([]domain.PaymentAttempt, error)
	ListAll(ctx context.Context, limit, offset int) ([]domain.PaymentAttempt, error)

	ListInvoices(ctx context.Context, attemptID string) ([]domain.Invoice, error)
	ListAdvances(ctx context.Context, attemptID string) ([]domain.AdvancePayment, error)
	SetDocumentStatuses(ctx context.Context, attemptID string, status domain.DocumentStatus) error

	HasGatewayExchange(ctx context.Context, attemptID string) (bool, error)
	CreateGatewayRequest(ctx context.Context, request *domain.GatewayRequest) error
	CreateGatewayResponse(ctx context.Context, response *domain.GatewayResponse) error

	AddCompensationError(ctx context.Context, compErr *domain.CompensationError) error
	ListCompensationErrors(ctx context.Context, attemptID string) ([]domain.CompensationError, error)
}

type paymentAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentAttemptRepository instantiates repository.
func NewPaymentAttemptRepository(pool *pgxpool.Pool) PaymentAttemptRepository {
	return &paymentAttemptRepository{pool: pool}
}

const attemptColumns = `id, resident_id, sap_customer, transaction, merchant_name, merchant_number,
       card_number, card_brand, status_process_payment, status_compensation, created_at`

func (r *paymentAttemptRepository) Create(ctx context.Context, attempt *domain.PaymentAttempt, invoices []domain.Invoice, advances []domain.AdvancePayment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO payment_attempts (resident_id, sap_customer, merchant_name, merchant_number,
            card_number, card_brand, status_process_payment, status_compensation)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, transaction, created_at`
	if err := tx.QueryRow(ctx, query,
		attempt.ResidentID,
		attempt.SapCustomer,
		attempt.MerchantName,
		attempt.MerchantNumber,
		attempt.CardNumber,
		attempt.CardBrand,
		attempt.StatusProcess,
		attempt.StatusComp,
	).Scan(&attempt.ID, &attempt.Transaction, &attempt.CreatedAt); err != nil {
		return err
	}

	const invoiceQuery = `
        INSERT INTO invoices (payment_attempt_id, amount, amount_dop, tax, currency, company,
            company_name, document_number, document_date, position, reference, merchant_number, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id`
	for i := range invoices {
		invoices[i].PaymentAttemptID = attempt.ID
		invoices[i].Status = domain.DocumentStatusPending
		if err := tx.QueryRow(ctx, invoiceQuery,
			invoices[i].PaymentAttemptID,
			invoices[i].Amount,
			invoices[i].AmountDOP,
			invoices[i].Tax,
			invoices[i].Currency,
			invoices[i].Company,
			invoices[i].CompanyName,
			invoices[i].DocumentNumber,
			invoices[i].DocumentDate,
			invoices[i].Position,
			invoices[i].Reference,
			invoices[i].MerchantNumber,
			invoices[i].Status,
		).Scan(&invoices[i].ID); err != nil {
			return err
		}
	}

	const advanceQuery = `
        INSERT INTO advance_payments (payment_attempt_id, amount, concept, description, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	for i := range advances {
		advances[i].PaymentAttemptID = attempt.ID
		advances[i].Status = domain.DocumentStatusPending
		if err := tx.QueryRow(ctx, advanceQuery,
			advances[i].PaymentAttemptID,
			advances[i].Amount,
			advances[i].Concept,
			advances[i].Description,
			advances[i].Status,
		).Scan(&advances[i].ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *paymentAttemptRepository) Update(ctx context.Context, attempt *domain.PaymentAttempt) error {
	const query = `
        UPDATE payment_attempts SET card_number=$1, card_brand=$2,
            status_process_payment=$3, status_compensation=$4
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		attempt.CardNumber,
		attempt.CardBrand,
		attempt.StatusProcess,
		attempt.StatusComp,
		attempt.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *paymentAttemptRepository) GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE id=$1`
	var attempt domain.PaymentAttempt
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&attempt.ID,
		&attempt.ResidentID,
		&attempt.SapCustomer,
		&attempt.Transaction,
		&attempt.MerchantName,
		&attempt.MerchantNumber,
		&attempt.CardNumber,
		&attempt.CardBrand,
		&attempt.StatusProcess,
		&attempt.StatusComp,
		&attempt.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *paymentAttemptRepository) ListByResident(ctx context.Context, residentID string, limit, offset int) ([]domain.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts
        WHERE resident_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, query, residentID, normalizeLimit(limit), normalizeOffset(offset))
}

func (r *paymentAttemptRepository) ListAll(ctx context.Context, limit, offset int) ([]domain.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts
        ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.list(ctx, query, normalizeLimit(limit), normalizeOffset(offset))
}

func (r *paymentAttemptRepository) list(ctx context.Context, query string, args ...any) ([]domain.PaymentAttempt, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PaymentAttempt
	for rows.Next() {
		var attempt domain.PaymentAttempt
		if err := rows.Scan(
			&attempt.ID,
			&attempt.ResidentID,
			&attempt.SapCustomer,
			&attempt.Transaction,
			&attempt.MerchantName,
			&attempt.MerchantNumber,
			&attempt.CardNumber,
			&attempt.CardBrand,
			&attempt.StatusProcess,
			&attempt.StatusComp,
			&attempt.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attempt)
	}
	return result, rows.Err()
}

func (r *paymentAttemptRepository) ListInvoices(ctx context.Context, attemptID string) ([]domain.Invoice, error) {
	const query = `
        SELECT id, payment_attempt_id, amount, amount_dop, tax, currency, company, company_name,
               document_number, document_date, position, reference, merchant_number, status
        FROM invoices WHERE payment_attempt_id=$1 ORDER BY document_number`
	rows, err := r.pool.Query(ctx, query, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Invoice
	for rows.Next() {
		var invoice domain.Invoice
		if err := rows.Scan(
			&invoice.ID,
			&invoice.PaymentAttemptID,
			&invoice.Amount,
			&invoice.AmountDOP,
			&invoice.Tax,
			&invoice.Currency,
			&invoice.Company,
			&invoice.CompanyName,
			&invoice.DocumentNumber,
			&invoice.DocumentDate,
			&invoice.Position,
			&invoice.Reference,
			&invoice.MerchantNumber,
			&invoice.Status,
		); err != nil {
			return nil, err
		}
		result = append(result, invoice)
	}
	return result, rows.Err()
}

func (r *paymentAttemptRepository) ListAdvances(ctx context.Context, attemptID string) ([]domain.AdvancePayment, error) {
	const query = `
        SELECT id, payment_attempt_id, amount, concept, description, status
        FROM advance_payments WHERE payment_attempt_id=$1`
	rows, err := r.pool.Query(ctx, query, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AdvancePayment
	for rows.Next() {
		var advance domain.AdvancePayment
		if err := rows.Scan(
			&advance.ID,
			&advance.PaymentAttemptID,
			&advance.Amount,
			&advance.Concept,
			&advance.Description,
			&advance.Status,
		); err != nil {
			return nil, err
		}
		result = append(result, advance)
	}
	return result, rows.Err()
}

func (r *paymentAttemptRepository) SetDocumentStatuses(ctx context.Context, attemptID string, status domain.DocumentStatus) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE invoices SET status=$1 WHERE payment_attempt_id=$2`, status, attemptID); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE advance_payments SET status=$1 WHERE payment_attempt_id=$2`, status, attemptID)
	return err
}

func (r *paymentAttemptRepository) HasGatewayExchange(ctx context.Context, attemptID string) (bool, error) {
	const query = `
        SELECT EXISTS (SELECT 1 FROM gateway_requests WHERE payment_attempt_id=$1)
            OR EXISTS (SELECT 1 FROM gateway_responses WHERE payment_attempt_id=$1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, attemptID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *paymentAttemptRepository) CreateGatewayRequest(ctx context.Context, request *domain.GatewayRequest) error {
	const query = `
        INSERT INTO gateway_requests (payment_attempt_id, order_number, amount, tax, store, card_number)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		request.PaymentAttemptID,
		request.OrderNumber,
		request.Amount,
		request.Tax,
		request.Store,
		request.CardNumber,
	).Scan(&request.ID, &request.CreatedAt)
}

func (r *paymentAttemptRepository) CreateGatewayResponse(ctx context.Context, response *domain.GatewayResponse) error {
	const query = `
        INSERT INTO gateway_responses (payment_attempt_id, response_code, authorization_code, order_id)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		response.PaymentAttemptID,
		response.ResponseCode,
		response.AuthorizationCode,
		response.OrderID,
	).Scan(&response.ID, &response.CreatedAt)
}

func (r *paymentAttemptRepository) AddCompensationError(ctx context.Context, compErr *domain.CompensationError) error {
	const query = `
        INSERT INTO compensation_errors (payment_attempt_id, sap_id, message)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		compErr.PaymentAttemptID,
		compErr.SapID,
		compErr.Message,
	).Scan(&compErr.ID, &compErr.CreatedAt)
}

func (r *paymentAttemptRepository) ListCompensationErrors(ctx context.Context, attemptID string) ([]domain.CompensationError, error) {
	const query = `
        SELECT id, payment_attempt_id, sap_id, message, created_at
        FROM compensation_errors WHERE payment_attempt_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CompensationError
	for rows.Next() {
		var compErr domain.CompensationError
		if err := rows.Scan(
			&compErr.ID,
			&compErr.PaymentAttemptID,
			&compErr.SapID,
			&compErr.Message,
			&compErr.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, compErr)
	}
	return result, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
