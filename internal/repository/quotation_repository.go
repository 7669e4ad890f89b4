package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/property-backoffice/internal/domain"
)

// QuotationRepository encapsulates quotation persistence.
type QuotationRepository interface {
	Create(ctx context.Context, quotation *domain.Quotation) error
	Update(ctx context.Context, quotation *domain.Quotation) error
	GetByServiceRequest(ctx context.Context, serviceRequestID string) (*domain.Quotation, error)
}

type quotationRepository struct {
	pool *pgxpool.Pool
}

// NewQuotationRepository instantiates repository.
func NewQuotationRepository(pool *pgxpool.Pool) QuotationRepository {
	return &quotationRepository{pool: pool}
}

func (r *quotationRepository) Create(ctx context.Context, quotation *domain.Quotation) error {
	const query = `
        INSERT INTO quotations (service_request_id, file_ref, note, state)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		quotation.ServiceRequestID,
		quotation.FileRef,
		quotation.Note,
		quotation.State,
	).Scan(&quotation.ID, &quotation.CreatedAt)
}

func (r *quotationRepository) Update(ctx context.Context, quotation *domain.Quotation) error {
	const query = `
        UPDATE quotations SET file_ref=$1, note=$2, state=$3, decided_at=$4
        WHERE id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		quotation.FileRef,
		quotation.Note,
		quotation.State,
		quotation.DecidedAt,
		quotation.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *quotationRepository) GetByServiceRequest(ctx context.Context, serviceRequestID string) (*domain.Quotation, error) {
	const query = `
        SELECT id, service_request_id, file_ref, note, state, created_at, decided_at
        FROM quotations WHERE service_request_id=$1`
	var quotation domain.Quotation
	if err := r.pool.QueryRow(ctx, query, serviceRequestID).Scan(
		&quotation.ID,
		&quotation.ServiceRequestID,
		&quotation.FileRef,
		&quotation.Note,
		&quotation.State,
		&quotation.CreatedAt,
		&quotation.DecidedAt,
	); err != nil {
		return nil, err
	}
	return &quotation, nil
}
