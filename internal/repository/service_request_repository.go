package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/property-backoffice/internal/domain"
)

// ServiceRequestFilter captures listing parameters.
type ServiceRequestFilter struct {
	ResidentID  *string
	PropertyID  *string
	States      []domain.RequestState
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// ServiceRequestRepository encapsulates service request persistence.
type ServiceRequestRepository interface {
	Create(ctx context.Context, request *domain.ServiceRequest) error
	Update(ctx context.Context, request *domain.ServiceRequest) error
	GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error)
	GetByTicketID(ctx context.Context, ticketID int64) (*domain.ServiceRequest, error)
	GetByAvisoID(ctx context.Context, avisoID int64) (*domain.ServiceRequest, error)
	ListWithFilter(ctx context.Context, filter ServiceRequestFilter) ([]domain.ServiceRequest, error)
}

type serviceRequestRepository struct {
	pool *pgxpool.Pool
}

// NewServiceRequestRepository instantiates repository.
func NewServiceRequestRepository(pool *pgxpool.Pool) ServiceRequestRepository {
	return &serviceRequestRepository{pool: pool}
}

const serviceRequestColumns = `id, resident_id, property_id, service_id, note, phone, email,
       sap_customer, requires_quotation, ticket_id, aviso_id, state, creation_date, close_date`

func (r *serviceRequestRepository) Create(ctx context.Context, request *domain.ServiceRequest) error {
	const query = `
        INSERT INTO service_requests (resident_id, property_id, service_id, note, phone, email,
            sap_customer, requires_quotation, ticket_id, aviso_id, state)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, creation_date`
	return r.pool.QueryRow(ctx, query,
		request.ResidentID,
		request.PropertyID,
		request.ServiceID,
		request.Note,
		request.Phone,
		request.Email,
		request.SapCustomer,
		request.RequiresQuotation,
		request.TicketID,
		request.AvisoID,
		request.State,
	).Scan(&request.ID, &request.CreationDate)
}

func (r *serviceRequestRepository) Update(ctx context.Context, request *domain.ServiceRequest) error {
	const query = `
        UPDATE service_requests SET note=$1, phone=$2, email=$3, ticket_id=$4, aviso_id=$5,
            state=$6, close_date=$7
        WHERE id=$8`
	cmd, err := r.pool.Exec(ctx, query,
		request.Note,
		request.Phone,
		request.Email,
		request.TicketID,
		request.AvisoID,
		request.State,
		request.CloseDate,
		request.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *serviceRequestRepository) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM service_requests WHERE id=$1`, serviceRequestColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *serviceRequestRepository) GetByTicketID(ctx context.Context, ticketID int64) (*domain.ServiceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM service_requests WHERE ticket_id=$1`, serviceRequestColumns)
	return r.fetchSingle(ctx, query, ticketID)
}

func (r *serviceRequestRepository) GetByAvisoID(ctx context.Context, avisoID int64) (*domain.ServiceRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM service_requests WHERE aviso_id=$1`, serviceRequestColumns)
	return r.fetchSingle(ctx, query, avisoID)
}

func (r *serviceRequestRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.ServiceRequest, error) {
	var request domain.ServiceRequest
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&request.ID,
		&request.ResidentID,
		&request.PropertyID,
		&request.ServiceID,
		&request.Note,
		&request.Phone,
		&request.Email,
		&request.SapCustomer,
		&request.RequiresQuotation,
		&request.TicketID,
		&request.AvisoID,
		&request.State,
		&request.CreationDate,
		&request.CloseDate,
	); err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *serviceRequestRepository) ListWithFilter(ctx context.Context, filter ServiceRequestFilter) ([]domain.ServiceRequest, error) {
	base := fmt.Sprintf(`SELECT %s FROM service_requests`, serviceRequestColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ResidentID != nil {
		args = append(args, *filter.ResidentID)
		clauses = append(clauses, fmt.Sprintf("resident_id=$%d", len(args)))
	}
	if filter.PropertyID != nil {
		args = append(args, *filter.PropertyID)
		clauses = append(clauses, fmt.Sprintf("property_id=$%d", len(args)))
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("creation_date >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("creation_date <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY creation_date DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ServiceRequest
	for rows.Next() {
		var request domain.ServiceRequest
		if err := rows.Scan(
			&request.ID,
			&request.ResidentID,
			&request.PropertyID,
			&request.ServiceID,
			&request.Note,
			&request.Phone,
			&request.Email,
			&request.SapCustomer,
			&request.RequiresQuotation,
			&request.TicketID,
			&request.AvisoID,
			&request.State,
			&request.CreationDate,
			&request.CloseDate,
		); err != nil {
			return nil, err
		}
		result = append(result, request)
	}
	return result, rows.Err()
}
