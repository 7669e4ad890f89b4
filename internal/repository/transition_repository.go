package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/property-backoffice/internal/domain"
)

// TransitionRepository records the state change history of a service request.
type TransitionRepository interface {
	Create(ctx context.Context, transition *domain.RequestTransition) error
	ListByRequest(ctx context.Context, serviceRequestID string, limit, offset int) ([]domain.RequestTransition, error)
}

type transitionRepository struct {
	pool *pgxpool.Pool
}

// NewTransitionRepository instantiates repository.
func NewTransitionRepository(pool *pgxpool.Pool) TransitionRepository {
	return &transitionRepository{pool: pool}
}

func (r *transitionRepository) Create(ctx context.Context, transition *domain.RequestTransition) error {
	const query = `
        INSERT INTO request_transitions (service_request_id, from_state, to_state, actor, comment)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		transition.ServiceRequestID,
		transition.FromState,
		transition.ToState,
		transition.Actor,
		transition.Comment,
	).Scan(&transition.ID, &transition.CreatedAt)
}

func (r *transitionRepository) ListByRequest(ctx context.Context, serviceRequestID string, limit, offset int) ([]domain.RequestTransition, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, service_request_id, from_state, to_state, actor, comment, created_at
        FROM request_transitions
        WHERE service_request_id=$1
        ORDER BY created_at ASC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, serviceRequestID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RequestTransition
	for rows.Next() {
		var transition domain.RequestTransition
		if err := rows.Scan(
			&transition.ID,
			&transition.ServiceRequestID,
			&transition.FromState,
			&transition.ToState,
			&transition.Actor,
			&transition.Comment,
			&transition.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, transition)
	}
	return result, rows.Err()
}
