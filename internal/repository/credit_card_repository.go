package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/property-backoffice/internal/domain"
)

// CreditCardRepository encapsulates vaulted card persistence.
type CreditCardRepository interface {
	Create(ctx context.Context, card *domain.CreditCard) error
	GetByID(ctx context.Context, id string) (*domain.CreditCard, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.CreditCard, error)
	MarkDeleted(ctx context.Context, id string) error
}

type creditCardRepository struct {
	pool *pgxpool.Pool
}

// NewCreditCardRepository instantiates repository.
func NewCreditCardRepository(pool *pgxpool.Pool) CreditCardRepository {
	return &creditCardRepository{pool: pool}
}

const creditCardColumns = `id, owner_id, name, brand, token, last_four, merchant_number,
       data_vault_expiration, status, created_at`

func (r *creditCardRepository) Create(ctx context.Context, card *domain.CreditCard) error {
	const query = `
        INSERT INTO credit_cards (owner_id, name, brand, token, last_four, merchant_number,
            data_vault_expiration, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		card.OwnerID,
		card.Name,
		card.Brand,
		card.Token,
		card.LastFour,
		card.MerchantNumber,
		card.DataVaultExpiration,
		card.Status,
	).Scan(&card.ID, &card.CreatedAt)
}

func (r *creditCardRepository) GetByID(ctx context.Context, id string) (*domain.CreditCard, error) {
	query := `SELECT ` + creditCardColumns + ` FROM credit_cards WHERE id=$1`
	var card domain.CreditCard
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&card.ID,
		&card.OwnerID,
		&card.Name,
		&card.Brand,
		&card.Token,
		&card.LastFour,
		&card.MerchantNumber,
		&card.DataVaultExpiration,
		&card.Status,
		&card.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *creditCardRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.CreditCard, error) {
	query := `SELECT ` + creditCardColumns + ` FROM credit_cards
        WHERE owner_id=$1 AND status='VALID' ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CreditCard
	for rows.Next() {
		var card domain.CreditCard
		if err := rows.Scan(
			&card.ID,
			&card.OwnerID,
			&card.Name,
			&card.Brand,
			&card.Token,
			&card.LastFour,
			&card.MerchantNumber,
			&card.DataVaultExpiration,
			&card.Status,
			&card.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, card)
	}
	return result, rows.Err()
}

func (r *creditCardRepository) MarkDeleted(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE credit_cards SET status='DELETED' WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
