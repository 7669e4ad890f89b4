package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/property-backoffice/internal/domain"
)

// ServiceRepository exposes the service catalog.
type ServiceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Service, error)
	ListActive(ctx context.Context) ([]domain.Service, error)
}

// PropertyRepository exposes managed properties.
type PropertyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Property, error)
	ListByResident(ctx context.Context, residentID string) ([]domain.Property, error)
	OwnedBy(ctx context.Context, residentID, propertyID string) (bool, error)
}

type serviceRepository struct {
	pool *pgxpool.Pool
}

// NewServiceRepository instantiates repository.
func NewServiceRepository(pool *pgxpool.Pool) ServiceRepository {
	return &serviceRepository{pool: pool}
}

const serviceColumns = `id, name, sap_code, requires_approval, generates_aviso, generates_invoice,
       scheduled, active`

func (r *serviceRepository) GetByID(ctx context.Context, id string) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id=$1`
	var svc domain.Service
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&svc.ID,
		&svc.Name,
		&svc.SapCode,
		&svc.RequiresApproval,
		&svc.GeneratesAviso,
		&svc.GeneratesInvoice,
		&svc.Scheduled,
		&svc.Active,
	); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *serviceRepository) ListActive(ctx context.Context) ([]domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE active ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Service
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(
			&svc.ID,
			&svc.Name,
			&svc.SapCode,
			&svc.RequiresApproval,
			&svc.GeneratesAviso,
			&svc.GeneratesInvoice,
			&svc.Scheduled,
			&svc.Active,
		); err != nil {
			return nil, err
		}
		result = append(result, svc)
	}
	return result, rows.Err()
}

type propertyRepository struct {
	pool *pgxpool.Pool
}

// NewPropertyRepository instantiates repository.
func NewPropertyRepository(pool *pgxpool.Pool) PropertyRepository {
	return &propertyRepository{pool: pool}
}

func (r *propertyRepository) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	const query = `SELECT id, direction, sap_code, active FROM properties WHERE id=$1`
	var property domain.Property
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&property.ID,
		&property.Direction,
		&property.SapCode,
		&property.Active,
	); err != nil {
		return nil, err
	}
	return &property, nil
}

func (r *propertyRepository) ListByResident(ctx context.Context, residentID string) ([]domain.Property, error) {
	const query = `
        SELECT p.id, p.direction, p.sap_code, p.active
        FROM properties p
        JOIN resident_properties rp ON rp.property_id = p.id
        WHERE rp.user_id=$1 AND p.active
        ORDER BY p.direction`
	rows, err := r.pool.Query(ctx, query, residentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Property
	for rows.Next() {
		var property domain.Property
		if err := rows.Scan(
			&property.ID,
			&property.Direction,
			&property.SapCode,
			&property.Active,
		); err != nil {
			return nil, err
		}
		result = append(result, property)
	}
	return result, rows.Err()
}

func (r *propertyRepository) OwnedBy(ctx context.Context, residentID, propertyID string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM resident_properties WHERE user_id=$1 AND property_id=$2
        )`
	var owned bool
	if err := r.pool.QueryRow(ctx, query, residentID, propertyID).Scan(&owned); err != nil {
		return false, err
	}
	return owned, nil
}
