package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agromarket-api/internal/models"
)

const cooperativeSelect = `SELECT c.id, c.name, c.purpose, c.products, c.location, c.created_at, COUNT(u.id) AS member_count
FROM cooperatives c LEFT JOIN users u ON u.cooperative_id = c.id`

// CooperativeRepository provides database access for cooperatives.
type CooperativeRepository struct {
	db sqlx.ExtContext
}

// NewCooperativeRepository constructs the repository.
func NewCooperativeRepository(db sqlx.ExtContext) *CooperativeRepository {
	return &CooperativeRepository{db: db}
}

// ListAll returns every cooperative ordered by name.
func (r *CooperativeRepository) ListAll(ctx context.Context) ([]models.Cooperative, error) {
	query := cooperativeSelect + ` GROUP BY c.id ORDER BY c.name`
	var coops []models.Cooperative
	if err := sqlx.SelectContext(ctx, r.db, &coops, query); err != nil {
		return nil, fmt.Errorf("list cooperatives: %w", err)
	}
	return coops, nil
}

// FindByID returns a cooperative by identifier.
func (r *CooperativeRepository) FindByID(ctx context.Context, id string) (*models.Cooperative, error) {
	query := cooperativeSelect + ` WHERE c.id = $1 GROUP BY c.id`
	var coop models.Cooperative
	if err := sqlx.GetContext(ctx, r.db, &coop, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find cooperative: %w", err)
	}
	return &coop, nil
}

// Create inserts a cooperative. A name collision returns ErrDuplicateName.
func (r *CooperativeRepository) Create(ctx context.Context, coop *models.Cooperative) error {
	if coop.ID == "" {
		coop.ID = uuid.NewString()
	}
	if coop.CreatedAt.IsZero() {
		coop.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO cooperatives (id, name, purpose, products, location, created_at) VALUES (:id, :name, :purpose, :products, :location, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, coop); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return ErrDuplicateName
		}
		return fmt.Errorf("create cooperative: %w", err)
	}
	return nil
}
