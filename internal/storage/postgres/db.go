package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stridelab/warehouse/internal/domain/analytics"
	"github.com/stridelab/warehouse/internal/domain/inventory"
	"github.com/stridelab/warehouse/internal/domain/runs"
	"github.com/stridelab/warehouse/internal/storage"
)

var _ storage.Repository = (*Repository)(nil)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Runs() runs.Repository {
	return &RunsRepository{pool: r.pool}
}

func (r *Repository) Analytics() analytics.Repository {
	return &AnalyticsRepository{pool: r.pool}
}

func (r *Repository) Inventory() inventory.Repository {
	return &InventoryRepository{pool: r.pool}
}
