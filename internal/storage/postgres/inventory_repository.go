package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stridelab/warehouse/internal/domain/inventory"
)

var _ inventory.Repository = (*InventoryRepository)(nil)

type InventoryRepository struct {
	pool *pgxpool.Pool
}

func (r *InventoryRepository) List(ctx context.Context) ([]inventory.Record, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, product_name, quantity, warehouse_location, submitted_by, processed_at_utc
  FROM inventory_records
 ORDER BY processed_at_utc DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Record, error) {
		var record inventory.Record
		err := row.Scan(
			&record.ID,
			&record.ProductName,
			&record.Quantity,
			&record.WarehouseLocation,
			&record.SubmittedBy,
			&record.ProcessedAt,
		)
		return record, err
	})
}

func (r *InventoryRepository) Create(ctx context.Context, record inventory.Record) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO inventory_records (id, product_name, quantity, warehouse_location, submitted_by, processed_at_utc)
VALUES ($1, $2, $3, $4, $5, $6)
`,
		record.ID,
		record.ProductName,
		record.Quantity,
		record.WarehouseLocation,
		record.SubmittedBy,
		record.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("create inventory record: %w", err)
	}
	return nil
}
