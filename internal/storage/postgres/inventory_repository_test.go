package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stridelab/warehouse/internal/domain/inventory"
)

func TestInventoryCreateAndList(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	inv := repo.Inventory()

	older := inventory.Record{
		ID:                uuid.New(),
		ProductName:       "GPS watch",
		Quantity:          5,
		WarehouseLocation: "STO-1",
		SubmittedBy:       "ops",
		ProcessedAt:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	newer := inventory.Record{
		ID:                uuid.New(),
		ProductName:       "Heart rate strap",
		Quantity:          12,
		WarehouseLocation: "OSL-2",
		SubmittedBy:       "ops",
		ProcessedAt:       time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, inv.Create(ctx, older))
	require.NoError(t, inv.Create(ctx, newer))

	records, err := inv.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, "Heart rate strap", records[0].ProductName)
	assert.Equal(t, 12, records[0].Quantity)
	assert.Equal(t, older.ID, records[1].ID)
	assert.True(t, records[0].ProcessedAt.After(records[1].ProcessedAt))
}

func TestInventoryCreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	inv := repo.Inventory()
	record := inventory.Record{
		ID:                uuid.New(),
		ProductName:       "Foam roller",
		Quantity:          3,
		WarehouseLocation: "CPH-1",
		SubmittedBy:       "ops",
		ProcessedAt:       time.Now().UTC(),
	}
	require.NoError(t, inv.Create(ctx, record))
	require.Error(t, inv.Create(ctx, record))
}
