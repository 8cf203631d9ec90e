// Package storage defines the repository facade implemented by the postgres
// backend. Domain services depend on the per-area interfaces declared in
// their own packages; this facade is what wiring code hands around.
package storage

import (
	"github.com/stridelab/warehouse/internal/domain/analytics"
	"github.com/stridelab/warehouse/internal/domain/inventory"
	"github.com/stridelab/warehouse/internal/domain/runs"
)

type Repository interface {
	Runs() runs.Repository
	Analytics() analytics.Repository
	Inventory() inventory.Repository
}
