package runs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyBatch is returned before any transaction opens; an empty
	// submission is a caller error, not a failed ingestion.
	ErrEmptyBatch = errors.New("ingest batch is empty")
	// ErrBatchTooLarge is returned when a submission exceeds the configured
	// row ceiling.
	ErrBatchTooLarge = errors.New("ingest batch exceeds row limit")
)

type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
)

// Row is one validated run record accepted for ingestion. Free-text fields
// are staged as-is; parsing happens during promotion.
type Row struct {
	RunDate         time.Time
	AthleteIDSource int
	DistanceKm      *float64
	DurationMin     *float64
	Gender          *string
	AgeGroup        *string
	Country         *string
	Majors          []string
}

type IngestResult struct {
	BatchID       int64
	ReceivedCount int
}

// Scope selects which staged rows a resolver pass reads: the rows of a single
// batch during promotion, or every staged row during backfill.
type Scope struct {
	batchID *int64
}

func BatchScope(batchID int64) Scope {
	return Scope{batchID: &batchID}
}

func AllStaged() Scope {
	return Scope{}
}

// Batch returns the batch id and true when the scope is batch-bound.
func (s Scope) Batch() (int64, bool) {
	if s.batchID == nil {
		return 0, false
	}
	return *s.batchID, true
}

// Repository is the warehouse write surface used by the ingestion and
// backfill coordinators. Every operation is an idempotent upsert except the
// ledger and staging writes; all of them run inside the transaction opened by
// WithTx, and concurrency safety is delegated to the storage engine's
// natural-key uniqueness constraints.
type Repository interface {
	// CreateBatch opens a ledger row in the running state and returns its id.
	CreateBatch(ctx context.Context, sourceLabel string) (int64, error)
	// FinalizeBatch records the terminal status, row count and notes for a
	// batch. It is called exactly once per batch before commit or rollback.
	FinalizeBatch(ctx context.Context, batchID int64, status BatchStatus, rowCount int, notes string) error

	// CopyStaging bulk-writes rows into the staging table tagged with the
	// batch id and returns the number of rows written.
	CopyStaging(ctx context.Context, batchID int64, rows []Row) (int64, error)

	// Dimension resolvers. Each reads the staged rows selected by scope and
	// upserts one dimension; the fixed call order is enforced by the service.
	UpsertGenders(ctx context.Context, scope Scope) error
	UpsertAgeGroups(ctx context.Context, scope Scope) error
	UpsertCountries(ctx context.Context, scope Scope) error
	UpsertMajors(ctx context.Context, scope Scope) error
	UpsertWeeks(ctx context.Context, scope Scope) error
	UpsertAthletes(ctx context.Context, scope Scope) error
	LinkAthleteMajors(ctx context.Context, scope Scope) error

	// UpsertWeeklyFacts replaces the per-athlete per-week fact rows derived
	// from the staged rows in scope.
	UpsertWeeklyFacts(ctx context.Context, scope Scope) error

	// ReconcileAthletes is the backfill-only pass over dim_athlete: it fills
	// missing attribute keys from staging and widens the seen-week range, but
	// never overwrites an attribute that is already set.
	ReconcileAthletes(ctx context.Context) error

	// WithTx runs fn against a transaction-bound repository, committing when
	// fn returns nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
