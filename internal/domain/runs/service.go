package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxBatchRows    = 10000
	defaultStepTimeout     = 2 * time.Minute
	defaultBackfillTimeout = 3 * time.Minute
)

type ServiceConfig struct {
	MaxBatchRows    int
	StepTimeout     time.Duration
	BackfillTimeout time.Duration
}

// Service coordinates promotion of raw run batches into the warehouse and
// the maintenance backfill over all staged rows.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	cfg    ServiceConfig
}

func NewService(repo Repository, logger zerolog.Logger, cfg ServiceConfig) *Service {
	if cfg.MaxBatchRows <= 0 {
		cfg.MaxBatchRows = defaultMaxBatchRows
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	if cfg.BackfillTimeout <= 0 {
		cfg.BackfillTimeout = defaultBackfillTimeout
	}
	return &Service{repo: repo, logger: logger, cfg: cfg}
}

func (s *Service) MaxBatchRows() int {
	return s.cfg.MaxBatchRows
}

// Ingest stages rows under a fresh ledger batch and promotes them into the
// dimension and fact tables, all inside one transaction. On any promotion
// failure the batch is finalized as failed and the transaction rolled back,
// so a failed ingestion leaves nothing behind, the ledger row included.
func (s *Service) Ingest(ctx context.Context, rows []Row, sourceLabel string) (*IngestResult, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(rows) > s.cfg.MaxBatchRows {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrBatchTooLarge, len(rows), s.cfg.MaxBatchRows)
	}

	var result IngestResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		batchID, err := tx.CreateBatch(ctx, sourceLabel)
		if err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		result = IngestResult{BatchID: batchID, ReceivedCount: len(rows)}

		if err := s.promote(ctx, tx, batchID, rows); err != nil {
			s.logger.Error().Err(err).Int64("batch_id", batchID).Msg("batch promotion failed")
			// The failed status is recorded and then discarded with the
			// rollback; failed batches leave no ledger trace.
			if ferr := tx.FinalizeBatch(ctx, batchID, BatchFailed, len(rows), err.Error()); ferr != nil {
				s.logger.Warn().Err(ferr).Int64("batch_id", batchID).Msg("could not finalize failed batch")
			}
			return err
		}

		if err := tx.FinalizeBatch(ctx, batchID, BatchSucceeded, len(rows), ""); err != nil {
			return fmt.Errorf("finalize batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("batch_id", result.BatchID).
		Int("rows", result.ReceivedCount).
		Str("source", sourceLabel).
		Msg("batch ingested")
	return &result, nil
}

// promote runs the pipeline steps for one batch in dependency order: staging
// load, then gender/age-group/country before athletes, majors before the
// athlete-major bridge, and calendar weeks before facts.
func (s *Service) promote(ctx context.Context, tx Repository, batchID int64, rows []Row) error {
	if err := s.step(ctx, "load staging", func(ctx context.Context) error {
		_, err := tx.CopyStaging(ctx, batchID, rows)
		return err
	}); err != nil {
		return err
	}

	scope := BatchScope(batchID)
	steps := []struct {
		name string
		run  func(context.Context, Scope) error
	}{
		{"resolve genders", tx.UpsertGenders},
		{"resolve age groups", tx.UpsertAgeGroups},
		{"resolve countries", tx.UpsertCountries},
		{"resolve majors", tx.UpsertMajors},
		{"resolve weeks", tx.UpsertWeeks},
		{"resolve athletes", tx.UpsertAthletes},
		{"link athlete majors", tx.LinkAthleteMajors},
		{"build weekly facts", tx.UpsertWeeklyFacts},
	}
	for _, st := range steps {
		if err := s.step(ctx, st.name, func(ctx context.Context) error {
			return st.run(ctx, scope)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Backfill repairs dimension data from every staged row: the four text-keyed
// dimensions are re-resolved globally, then athlete attributes are filled in
// gap-only fashion. Unlike ingestion, backfill never overwrites a non-null
// athlete attribute.
func (s *Service) Backfill(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BackfillTimeout)
	defer cancel()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		scope := AllStaged()
		steps := []struct {
			name string
			run  func(context.Context, Scope) error
		}{
			{"resolve genders", tx.UpsertGenders},
			{"resolve age groups", tx.UpsertAgeGroups},
			{"resolve countries", tx.UpsertCountries},
			{"resolve majors", tx.UpsertMajors},
		}
		for _, st := range steps {
			if err := st.run(ctx, scope); err != nil {
				return fmt.Errorf("backfill %s: %w", st.name, err)
			}
		}
		if err := tx.ReconcileAthletes(ctx); err != nil {
			return fmt.Errorf("backfill reconcile athletes: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("backfill failed")
		return err
	}

	s.logger.Info().Msg("backfill completed")
	return nil
}

func (s *Service) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
