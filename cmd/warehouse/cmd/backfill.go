package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/stridelab/warehouse/internal/config"
	"github.com/stridelab/warehouse/internal/domain/runs"
	"github.com/stridelab/warehouse/internal/storage/postgres"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-resolve dimensions from all staged rows",
	Long: `Re-resolve the gender, age group, country and major dimensions from every
staged row, then fill gaps in athlete attributes. Already-set athlete
attributes are never overwritten.

Useful after parser fixes, or when dimension rows were created or repaired
by hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		logger := config.NewLogger(cfg.Logging)

		poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := pgxpool.New(poolCtx, cfg.Database.URL)
		poolCancel()
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		repo, err := postgres.NewRepository(pool)
		if err != nil {
			return fmt.Errorf("repository init failed: %w", err)
		}

		service := runs.NewService(repo.Runs(), logger, runs.ServiceConfig{
			MaxBatchRows:    cfg.Ingest.MaxBatchRows,
			StepTimeout:     cfg.Ingest.StepTimeout,
			BackfillTimeout: cfg.Ingest.BackfillTimeout,
		})

		start := time.Now()
		if err := service.Backfill(cmd.Context()); err != nil {
			return fmt.Errorf("backfill: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "backfill completed in %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}
