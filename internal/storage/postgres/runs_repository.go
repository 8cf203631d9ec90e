package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stridelab/warehouse/internal/domain/runs"
)

var _ runs.Repository = (*RunsRepository)(nil)

// RunsRepository implements the warehouse write path. All dimension and fact
// upserts lean on the schema's natural-key uniqueness constraints for
// concurrency safety; there is no application-level locking.
type RunsRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var stagingColumns = []string{
	"run_date",
	"athlete_id_source",
	"distance_km",
	"duration_min",
	"gender_raw",
	"age_group_raw",
	"country_raw",
	"majors_raw",
	"ingest_batch_id",
}

func (r *RunsRepository) WithTx(ctx context.Context, fn func(context.Context, runs.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &RunsRepository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *RunsRepository) CreateBatch(ctx context.Context, sourceLabel string) (int64, error) {
	var batchID int64
	err := r.queryer().QueryRow(ctx, `
INSERT INTO stg_ingest_log (source_name, status)
VALUES ($1, 'running')
RETURNING id
`, sourceLabel).Scan(&batchID)
	if err != nil {
		return 0, fmt.Errorf("create batch: %w", err)
	}
	return batchID, nil
}

func (r *RunsRepository) FinalizeBatch(ctx context.Context, batchID int64, status runs.BatchStatus, rowCount int, notes string) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE stg_ingest_log
   SET status = $2,
       row_count = $3,
       notes = NULLIF($4, '')
 WHERE id = $1
`, batchID, string(status), rowCount, notes)
	if err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize batch: batch %d not found", batchID)
	}
	return nil
}

// CopyStaging streams rows into stg_runs_raw with the COPY protocol rather
// than per-row inserts. Majors are stored comma-joined; free-text fields go
// in untouched.
func (r *RunsRepository) CopyStaging(ctx context.Context, batchID int64, rows []runs.Row) (int64, error) {
	source := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		row := rows[i]
		var majors *string
		if len(row.Majors) > 0 {
			joined := strings.Join(row.Majors, ",")
			majors = &joined
		}
		return []any{
			row.RunDate,
			row.AthleteIDSource,
			row.DistanceKm,
			row.DurationMin,
			row.Gender,
			row.AgeGroup,
			row.Country,
			majors,
			batchID,
		}, nil
	})

	copied, err := r.queryer().CopyFrom(ctx, pgx.Identifier{"stg_runs_raw"}, stagingColumns, source)
	if err != nil {
		return 0, fmt.Errorf("copy staging rows: %w", err)
	}
	return copied, nil
}

func (r *RunsRepository) UpsertGenders(ctx context.Context, scope runs.Scope) error {
	cond, args := scopeFilter(scope)
	_, err := r.queryer().Exec(ctx, fmt.Sprintf(`
INSERT INTO dim_gender (gender_code)
SELECT DISTINCT s.gender_raw
  FROM stg_runs_raw s
 WHERE %s AND s.gender_raw IS NOT NULL
ON CONFLICT (gender_code) DO NOTHING
`, cond), args...)
	if err != nil {
		return fmt.Errorf("upsert genders: %w", err)
	}
	return nil
}

// UpsertAgeGroups reads the distinct trimmed labels in scope, derives the age
// bounds in Go, and upserts each label. Existing non-null bounds win over the
// freshly derived ones.
func (r *RunsRepository) UpsertAgeGroups(ctx context.Context, scope runs.Scope) error {
	cond, args := scopeFilter(scope)
	labels, err := queryStrings(ctx, r.queryer(), fmt.Sprintf(`
SELECT DISTINCT trim(s.age_group_raw)
  FROM stg_runs_raw s
 WHERE %s AND s.age_group_raw IS NOT NULL AND trim(s.age_group_raw) <> ''
`, cond), args...)
	if err != nil {
		return fmt.Errorf("upsert age groups: %w", err)
	}

	for _, label := range labels {
		minAge, maxAge := runs.AgeGroupBounds(label)
		_, err := r.queryer().Exec(ctx, `
INSERT INTO dim_age_group (age_group_label, min_age, max_age)
VALUES ($1, $2, $3)
ON CONFLICT (age_group_label) DO UPDATE SET
	min_age = COALESCE(dim_age_group.min_age, EXCLUDED.min_age),
	max_age = COALESCE(dim_age_group.max_age, EXCLUDED.max_age)
`, label, minAge, maxAge)
		if err != nil {
			return fmt.Errorf("upsert age group %q: %w", label, err)
		}
	}
	return nil
}

func (r *RunsRepository) UpsertCountries(ctx context.Context, scope runs.Scope) error {
	cond, args := scopeFilter(scope)
	_, err := r.queryer().Exec(ctx, fmt.Sprintf(`
INSERT INTO dim_country (country_name)
SELECT DISTINCT s.country_raw
  FROM stg_runs_raw s
 WHERE %s AND s.country_raw IS NOT NULL
ON CONFLICT (country_name) DO NOTHING
`, cond), args...)
	if err != nil {
		return fmt.Errorf("upsert countries: %w", err)
	}
	return nil
}

// UpsertMajors explodes the comma-joined majors fields in scope and upserts
// one row per distinct trimmed token, deriving the 4-digit year in Go. A year
// already on the dimension is never overwritten.
func (r *RunsRepository) UpsertMajors(ctx context.Context, scope runs.Scope) error {
	cond, args := scopeFilter(scope)
	rawValues, err := queryStrings(ctx, r.queryer(), fmt.Sprintf(`
SELECT DISTINCT s.majors_raw
  FROM stg_runs_raw s
 WHERE %s AND s.majors_raw IS NOT NULL AND s.majors_raw <> ''
`, cond), args...)
	if err != nil {
		return fmt.Errorf("upsert majors: %w", err)
	}

	seen := make(map[string]struct{})
	for _, raw := range rawValues {
		for _, name := range runs.SplitMajors(raw) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}

			_, err := r.queryer().Exec(ctx, `
INSERT INTO dim_major (major_name, major_year)
VALUES ($1, $2)
ON CONFLICT (major_name) DO UPDATE SET
	major_year = COALESCE(dim_major.major_year, EXCLUDED.major_year)
`, name, runs.MajorYear(name))
			if err != nil {
				return fmt.Errorf("upsert major %q: %w", name, err)
			}
		}
	}
	return nil
}

// UpsertWeeks creates one dim_date row per distinct ISO week touched by the
// staged rows in scope. Week rows never change once created.
func (r *RunsRepository) UpsertWeeks(ctx context.Context, scope runs.Scope) error {
	cond, args := scopeFilter(scope)
	rows, err := r.queryer().Query(ctx, fmt.Sprintf(`
SELECT DISTINCT s.run_date
  FROM stg_runs_raw s
 WHERE %s
`, cond), args...)
	if err != nil {
		return fmt.Errorf("upsert weeks: %w", err)
	}

	weeks := make(map[time.Time]struct{})
	for rows.Next() {
		var runDate time.Time
		if err := rows.Scan(&runDate); err != nil {
			rows.Close()
			return fmt.Errorf("upsert weeks: scan run date: %w", err)
		}
		weeks[runs.WeekStart(runDate)] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("upsert weeks: %w", err)
	}

	for weekStart := range weeks {
		isoYear, isoWeek, month, quarter := runs.WeekFields(weekStart)
		_, err := r.queryer().Exec(ctx, `
INSERT INTO dim_date (date_key, iso_year, iso_week, month, quarter, week_start_date)
VALUES ($1, $2, $3, $4, $5, $1)
ON CONFLICT (date_key) DO NOTHING
`, weekStart, isoYear, isoWeek, month, quarter)
		if err != nil {
			return fmt.Errorf("upsert week %s: %w", weekStart.Format("2006-01-02"), err)
		}
	}
	return nil
}

// UpsertAthletes groups the staged rows in scope by source athlete id,
// resolving the demographic keys by matching raw text against the dimension
// natural keys. Latest submission wins: on conflict the attribute keys are
// overwritten while the seen-week range only widens.
func (r *RunsRepository) UpsertAthletes(ctx context.Context, scope runs.Scope) error {
	cond, args := scopeFilter(scope)
	_, err := r.queryer().Exec(ctx, fmt.Sprintf(`
INSERT INTO dim_athlete (athlete_id_source, gender_key, age_group_key, country_key, first_seen_week, last_seen_week)
SELECT s.athlete_id_source,
       g.gender_key,
       ag.age_group_key,
       c.country_key,
       min(date_trunc('week', s.run_date)::date),
       max(date_trunc('week', s.run_date)::date)
  FROM stg_runs_raw s
  LEFT JOIN dim_gender g ON g.gender_code = s.gender_raw
  LEFT JOIN dim_age_group ag ON ag.age_group_label = trim(s.age_group_raw)
  LEFT JOIN dim_country c ON c.country_name = s.country_raw
 WHERE %s
 GROUP BY s.athlete_id_source, g.gender_key, ag.age_group_key, c.country_key
ON CONFLICT (athlete_id_source) DO UPDATE SET
	gender_key = EXCLUDED.gender_key,
	age_group_key = EXCLUDED.age_group_key,
	country_key = EXCLUDED.country_key,
	first_seen_week = LEAST(dim_athlete.first_seen_week, EXCLUDED.first_seen_week),
	last_seen_week = GREATEST(dim_athlete.last_seen_week, EXCLUDED.last_seen_week)
`, cond), args...)
	if err != nil {
		return fmt.Errorf("upsert athletes: %w", err)
	}
	return nil
}

// LinkAthleteMajors records the athlete-major pairs observed in scope.
// Duplicate pairs are silently ignored; pairs are never removed.
func (r *RunsRepository) LinkAthleteMajors(ctx context.Context, scope runs.Scope) error {
	cond, args := scopeFilter(scope)
	_, err := r.queryer().Exec(ctx, fmt.Sprintf(`
INSERT INTO bridge_athlete_major (athlete_key, major_key)
SELECT DISTINCT da.athlete_key, dm.major_key
  FROM stg_runs_raw s
  JOIN dim_athlete da ON da.athlete_id_source = s.athlete_id_source
  JOIN regexp_split_to_table(coalesce(s.majors_raw, ''), ',') AS m(value) ON true
  JOIN dim_major dm ON dm.major_name = trim(m.value)
 WHERE %s AND s.majors_raw IS NOT NULL AND s.majors_raw <> ''
ON CONFLICT DO NOTHING
`, cond), args...)
	if err != nil {
		return fmt.Errorf("link athlete majors: %w", err)
	}
	return nil
}

// UpsertWeeklyFacts rebuilds the per-athlete per-week fact rows from the
// staged rows in scope. Re-ingesting an athlete-week replaces the stored
// figures outright; nothing accumulates. Staged rows whose athlete is absent
// from dim_athlete are skipped by the inner join.
func (r *RunsRepository) UpsertWeeklyFacts(ctx context.Context, scope runs.Scope) error {
	cond, args := scopeFilter(scope)
	_, err := r.queryer().Exec(ctx, fmt.Sprintf(`
INSERT INTO fact_run_weekly (date_key, athlete_key, distance_km, duration_min, pace_min_per_km, zero_distance_flag)
SELECT date_trunc('week', s.run_date)::date AS date_key,
       da.athlete_key,
       s.distance_km,
       s.duration_min,
       CASE WHEN coalesce(s.distance_km, 0) = 0 THEN NULL
            ELSE s.duration_min / nullif(s.distance_km, 0)
       END AS pace_min_per_km,
       coalesce(s.distance_km, 0) = 0
  FROM stg_runs_raw s
  JOIN dim_athlete da ON da.athlete_id_source = s.athlete_id_source
 WHERE %s
ON CONFLICT (date_key, athlete_key) DO UPDATE SET
	distance_km = EXCLUDED.distance_km,
	duration_min = EXCLUDED.duration_min,
	pace_min_per_km = EXCLUDED.pace_min_per_km,
	zero_distance_flag = EXCLUDED.zero_distance_flag
`, cond), args...)
	if err != nil {
		return fmt.Errorf("upsert weekly facts: %w", err)
	}
	return nil
}

// ReconcileAthletes is the backfill pass: recompute each athlete's resolved
// attributes from all of staging, but only fill attributes that are currently
// null and widen the seen-week range. Already-set attributes are preserved,
// unlike the ingestion-time upsert.
func (r *RunsRepository) ReconcileAthletes(ctx context.Context) error {
	_, err := r.queryer().Exec(ctx, `
WITH staged AS (
    SELECT s.athlete_id_source,
           g.gender_key,
           ag.age_group_key,
           c.country_key,
           min(date_trunc('week', s.run_date)::date) AS first_seen,
           max(date_trunc('week', s.run_date)::date) AS last_seen
      FROM stg_runs_raw s
      LEFT JOIN dim_gender g ON g.gender_code = s.gender_raw
      LEFT JOIN dim_age_group ag ON ag.age_group_label = trim(s.age_group_raw)
      LEFT JOIN dim_country c ON c.country_name = s.country_raw
     GROUP BY s.athlete_id_source, g.gender_key, ag.age_group_key, c.country_key
)
UPDATE dim_athlete a
   SET gender_key = COALESCE(a.gender_key, staged.gender_key),
       age_group_key = COALESCE(a.age_group_key, staged.age_group_key),
       country_key = COALESCE(a.country_key, staged.country_key),
       first_seen_week = LEAST(COALESCE(a.first_seen_week, staged.first_seen), staged.first_seen),
       last_seen_week = GREATEST(COALESCE(a.last_seen_week, staged.last_seen), staged.last_seen)
  FROM staged
 WHERE staged.athlete_id_source = a.athlete_id_source
`)
	if err != nil {
		return fmt.Errorf("reconcile athletes: %w", err)
	}
	return nil
}

type runsQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

func (r *RunsRepository) queryer() runsQueryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

// scopeFilter renders the staging predicate for a resolver pass. Queries
// using it must alias stg_runs_raw as s and take no other parameters.
func scopeFilter(scope runs.Scope) (string, []any) {
	if batchID, ok := scope.Batch(); ok {
		return "s.ingest_batch_id = $1", []any{batchID}
	}
	return "TRUE", nil
}

func queryStrings(ctx context.Context, q runsQueryer, sql string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}
